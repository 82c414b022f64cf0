package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"feederconsole/app/internal/aggstatus"
)

var (
	statusForce bool
	statusJSON  bool
)

var statusCmd = &cobra.Command{
	Use:   "status [aggregator]",
	Short: "Show aggregator feed health",
	Long: `Reconcile container state, beast connector uptime and MLAT sync quality into
one status per aggregator.

Examples:
  feederconsole status
  feederconsole status adsbx --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVarP(&statusForce, "force", "f", false, "Bypass the status cache")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print snapshots as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := newConsole()
	if err != nil {
		return err
	}
	defer c.close()

	var snaps []aggstatus.Snapshot
	if len(args) == 1 {
		s, ok := c.manager.CheckOne(cmd.Context(), args[0], statusForce)
		if !ok {
			return fmt.Errorf("unknown aggregator %q", args[0])
		}
		snaps = []aggstatus.Snapshot{s}
	} else {
		snaps = c.manager.CheckAll(cmd.Context(), statusForce)
	}

	if statusJSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(snaps)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AGGREGATOR\tBEAST\tMLAT\tCONTAINER\tCHECKED")
	for _, s := range snaps {
		container := "-"
		if s.Container != nil {
			container = *s.Container
		}
		fmt.Fprintf(tw, "%s\t%s %s\t%s %s\t%s\t%s\n",
			s.Aggregator, s.Beast.Symbol(), s.Beast, s.Mlat.Symbol(), s.Mlat, container,
			s.CheckedAt.Format(time.TimeOnly))
	}
	return tw.Flush()
}
