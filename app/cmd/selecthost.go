package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var selectJSON bool

var selectHostCmd = &cobra.Command{
	Use:   "select-host",
	Short: "Print the TAK relay host the feeder should connect to",
	Long: `Evaluate the relay host rules against the appliance configuration and the
live network, then print the chosen host. Exits non-zero when no host is
configured at all.

Examples:
  feederconsole select-host
  feederconsole select-host --json`,
	Args: cobra.NoArgs,
	RunE: runSelectHost,
}

func init() {
	rootCmd.AddCommand(selectHostCmd)
	selectHostCmd.Flags().BoolVar(&selectJSON, "json", false, "Print the decision as JSON")
}

func runSelectHost(cmd *cobra.Command, _ []string) error {
	c, err := newConsole()
	if err != nil {
		return err
	}
	defer c.close()

	d := c.selector.Select(cmd.Context(), c.store)
	if selectJSON {
		if err := json.NewEncoder(cmd.OutOrStdout()).Encode(d); err != nil {
			return err
		}
	} else if !d.Disabled() {
		fmt.Fprintln(cmd.OutOrStdout(), d.Host)
	}
	if d.Disabled() {
		return errors.New("no TAK relay host configured")
	}
	return nil
}
