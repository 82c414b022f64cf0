package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"feederconsole/app/internal/feedconfig"
)

var (
	buildWrite bool
	buildJSON  bool
)

var buildConfigCmd = &cobra.Command{
	Use:   "build-config",
	Short: "Build the ultrafeeder relay configuration",
	Long: `Select the TAK relay host and lay out the relay directives for every enabled
aggregator. Without --write the result is only printed.

Examples:
  feederconsole build-config
  feederconsole build-config --write`,
	Args: cobra.NoArgs,
	RunE: runBuildConfig,
}

func init() {
	rootCmd.AddCommand(buildConfigCmd)
	buildConfigCmd.Flags().BoolVarP(&buildWrite, "write", "w", false, "Write "+feedconfig.Key+" back to the .env file")
	buildConfigCmd.Flags().BoolVar(&buildJSON, "json", false, "Print the plan as JSON")
}

func runBuildConfig(cmd *cobra.Command, _ []string) error {
	c, err := newConsole()
	if err != nil {
		return err
	}
	defer c.close()

	var plan feedconfig.Plan
	if buildWrite {
		if err := c.prepareStore(); err != nil {
			return err
		}
		plan, err = feedconfig.Rebuild(cmd.Context(), c.store, c.selector, c.registry, c.log)
		if err != nil {
			return err
		}
	} else {
		plan = feedconfig.Build(c.store, c.selector.Select(cmd.Context(), c.store), c.registry)
	}

	if buildJSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(plan)
	}
	fmt.Fprintln(cmd.OutOrStdout(), plan.String())
	return nil
}
