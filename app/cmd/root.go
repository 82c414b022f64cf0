package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	logLevel        string
	envFile         string
	aggregatorsFile string
)

var rootCmd = &cobra.Command{
	Use:   "feederconsole",
	Short: "ADS-B feeder console",
	Long: `Local console for an ADS-B feeder appliance. It chooses the TAK relay host,
writes the ultrafeeder relay configuration and reports the health of every
upstream aggregator feed.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Appliance .env file (overrides ADSB_ENV_FILE)")
	rootCmd.PersistentFlags().StringVar(&aggregatorsFile, "aggregators", "", "Aggregator registry YAML (overrides AGGREGATORS_FILE)")
}
