// lagmark is the event metrics pipeline: an ingestion server appending
// to a durable event log, an incremental aggregator folding the log into
// daily rollups, and Parquet export for offline analysis.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvoss/lagmark/internal/config"
	"github.com/nvoss/lagmark/internal/logging"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	cfgPath string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "lagmark",
	Short:   "Event metrics pipeline: ingest, aggregate, query, export",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			if os.IsNotExist(err) {
				cfg = config.DefaultConfig()
			} else {
				return fmt.Errorf("load config: %w", err)
			}
		}
		logging.Init(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.JSON)
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "lagmark.yaml", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
