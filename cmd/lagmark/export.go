package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvoss/lagmark/internal/export"
	"github.com/nvoss/lagmark/internal/storage/query"
	"github.com/nvoss/lagmark/internal/storage/rollup"
)

var (
	exportRange string
	exportFrom  string
	exportTo    string
	exportOut   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export aggregate store contents to Parquet",
	Long: `Snapshot the daily rollups and latency bucket counts inside a window
to Parquet files for offline analysis. The store is not modified.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportRange, "range", "", "relative window: 1d, 7d, 30d")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "window start (YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "window end (YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output directory (default <data_dir>/exports)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	w, err := query.ResolveWindow(exportRange, exportFrom, exportTo, cfg.Query.DefaultRange, time.Now())
	if err != nil {
		return err
	}

	outDir := exportOut
	if outDir == "" {
		outDir = cfg.ExportDir()
	}

	store, err := rollup.Open(cfg.StorePath())
	if err != nil {
		return fmt.Errorf("open aggregate store: %w", err)
	}
	defer store.Close()

	exp := export.New(store, export.Options{
		OutDir:      outDir,
		Compression: cfg.Export.Compression,
	})

	res, err := exp.Run(cmd.Context(), w)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	fmt.Printf("wrote %s (%d rows)\n", res.RollupFile, res.RollupRows)
	fmt.Printf("wrote %s (%d rows)\n", res.BucketFile, res.BucketRows)
	return nil
}
