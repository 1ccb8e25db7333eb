package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvoss/lagmark/internal/ingest"
	"github.com/nvoss/lagmark/internal/logging"
	"github.com/nvoss/lagmark/internal/server"
	"github.com/nvoss/lagmark/internal/storage/eventlog"
	"github.com/nvoss/lagmark/internal/storage/query"
	"github.com/nvoss/lagmark/internal/storage/rollup"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion and query HTTP server",
	Long: `Run the HTTP server exposing batch ingestion (POST /metrics) and the
read-only query endpoints (summary, latency-histogram, daily-rollup).

Ingested batches are appended to the event log before being acknowledged.
Queries are served from the aggregate store; run "lagmark aggregate" to
fold new events in.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveListen != "" {
		cfg.Listen = serveListen
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare data directory: %w", err)
	}

	writer, err := eventlog.NewWriter(cfg.EventLogPath(), eventlog.Options{
		SyncMode: cfg.EventLog.SyncMode,
	})
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer writer.Close()

	store, err := rollup.Open(cfg.StorePath())
	if err != nil {
		return fmt.Errorf("open aggregate store: %w", err)
	}
	defer store.Close()

	gateway := ingest.NewGateway(writer)
	querySvc := query.New(store, cfg.Query.DefaultRange)
	srv := server.New(cfg.Listen, gateway, querySvc)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logging.Info("signal received, shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
