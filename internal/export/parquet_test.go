package export

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/nvoss/lagmark/internal/storage/query"
	"github.com/nvoss/lagmark/internal/storage/rollup"
	"github.com/nvoss/lagmark/internal/storage/types"
)

func seedStore(t *testing.T) *rollup.Store {
	t.Helper()
	store, err := rollup.Open(filepath.Join(t.TempDir(), "metrics.duckdb"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	mtx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer mtx.Rollback()

	p50, p90, avg := 5.0, 9.0, 9.75
	if err := mtx.UpsertDailyRollup(ctx, types.DailyRollup{
		Date: "2024-03-15", Total: 4, Hits: 2, Misses: 1, Errors: 1,
		LatencyP50: &p50, LatencyP90: &p90, LatencyAvg: &avg,
	}); err != nil {
		t.Fatalf("upsert rollup: %v", err)
	}
	if err := mtx.UpsertBucketCount(ctx, "2024-03-15", "0-10", 3); err != nil {
		t.Fatalf("upsert bucket: %v", err)
	}
	if err := mtx.UpsertBucketCount(ctx, "2024-03-15", "10-25", 1); err != nil {
		t.Fatalf("upsert bucket: %v", err)
	}
	if err := mtx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return store
}

func TestExportRoundtrip(t *testing.T) {
	store := seedStore(t)
	outDir := t.TempDir()

	exp := New(store, Options{OutDir: outDir, Compression: "zstd"})
	res, err := exp.Run(context.Background(), query.Window{From: "2024-03-15", To: "2024-03-15"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.RollupRows != 1 || res.BucketRows != 2 {
		t.Errorf("rows = %d/%d, want 1/2", res.RollupRows, res.BucketRows)
	}

	rollups, err := parquet.ReadFile[RollupRow](res.RollupFile)
	if err != nil {
		t.Fatalf("read rollup file: %v", err)
	}
	if len(rollups) != 1 {
		t.Fatalf("rollup rows = %d, want 1", len(rollups))
	}
	r := rollups[0]
	if r.Date != "2024-03-15" || r.Total != 4 || r.LatencyP50 != 5 {
		t.Errorf("unexpected rollup row %+v", r)
	}

	buckets, err := parquet.ReadFile[BucketRow](res.BucketFile)
	if err != nil {
		t.Fatalf("read bucket file: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("bucket rows = %d, want 2", len(buckets))
	}
}

func TestExportEmptyWindow(t *testing.T) {
	store := seedStore(t)
	outDir := t.TempDir()

	exp := New(store, Options{OutDir: outDir})
	res, err := exp.Run(context.Background(), query.Window{From: "2020-01-01", To: "2020-01-02"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.RollupRows != 0 || res.BucketRows != 0 {
		t.Errorf("rows = %d/%d, want 0/0", res.RollupRows, res.BucketRows)
	}

	// Empty but valid Parquet files are still written.
	rollups, err := parquet.ReadFile[RollupRow](res.RollupFile)
	if err != nil {
		t.Fatalf("read empty rollup file: %v", err)
	}
	if len(rollups) != 0 {
		t.Errorf("expected no rows, got %d", len(rollups))
	}
}
