package aggregate

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nvoss/lagmark/internal/storage/eventlog"
	"github.com/nvoss/lagmark/internal/storage/rollup"
	"github.com/nvoss/lagmark/internal/storage/types"
)

func newTestStore(t *testing.T) *rollup.Store {
	t.Helper()
	store, err := rollup.Open(filepath.Join(t.TempDir(), "metrics.duckdb"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func appendBatch(t *testing.T, path string, events ...types.MetricEvent) {
	t.Helper()
	w, err := eventlog.NewWriter(path, eventlog.Options{SyncMode: "sync"})
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	defer w.Close()
	if err := w.Append(types.LogRecord{
		ExportedAt:      "2024-03-15T12:00:00Z",
		Items:           events,
		ServerTimestamp: 1710504100000,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func hit(latency float64, tsMs int64) types.MetricEvent {
	return types.MetricEvent{Result: types.ResultHit, SubjectKey: "k", LatencyMs: latency, OccurredAtMs: tsMs}
}

func TestAggregatorMissingLogIsNoOp(t *testing.T) {
	store := newTestStore(t)
	agg := New(filepath.Join(t.TempDir(), "absent.jsonl"), store, Options{})

	res, err := agg.RunIncremental(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ProcessedCount != 0 || res.MaxTimestampMs != 0 {
		t.Errorf("expected no-op, got %+v", res)
	}
}

func TestAggregatorIncrementalRun(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "log.jsonl")
	store := newTestStore(t)
	ctx := context.Background()

	appendBatch(t, logPath,
		hit(5, ts(0)),
		hit(5, ts(1000)),
		types.MetricEvent{Result: types.ResultMiss, SubjectKey: "k", LatencyMs: 9, OccurredAtMs: ts(2000)},
		types.MetricEvent{Result: types.ResultError, SubjectKey: "k", LatencyMs: 20, OccurredAtMs: ts(3000)},
	)

	agg := New(logPath, store, Options{})
	res, err := agg.RunIncremental(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ProcessedCount != 4 {
		t.Errorf("processed = %d, want 4", res.ProcessedCount)
	}
	if res.MaxTimestampMs != ts(3000) {
		t.Errorf("watermark = %d, want %d", res.MaxTimestampMs, ts(3000))
	}

	w, err := store.GetWatermark(ctx)
	if err != nil {
		t.Fatalf("watermark: %v", err)
	}
	if w != ts(3000) {
		t.Errorf("stored watermark = %d, want %d", w, ts(3000))
	}

	rows, err := store.ReadRollupRange(ctx, "2024-03-15", "2024-03-15")
	if err != nil {
		t.Fatalf("read rollups: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 rollup row, got %d", len(rows))
	}
	r := rows[0]
	if r.Total != 4 || r.Hits != 2 || r.Misses != 1 || r.Errors != 1 {
		t.Errorf("counts total=%d hits=%d misses=%d errors=%d, want 4/2/1/1",
			r.Total, r.Hits, r.Misses, r.Errors)
	}
	if r.LatencyP50 == nil || *r.LatencyP50 != 5 {
		t.Errorf("p50 = %v, want 5", r.LatencyP50)
	}
	if r.LatencyP90 == nil || *r.LatencyP90 != 9 {
		t.Errorf("p90 = %v, want 9", r.LatencyP90)
	}

	buckets, err := store.ReadBucketRange(ctx, "2024-03-15", "2024-03-15")
	if err != nil {
		t.Fatalf("read buckets: %v", err)
	}
	if buckets["0-10"] != 3 || buckets["10-25"] != 1 {
		t.Errorf("buckets = %v, want 0-10:3 10-25:1", buckets)
	}
}

func TestAggregatorSecondRunIsNoOp(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "log.jsonl")
	store := newTestStore(t)
	ctx := context.Background()

	appendBatch(t, logPath, hit(5, ts(0)), hit(9, ts(1000)))

	agg := New(logPath, store, Options{})
	if _, err := agg.RunIncremental(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}

	res, err := agg.RunIncremental(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.ProcessedCount != 0 {
		t.Errorf("second run processed %d events, want 0", res.ProcessedCount)
	}
	if res.SkippedCount != 2 {
		t.Errorf("second run skipped %d events, want 2", res.SkippedCount)
	}
	if res.MaxTimestampMs != ts(1000) {
		t.Errorf("watermark moved to %d, want %d", res.MaxTimestampMs, ts(1000))
	}

	rows, err := store.ReadRollupRange(ctx, "2024-03-15", "2024-03-15")
	if err != nil {
		t.Fatalf("read rollups: %v", err)
	}
	if rows[0].Total != 2 {
		t.Errorf("total = %d after no-op rerun, want 2", rows[0].Total)
	}
}

func TestAggregatorNewEventsAddToCounts(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "log.jsonl")
	store := newTestStore(t)
	ctx := context.Background()

	appendBatch(t, logPath, hit(5, ts(0)), hit(5, ts(1000)))
	agg := New(logPath, store, Options{})
	if _, err := agg.RunIncremental(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}

	appendBatch(t, logPath, hit(200, ts(2000)))
	res, err := agg.RunIncremental(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.ProcessedCount != 1 {
		t.Errorf("processed = %d, want 1", res.ProcessedCount)
	}

	rows, err := store.ReadRollupRange(ctx, "2024-03-15", "2024-03-15")
	if err != nil {
		t.Fatalf("read rollups: %v", err)
	}
	r := rows[0]
	if r.Total != 3 || r.Hits != 3 {
		t.Errorf("total=%d hits=%d, want 3/3", r.Total, r.Hits)
	}
	// Latency columns reflect the latest run only.
	if r.LatencyP50 == nil || *r.LatencyP50 != 200 {
		t.Errorf("p50 = %v, want 200 (latest run)", r.LatencyP50)
	}

	buckets, err := store.ReadBucketRange(ctx, "2024-03-15", "2024-03-15")
	if err != nil {
		t.Fatalf("read buckets: %v", err)
	}
	if buckets["0-10"] != 2 || buckets["100+"] != 1 {
		t.Errorf("buckets = %v, want 0-10:2 100+:1", buckets)
	}
}

func TestAggregatorSketchKeepsPercentilesAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "log.jsonl")
	store := newTestStore(t)
	ctx := context.Background()
	opts := Options{SketchEnabled: true, SketchAccuracy: 0.01}

	appendBatch(t, logPath, hit(5, ts(0)), hit(5, ts(1000)), hit(5, ts(2000)))
	agg := New(logPath, store, opts)
	if _, err := agg.RunIncremental(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}

	appendBatch(t, logPath, hit(100, ts(3000)))
	if _, err := agg.RunIncremental(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}

	rows, err := store.ReadRollupRange(ctx, "2024-03-15", "2024-03-15")
	if err != nil {
		t.Fatalf("read rollups: %v", err)
	}
	r := rows[0]
	// With the merged sketch p50 stays near the dominant value instead of
	// being overwritten by the second run's single sample.
	if r.LatencyP50 == nil || *r.LatencyP50 > 6 {
		t.Errorf("merged p50 = %v, want ~5", r.LatencyP50)
	}
	// Average stays exact: (5+5+5+100)/4.
	if r.LatencyAvg == nil || *r.LatencyAvg != 28.75 {
		t.Errorf("merged avg = %v, want 28.75", r.LatencyAvg)
	}
}

func TestAggregatorFullBackfill(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "log.jsonl")
	store := newTestStore(t)
	ctx := context.Background()

	appendBatch(t, logPath, hit(5, ts(0)), hit(9, ts(1000)))
	agg := New(logPath, store, Options{})
	if _, err := agg.RunIncremental(ctx); err != nil {
		t.Fatalf("incremental: %v", err)
	}

	// A full pass revisits everything, ignoring the watermark.
	res, err := agg.RunFullBackfill(ctx)
	if err != nil {
		t.Fatalf("full: %v", err)
	}
	if res.ProcessedCount != 2 {
		t.Errorf("full backfill processed %d, want 2", res.ProcessedCount)
	}
}

func TestAggregatorSkipsMalformedItems(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "log.jsonl")
	store := newTestStore(t)
	ctx := context.Background()

	appendBatch(t, logPath,
		hit(5, ts(0)),
		types.MetricEvent{Result: types.ResultHit, LatencyMs: -1, OccurredAtMs: ts(1000)},
		types.MetricEvent{Result: types.ResultHit, LatencyMs: 5, OccurredAtMs: 0},
	)

	agg := New(logPath, store, Options{})
	res, err := agg.RunIncremental(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ProcessedCount != 1 {
		t.Errorf("processed = %d, want 1", res.ProcessedCount)
	}
	if res.MalformedCount != 2 {
		t.Errorf("malformed = %d, want 2", res.MalformedCount)
	}
}
