package aggregate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/nvoss/lagmark/internal/logging"
	"github.com/nvoss/lagmark/internal/storage/eventlog"
	"github.com/nvoss/lagmark/internal/storage/rollup"
)

// Aggregator folds event log entries newer than the watermark into the
// aggregate store. It is a single-writer batch job: overlapping
// invocations are coalesced so at most one run is in flight system-wide.
type Aggregator struct {
	logPath string
	store   *rollup.Store
	opts    Options

	group singleflight.Group
	log   *slog.Logger
}

// Options configures the aggregator.
type Options struct {
	// SketchEnabled maintains per-day DDSketches so percentiles stay
	// correct across runs touching the same date.
	SketchEnabled bool

	// SketchAccuracy is the DDSketch relative accuracy (0.01 = 1%).
	SketchAccuracy float64
}

// Result reports the outcome of one aggregation run.
type Result struct {
	// ProcessedCount is the number of events newly folded into the store.
	ProcessedCount int64

	// MaxTimestampMs is the watermark after the run: the highest event
	// timestamp folded in, or the prior watermark for a no-op run.
	MaxTimestampMs int64

	// SkippedCount is the number of events at or below the watermark.
	SkippedCount int64

	// MalformedCount is the number of unusable log lines and items.
	MalformedCount int64
}

// New creates an aggregator over the given event log and store.
func New(logPath string, store *rollup.Store, opts Options) *Aggregator {
	if opts.SketchEnabled && opts.SketchAccuracy <= 0 {
		opts.SketchAccuracy = 0.01
	}
	return &Aggregator{
		logPath: logPath,
		store:   store,
		opts:    opts,
		log:     logging.Component("aggregator"),
	}
}

// RunIncremental aggregates events newer than the stored watermark.
func (a *Aggregator) RunIncremental(ctx context.Context) (*Result, error) {
	return a.run(ctx, false)
}

// RunFullBackfill aggregates the entire log, ignoring the stored
// watermark. The reset is never persisted on its own; only a successful
// merge moves the watermark. Intended for manual rebuilds against an
// empty store, not for the incremental tick.
func (a *Aggregator) RunFullBackfill(ctx context.Context) (*Result, error) {
	return a.run(ctx, true)
}

// run serializes concurrent invocations: callers arriving while a run is
// in flight share that run's result instead of double-counting against a
// stale watermark.
func (a *Aggregator) run(ctx context.Context, full bool) (*Result, error) {
	v, err, shared := a.group.Do("run", func() (any, error) {
		return a.runLocked(ctx, full)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		a.log.Debug("joined in-flight aggregation run")
	}
	return v.(*Result), nil
}

func (a *Aggregator) runLocked(ctx context.Context, full bool) (*Result, error) {
	var watermark int64
	if !full {
		w, err := a.store.GetWatermark(ctx)
		if err != nil {
			return nil, fmt.Errorf("load watermark: %w", err)
		}
		watermark = w
	}

	reader, err := eventlog.NewReader(a.logPath)
	if errors.Is(err, fs.ErrNotExist) {
		// No log yet means nothing to do, not a failure.
		return &Result{MaxTimestampMs: watermark}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer reader.Close()

	acc := NewAccumulator(a.opts.SketchEnabled, a.opts.SketchAccuracy)
	var skipped, malformedItems int64

	for {
		rec, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read event log: %w", err)
		}

		for _, ev := range rec.Items {
			// Guard against pre-validation legacy entries.
			if ev.OccurredAtMs <= 0 || ev.LatencyMs < 0 {
				malformedItems++
				continue
			}
			if ev.OccurredAtMs <= watermark {
				skipped++
				continue
			}
			acc.Add(ev)
		}
	}

	malformed := reader.Stats().MalformedLines + malformedItems

	if acc.Processed() == 0 {
		a.log.Info("aggregation run was a no-op",
			"watermark_ms", watermark, "skipped", skipped, "malformed", malformed)
		return &Result{
			MaxTimestampMs: watermark,
			SkippedCount:   skipped,
			MalformedCount: malformed,
		}, nil
	}

	if err := a.merge(ctx, acc); err != nil {
		return nil, err
	}

	res := &Result{
		ProcessedCount: acc.Processed(),
		MaxTimestampMs: acc.MaxTimestampMs(),
		SkippedCount:   skipped,
		MalformedCount: malformed,
	}

	a.log.Info("aggregation run committed",
		"processed", res.ProcessedCount,
		"watermark_ms", res.MaxTimestampMs,
		"skipped", res.SkippedCount,
		"malformed", res.MalformedCount,
		"full", full)

	return res, nil
}

// merge applies the run's deltas and the watermark advance in one
// transaction. A failure rolls everything back; the next run reprocesses
// the same window from the prior watermark.
func (a *Aggregator) merge(ctx context.Context, acc *Accumulator) error {
	mtx, err := a.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer mtx.Rollback()

	for _, delta := range acc.Deltas() {
		date := delta.Rollup.Date

		var prevTotal int64
		var prevAvg *float64
		if a.opts.SketchEnabled {
			prev, err := mtx.RollupRow(ctx, date)
			if err != nil {
				return err
			}
			if prev != nil {
				prevTotal = prev.Total
				prevAvg = prev.LatencyAvg
			}
		}

		if err := mtx.UpsertDailyRollup(ctx, delta.Rollup); err != nil {
			return err
		}

		if a.opts.SketchEnabled && delta.Sketch != nil {
			if err := a.mergeSketch(ctx, mtx, delta, prevTotal, prevAvg); err != nil {
				return err
			}
		}

		for bucket, count := range delta.Buckets {
			if err := mtx.UpsertBucketCount(ctx, date, bucket, count); err != nil {
				return err
			}
		}
	}

	if err := mtx.SetWatermark(ctx, acc.MaxTimestampMs()); err != nil {
		return err
	}

	return mtx.Commit()
}

// mergeSketch folds the run's sketch into the stored per-day sketch and
// rewrites the date's latency columns from the merged state: quantiles
// from the sketch, the average recomputed exactly from the additive
// counts.
func (a *Aggregator) mergeSketch(ctx context.Context, mtx *rollup.MergeTx, delta DayDelta, prevTotal int64, prevAvg *float64) error {
	date := delta.Rollup.Date

	merged, err := mtx.MergeSketch(ctx, date, delta.Sketch)
	if err != nil {
		return err
	}

	p50, err := merged.GetValueAtQuantile(0.50)
	if err != nil {
		return fmt.Errorf("sketch p50 %s: %w", date, err)
	}
	p90, err := merged.GetValueAtQuantile(0.90)
	if err != nil {
		return fmt.Errorf("sketch p90 %s: %w", date, err)
	}

	newTotal := prevTotal + delta.Rollup.Total
	sum := delta.LatencySum
	if prevAvg != nil {
		sum += *prevAvg * float64(prevTotal)
	}
	avg := sum / float64(newTotal)

	return mtx.OverwriteLatency(ctx, date, &p50, &p90, &avg)
}
