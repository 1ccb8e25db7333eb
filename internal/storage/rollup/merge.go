package rollup

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/DataDog/sketches-go/ddsketch"
	ddstore "github.com/DataDog/sketches-go/ddsketch/store"

	"github.com/nvoss/lagmark/internal/storage/types"
)

// MergeTx is one atomic merge of an aggregation run into the store.
// Rollup upserts, bucket upserts and the watermark advance all happen in
// the same transaction: either everything commits or nothing does, so an
// aborted run leaves the store exactly as before.
type MergeTx struct {
	tx   *sql.Tx
	done bool
}

// Begin starts a merge transaction.
func (s *Store) Begin(ctx context.Context) (*MergeTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin merge tx: %w", err)
	}
	return &MergeTx{tx: tx}, nil
}

// UpsertDailyRollup inserts or merges one per-day rollup row.
// Counts are summed with any existing row; the latency columns are
// overwritten with the given values.
func (m *MergeTx) UpsertDailyRollup(ctx context.Context, r types.DailyRollup) error {
	_, err := m.tx.ExecContext(ctx, `
		INSERT INTO lookup_daily_rollup
			(date, total, hits, misses, errors, latency_p50, latency_p90, latency_avg)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (date) DO UPDATE SET
			total       = lookup_daily_rollup.total + excluded.total,
			hits        = lookup_daily_rollup.hits + excluded.hits,
			misses      = lookup_daily_rollup.misses + excluded.misses,
			errors      = lookup_daily_rollup.errors + excluded.errors,
			latency_p50 = excluded.latency_p50,
			latency_p90 = excluded.latency_p90,
			latency_avg = excluded.latency_avg`,
		r.Date, r.Total, r.Hits, r.Misses, r.Errors,
		nullable(r.LatencyP50), nullable(r.LatencyP90), nullable(r.LatencyAvg))
	if err != nil {
		return fmt.Errorf("upsert daily rollup %s: %w", r.Date, err)
	}
	return nil
}

// UpsertBucketCount adds delta to one (date, bucket) histogram count.
// Strictly additive.
func (m *MergeTx) UpsertBucketCount(ctx context.Context, date, bucket string, delta int64) error {
	_, err := m.tx.ExecContext(ctx, `
		INSERT INTO lookup_latency_buckets (date, bucket, count)
		VALUES (?, ?, ?)
		ON CONFLICT (date, bucket) DO UPDATE SET
			count = lookup_latency_buckets.count + excluded.count`,
		date, bucket, delta)
	if err != nil {
		return fmt.Errorf("upsert bucket %s/%s: %w", date, bucket, err)
	}
	return nil
}

// RollupRow returns the existing rollup row for a date, or nil when the
// date has never been merged. Reads inside the transaction, so the row
// reflects upserts already performed by this merge.
func (m *MergeTx) RollupRow(ctx context.Context, date string) (*types.DailyRollup, error) {
	var r types.DailyRollup
	var p50, p90, avg sql.NullFloat64
	err := m.tx.QueryRowContext(ctx, `
		SELECT date, total, hits, misses, errors,
		       latency_p50, latency_p90, latency_avg
		FROM lookup_daily_rollup
		WHERE date = ?`, date).Scan(
		&r.Date, &r.Total, &r.Hits, &r.Misses, &r.Errors, &p50, &p90, &avg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read rollup row %s: %w", date, err)
	}
	if p50.Valid {
		r.LatencyP50 = &p50.Float64
	}
	if p90.Valid {
		r.LatencyP90 = &p90.Float64
	}
	if avg.Valid {
		r.LatencyAvg = &avg.Float64
	}
	return &r, nil
}

// OverwriteLatency rewrites only the latency columns of an existing row.
// Used by the sketch feature to replace a run's local percentiles with
// values from the merged cross-run sketch.
func (m *MergeTx) OverwriteLatency(ctx context.Context, date string, p50, p90, avg *float64) error {
	_, err := m.tx.ExecContext(ctx, `
		UPDATE lookup_daily_rollup
		SET latency_p50 = ?, latency_p90 = ?, latency_avg = ?
		WHERE date = ?`,
		nullable(p50), nullable(p90), nullable(avg), date)
	if err != nil {
		return fmt.Errorf("overwrite latency %s: %w", date, err)
	}
	return nil
}

// MergeSketch merges a run's latency sketch into the stored per-day
// sketch and persists the result. Returns the merged sketch so the caller
// can extract cross-run quantiles.
func (m *MergeTx) MergeSketch(ctx context.Context, date string, run *ddsketch.DDSketch) (*ddsketch.DDSketch, error) {
	var blob []byte
	err := m.tx.QueryRowContext(ctx,
		`SELECT sketch FROM lookup_latency_sketch WHERE date = ?`, date).Scan(&blob)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("read sketch %s: %w", date, err)
	}

	merged := run
	if len(blob) > 0 {
		stored, err := ddsketch.DecodeDDSketch(blob, ddstore.BufferedPaginatedStoreConstructor, nil)
		if err != nil {
			return nil, fmt.Errorf("decode sketch %s: %w", date, err)
		}
		if err := stored.MergeWith(run); err != nil {
			return nil, fmt.Errorf("merge sketch %s: %w", date, err)
		}
		merged = stored
	}

	var encoded []byte
	merged.Encode(&encoded, false)

	_, err = m.tx.ExecContext(ctx, `
		INSERT INTO lookup_latency_sketch (date, sketch)
		VALUES (?, ?)
		ON CONFLICT (date) DO UPDATE SET
			sketch = excluded.sketch`,
		date, encoded)
	if err != nil {
		return nil, fmt.Errorf("store sketch %s: %w", date, err)
	}

	return merged, nil
}

// SetWatermark records the highest processed event timestamp.
// Must be called inside the same transaction as the upserts, so the
// watermark never advances past data that failed to persist.
func (m *MergeTx) SetWatermark(ctx context.Context, tsMs int64) error {
	_, err := m.tx.ExecContext(ctx, `
		INSERT INTO metrics_meta (key, value)
		VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value`,
		watermarkKey, fmt.Sprintf("%d", tsMs))
	if err != nil {
		return fmt.Errorf("set watermark: %w", err)
	}
	return nil
}

// Commit commits the merge.
func (m *MergeTx) Commit() error {
	if m.done {
		return nil
	}
	m.done = true
	if err := m.tx.Commit(); err != nil {
		return fmt.Errorf("commit merge: %w", err)
	}
	return nil
}

// Rollback aborts the merge. Safe to call after Commit.
func (m *MergeTx) Rollback() error {
	if m.done {
		return nil
	}
	m.done = true
	return m.tx.Rollback()
}

// nullable converts an optional float to its database value.
func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
