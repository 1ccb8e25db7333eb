// Package rollup implements the persistent aggregate store.
//
// The store is an embedded DuckDB database with three tables: a meta table
// holding the aggregation watermark, per-day rollup rows, and per-day
// latency bucket counts. It is a derived cache over the event log and can
// be rebuilt from it at any time.
package rollup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/nvoss/lagmark/internal/logging"
	"github.com/nvoss/lagmark/internal/storage/types"
)

// watermarkKey is the meta_state key tracking the highest event timestamp
// already folded into aggregates.
const watermarkKey = "metrics_last_processed_timestamp_ms"

// Store provides access to the aggregate database.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (creating if necessary) the aggregate store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{
		db:  db,
		log: logging.Component("rollup"),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return s, nil
}

// initSchema creates the tables if they do not exist.
func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS metrics_meta (
			key   VARCHAR PRIMARY KEY,
			value VARCHAR NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS lookup_daily_rollup (
			date        VARCHAR PRIMARY KEY,
			total       BIGINT NOT NULL DEFAULT 0,
			hits        BIGINT NOT NULL DEFAULT 0,
			misses      BIGINT NOT NULL DEFAULT 0,
			errors      BIGINT NOT NULL DEFAULT 0,
			latency_p50 DOUBLE,
			latency_p90 DOUBLE,
			latency_avg DOUBLE
		)`,
		`CREATE TABLE IF NOT EXISTS lookup_latency_buckets (
			date   VARCHAR NOT NULL,
			bucket VARCHAR NOT NULL,
			count  BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (date, bucket)
		)`,
		`CREATE TABLE IF NOT EXISTS lookup_latency_sketch (
			date   VARCHAR PRIMARY KEY,
			sketch BLOB NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// Close closes the store.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetWatermark returns the highest event timestamp (Unix milliseconds)
// already folded into aggregates, or 0 when none has been recorded.
func (s *Store) GetWatermark(ctx context.Context) (int64, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM metrics_meta WHERE key = ?`, watermarkKey).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read watermark: %w", err)
	}

	ts, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse watermark %q: %w", value, err)
	}
	return ts, nil
}

// ReadRollupRange returns per-day rollup rows for date range [from, to],
// ascending by date. Dates are YYYY-MM-DD strings; an empty range yields
// an empty slice, never an error.
func (s *Store) ReadRollupRange(ctx context.Context, from, to string) ([]types.DailyRollup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, total, hits, misses, errors,
		       latency_p50, latency_p90, latency_avg
		FROM lookup_daily_rollup
		WHERE date BETWEEN ? AND ?
		ORDER BY date ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query rollup range: %w", err)
	}
	defer rows.Close()

	var out []types.DailyRollup
	for rows.Next() {
		var r types.DailyRollup
		var p50, p90, avg sql.NullFloat64
		if err := rows.Scan(&r.Date, &r.Total, &r.Hits, &r.Misses, &r.Errors,
			&p50, &p90, &avg); err != nil {
			return nil, fmt.Errorf("scan rollup row: %w", err)
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
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rollup rows: %w", err)
	}
	return out, nil
}

// ReadBucketRange returns the summed per-bucket counts across the date
// range [from, to]. Summing raw per-day bucket counts is always safe
// because they are purely additive.
func (s *Store) ReadBucketRange(ctx context.Context, from, to string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bucket, SUM(count) AS count
		FROM lookup_latency_buckets
		WHERE date BETWEEN ? AND ?
		GROUP BY bucket`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query bucket range: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var bucket string
		var count int64
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, fmt.Errorf("scan bucket row: %w", err)
		}
		out[bucket] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bucket rows: %w", err)
	}
	return out, nil
}

// ReadBucketRows returns the raw per-day bucket rows across the date
// range [from, to], ordered by date then bucket label.
func (s *Store) ReadBucketRows(ctx context.Context, from, to string) ([]types.BucketCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, bucket, count
		FROM lookup_latency_buckets
		WHERE date BETWEEN ? AND ?
		ORDER BY date ASC, bucket ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query bucket rows: %w", err)
	}
	defer rows.Close()

	var out []types.BucketCount
	for rows.Next() {
		var row types.BucketCount
		if err := rows.Scan(&row.Date, &row.Bucket, &row.Count); err != nil {
			return nil, fmt.Errorf("scan bucket row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bucket rows: %w", err)
	}
	return out, nil
}
