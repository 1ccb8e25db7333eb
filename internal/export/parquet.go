// Package export writes aggregate store contents to Parquet files for
// offline analysis. Exports are read-only snapshots; the store and the
// event log are never modified.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/nvoss/lagmark/internal/logging"
	"github.com/nvoss/lagmark/internal/storage/query"
	"github.com/nvoss/lagmark/internal/storage/rollup"
	"github.com/nvoss/lagmark/internal/storage/types"
)

// RollupRow is one daily rollup in Parquet form. Absent latency stats
// are encoded as nulls via optional columns.
type RollupRow struct {
	Date       string  `parquet:"date,zstd"`
	Total      int64   `parquet:"total"`
	Hits       int64   `parquet:"hits"`
	Misses     int64   `parquet:"misses"`
	Errors     int64   `parquet:"errors"`
	LatencyP50 float64 `parquet:"latency_p50,optional"`
	LatencyP90 float64 `parquet:"latency_p90,optional"`
	LatencyAvg float64 `parquet:"latency_avg,optional"`
}

// BucketRow is one (date, bucket) histogram count in Parquet form.
type BucketRow struct {
	Date   string `parquet:"date,zstd"`
	Bucket string `parquet:"bucket,zstd"`
	Count  int64  `parquet:"count"`
}

func rollupToRow(r types.DailyRollup) RollupRow {
	row := RollupRow{
		Date:   r.Date,
		Total:  r.Total,
		Hits:   r.Hits,
		Misses: r.Misses,
		Errors: r.Errors,
	}
	if r.LatencyP50 != nil {
		row.LatencyP50 = *r.LatencyP50
	}
	if r.LatencyP90 != nil {
		row.LatencyP90 = *r.LatencyP90
	}
	if r.LatencyAvg != nil {
		row.LatencyAvg = *r.LatencyAvg
	}
	return row
}

// compressionCodec maps a config compression name to a parquet codec.
func compressionCodec(name string) compress.Codec {
	switch name {
	case "snappy":
		return &parquet.Snappy
	case "gzip":
		return &parquet.Gzip
	case "lz4":
		return &parquet.Lz4Raw
	case "none":
		return &parquet.Uncompressed
	default:
		return &parquet.Zstd
	}
}

// Options configures an export run.
type Options struct {
	// OutDir receives the generated files.
	OutDir string

	// Compression names the parquet codec ("zstd" when empty).
	Compression string
}

// Result reports what an export run produced.
type Result struct {
	RollupFile string
	BucketFile string
	RollupRows int
	BucketRows int
}

// Exporter snapshots the aggregate store to Parquet.
type Exporter struct {
	store *rollup.Store
	opts  Options

	log *slog.Logger
}

// New creates an exporter over the aggregate store.
func New(store *rollup.Store, opts Options) *Exporter {
	if opts.Compression == "" {
		opts.Compression = "zstd"
	}
	return &Exporter{
		store: store,
		opts:  opts,
		log:   logging.Component("export"),
	}
}

// Run exports the daily rollups and latency bucket rows inside the
// window to two Parquet files named after the window bounds.
func (e *Exporter) Run(ctx context.Context, w query.Window) (*Result, error) {
	if err := os.MkdirAll(e.opts.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}

	rollups, err := e.store.ReadRollupRange(ctx, w.From, w.To)
	if err != nil {
		return nil, fmt.Errorf("read rollups: %w", err)
	}
	buckets, err := e.store.ReadBucketRows(ctx, w.From, w.To)
	if err != nil {
		return nil, fmt.Errorf("read buckets: %w", err)
	}

	res := &Result{
		RollupFile: filepath.Join(e.opts.OutDir, fmt.Sprintf("rollups-%s-%s.parquet", w.From, w.To)),
		BucketFile: filepath.Join(e.opts.OutDir, fmt.Sprintf("latency-buckets-%s-%s.parquet", w.From, w.To)),
		RollupRows: len(rollups),
		BucketRows: len(buckets),
	}

	rollupRows := make([]RollupRow, 0, len(rollups))
	for _, r := range rollups {
		rollupRows = append(rollupRows, rollupToRow(r))
	}
	if err := writeParquet(res.RollupFile, rollupRows, e.opts.Compression); err != nil {
		return nil, err
	}

	bucketRows := make([]BucketRow, 0, len(buckets))
	for _, b := range buckets {
		bucketRows = append(bucketRows, BucketRow{Date: b.Date, Bucket: b.Bucket, Count: b.Count})
	}
	if err := writeParquet(res.BucketFile, bucketRows, e.opts.Compression); err != nil {
		return nil, err
	}

	e.log.Info("export complete",
		"rollup_rows", res.RollupRows,
		"bucket_rows", res.BucketRows,
		"out_dir", e.opts.OutDir)
	return res, nil
}

func writeParquet[T any](path string, rows []T, compression string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := parquet.NewGenericWriter[T](f, parquet.Compression(compressionCodec(compression)))
	if len(rows) > 0 {
		if _, err := w.Write(rows); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := w.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalize %s: %w", path, err)
	}
	return f.Close()
}
