// Package eventlog implements the append-only, line-delimited event log.
//
// The log is the sole source of truth for ingested metric batches. Each
// accepted batch is one JSON object per line; the aggregate store is a
// derived, rebuildable cache over it.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nvoss/lagmark/internal/storage/types"
)

// Writer appends log records to the event log file.
// Each record is written as one atomic line write; partial lines are
// never acknowledged as success.
type Writer struct {
	mu sync.Mutex

	path   string
	file   *os.File
	closed bool

	opts Options

	// Statistics
	stats WriterStats
}

// Options configures the event log writer.
type Options struct {
	// SyncMode controls how appends are synced to disk.
	// "sync" - write-through, rely on the OS page cache
	// "fsync" - fsync after each appended record
	SyncMode string
}

// DefaultOptions returns default event log options.
func DefaultOptions() Options {
	return Options{
		SyncMode: "fsync",
	}
}

// WriterStats holds event log writer statistics.
type WriterStats struct {
	RecordsAppended int64
	ItemsAppended   int64
	BytesWritten    int64
	Errors          int64
}

// NewWriter opens the event log for appending, creating it if absent.
func NewWriter(path string, opts Options) (*Writer, error) {
	if opts.SyncMode == "" {
		opts.SyncMode = DefaultOptions().SyncMode
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	return &Writer{
		path: path,
		file: f,
		opts: opts,
	}, nil
}

// Append durably writes one log record as a single line.
// It returns only after the write (and fsync, when configured) completed,
// so callers may acknowledge the batch on a nil return.
func (w *Writer) Append(rec types.LogRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	line := append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("append: writer is closed")
	}

	n, err := w.file.Write(line)
	if err != nil {
		w.stats.Errors++
		return fmt.Errorf("append record: %w", err)
	}

	if w.opts.SyncMode == "fsync" {
		if err := w.file.Sync(); err != nil {
			w.stats.Errors++
			return fmt.Errorf("sync event log: %w", err)
		}
	}

	w.stats.RecordsAppended++
	w.stats.ItemsAppended += int64(len(rec.Items))
	w.stats.BytesWritten += int64(n)
	return nil
}

// Stats returns a copy of the writer statistics.
func (w *Writer) Stats() WriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Path returns the log file path.
func (w *Writer) Path() string {
	return w.path
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}
