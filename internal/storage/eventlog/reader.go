package eventlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/nvoss/lagmark/internal/storage/types"
)

// Reader streams log records front-to-back from the event log file.
// Blank and malformed lines are skipped and counted, never fatal: a
// half-written trailing line from a crashed process must not wedge
// aggregation forever.
type Reader struct {
	path    string
	file    *os.File
	scanner *bufio.Scanner

	// Statistics
	stats ReaderStats
}

// ReaderStats holds event log reader statistics.
type ReaderStats struct {
	RecordsRead    int64
	ItemsRead      int64
	BytesRead      int64
	MalformedLines int64
}

// maxLineSize bounds a single log line (one batch). Batches are producer
// flushes of queued samples, well under this.
const maxLineSize = 16 * 1024 * 1024

// NewReader opens the event log for scanning.
// A missing file surfaces as os.ErrNotExist; callers treat that as an
// empty log.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	return &Reader{
		path:    path,
		file:    f,
		scanner: scanner,
	}, nil
}

// Next returns the next well-formed log record, or io.EOF at the end.
func (r *Reader) Next() (*types.LogRecord, error) {
	for r.scanner.Scan() {
		line := bytes.TrimSpace(r.scanner.Bytes())
		r.stats.BytesRead += int64(len(r.scanner.Bytes()) + 1)
		if len(line) == 0 {
			continue
		}

		var rec types.LogRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			r.stats.MalformedLines++
			continue
		}

		r.stats.RecordsRead++
		r.stats.ItemsRead += int64(len(rec.Items))
		return &rec, nil
	}

	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan event log: %w", err)
	}
	return nil, io.EOF
}

// Stats returns a copy of the reader statistics.
func (r *Reader) Stats() ReaderStats {
	return r.stats
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
