// Package ingest implements the ingestion gateway: validation and
// normalization of inbound event batches and their durable append to the
// event log.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/nvoss/lagmark/internal/errors"
	"github.com/nvoss/lagmark/internal/logging"
	"github.com/nvoss/lagmark/internal/storage/eventlog"
	"github.com/nvoss/lagmark/internal/storage/types"
)

// Gateway accepts event batches, filters invalid items, and appends one
// log record per accepted batch. The append completes before the batch
// is acknowledged; a failed append is a retriable persistence error and
// the caller retries the whole batch.
type Gateway struct {
	writer *eventlog.Writer
	now    func() time.Time

	log *slog.Logger
}

// NewGateway creates an ingestion gateway over the event log writer.
func NewGateway(writer *eventlog.Writer) *Gateway {
	return &Gateway{
		writer: writer,
		now:    time.Now,
		log:    logging.Component("ingest"),
	}
}

// Result reports an accepted batch. Rejected items ride along so callers
// see what was dropped without the batch failing.
type Result struct {
	Accepted        int
	Rejected        []Rejection
	ServerTimestamp int64
}

// Ingest validates one batch payload and durably appends the accepted
// items. Returns a BatchError (validation) when nothing was acceptable,
// or a persistence error when the append failed.
func (g *Gateway) Ingest(ctx context.Context, payload []byte) (*Result, error) {
	serverTimestamp := g.now().UnixMilli()

	exportedAt, accepted, rejected, err := NormalizeBatch(payload)
	if err != nil {
		return nil, err
	}

	if len(accepted) == 0 {
		reasons := make([]string, 0, len(rejected)+1)
		for _, r := range rejected {
			reasons = append(reasons, fmt.Sprintf("item %d: %s", r.Index, r.Reason))
		}
		reasons = append(reasons, "no valid items in payload")
		return nil, apperrors.NewBatchError(reasons)
	}

	rec := types.LogRecord{
		ExportedAt:      exportedAt,
		Items:           accepted,
		ServerTimestamp: serverTimestamp,
	}

	if err := g.writer.Append(rec); err != nil {
		g.log.Error("event log append failed", "error", err, "items", len(accepted))
		return nil, fmt.Errorf("%w: %w", apperrors.ErrLogAppend, err)
	}

	if len(rejected) > 0 {
		g.log.Warn("batch accepted with dropped items",
			"accepted", len(accepted), "rejected", len(rejected))
	}

	return &Result{
		Accepted:        len(accepted),
		Rejected:        rejected,
		ServerTimestamp: serverTimestamp,
	}, nil
}
