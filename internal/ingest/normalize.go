package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	apperrors "github.com/nvoss/lagmark/internal/errors"
	"github.com/nvoss/lagmark/internal/storage/types"
)

// Rejection reports one dropped batch item by its index.
type Rejection struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// rawBatch is the inbound payload before normalization. Items stays raw
// so one malformed item cannot fail decoding of the whole batch.
type rawBatch struct {
	ExportedAt any             `json:"exportedAt"`
	Items      json.RawMessage `json:"items"`
}

// rawItem tolerates the legacy field names still sent by old producers:
// "type" for eventType, "timestamp" for occurredAtMs, "barcode" for
// subjectKey. This is the only place those spellings exist.
type rawItem struct {
	EventType    *string  `json:"eventType"`
	LegacyType   *string  `json:"type"`
	SubjectKey   *string  `json:"subjectKey"`
	LegacyKey    *string  `json:"barcode"`
	LatencyMs    *float64 `json:"latencyMs"`
	OccurredAtMs *float64 `json:"occurredAtMs"`
	LegacyTs     *float64 `json:"timestamp"`
}

// NormalizeBatch validates an inbound payload and produces canonical
// events. Structural problems (not an object, items missing or empty)
// reject the batch wholesale via a BatchError; malformed individual
// items are dropped and reported in rejected, not fatal to the batch.
func NormalizeBatch(payload []byte) (exportedAt any, accepted []types.MetricEvent, rejected []Rejection, err error) {
	var batch rawBatch
	if err := json.Unmarshal(payload, &batch); err != nil {
		return nil, nil, nil, apperrors.NewBatchError([]string{"payload must be a JSON object"})
	}

	var structural []string

	switch v := batch.ExportedAt.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			structural = append(structural, "exportedAt must be a non-empty string or a number")
		}
	case float64:
		// JSON numbers always decode finite.
	default:
		structural = append(structural, "exportedAt is required and must be a string or number")
	}

	var items []json.RawMessage
	if len(batch.Items) == 0 {
		structural = append(structural, "items must be an array")
	} else if err := json.Unmarshal(batch.Items, &items); err != nil {
		structural = append(structural, "items must be an array")
	} else if len(items) == 0 {
		structural = append(structural, "items array is empty")
	}

	if len(structural) > 0 {
		return nil, nil, nil, apperrors.NewBatchError(structural)
	}

	for i, raw := range items {
		ev, reason := normalizeItem(raw)
		if reason != "" {
			rejected = append(rejected, Rejection{Index: i, Reason: reason})
			continue
		}
		accepted = append(accepted, ev)
	}

	return batch.ExportedAt, accepted, rejected, nil
}

// normalizeItem maps one raw item to a canonical MetricEvent, or returns
// the reason it cannot be.
func normalizeItem(raw json.RawMessage) (types.MetricEvent, string) {
	var item rawItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return types.MetricEvent{}, "item must be an object"
	}

	// Absent kind defaults to hit: historical producers never sent one.
	result := types.ResultHit
	kind := item.EventType
	if kind == nil {
		kind = item.LegacyType
	}
	if kind != nil {
		result = types.ResultType(*kind)
		if !result.Known() {
			return types.MetricEvent{}, fmt.Sprintf("eventType %q must be one of hit, miss, error", *kind)
		}
	}

	key := item.SubjectKey
	if key == nil {
		key = item.LegacyKey
	}
	if key == nil || strings.TrimSpace(*key) == "" {
		return types.MetricEvent{}, "subjectKey must be a non-empty string"
	}

	if item.LatencyMs == nil || math.IsNaN(*item.LatencyMs) || math.IsInf(*item.LatencyMs, 0) || *item.LatencyMs < 0 {
		return types.MetricEvent{}, "latencyMs must be a non-negative number"
	}

	ts := item.OccurredAtMs
	if ts == nil {
		ts = item.LegacyTs
	}
	if ts == nil || math.IsNaN(*ts) || math.IsInf(*ts, 0) || *ts <= 0 {
		return types.MetricEvent{}, "occurredAtMs must be a positive number"
	}

	return types.MetricEvent{
		Result:       result,
		SubjectKey:   strings.TrimSpace(*key),
		LatencyMs:    *item.LatencyMs,
		OccurredAtMs: int64(*ts),
	}, ""
}
