package ingest

import (
	"context"
	"path/filepath"
	"testing"

	apperrors "github.com/nvoss/lagmark/internal/errors"
	"github.com/nvoss/lagmark/internal/storage/eventlog"
	"github.com/nvoss/lagmark/internal/storage/types"
)

func TestNormalizeBatchAccepted(t *testing.T) {
	payload := []byte(`{
		"exportedAt": "2024-03-15T12:00:00Z",
		"items": [
			{"eventType": "hit", "subjectKey": "a", "latencyMs": 5, "occurredAtMs": 1710504000000},
			{"eventType": "miss", "subjectKey": "b", "latencyMs": 42.5, "occurredAtMs": 1710504001000}
		]
	}`)

	exportedAt, accepted, rejected, err := NormalizeBatch(payload)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if exportedAt != "2024-03-15T12:00:00Z" {
		t.Errorf("exportedAt = %v", exportedAt)
	}
	if len(accepted) != 2 || len(rejected) != 0 {
		t.Fatalf("accepted=%d rejected=%d, want 2/0", len(accepted), len(rejected))
	}
	if accepted[1].Result != types.ResultMiss || accepted[1].LatencyMs != 42.5 {
		t.Errorf("unexpected second event %+v", accepted[1])
	}
}

func TestNormalizeBatchLegacyFieldNames(t *testing.T) {
	payload := []byte(`{
		"exportedAt": 1710504000000,
		"items": [
			{"type": "error", "barcode": "legacy-key", "latencyMs": 7, "timestamp": 1710504000000}
		]
	}`)

	_, accepted, rejected, err := NormalizeBatch(payload)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(accepted) != 1 || len(rejected) != 0 {
		t.Fatalf("accepted=%d rejected=%d, want 1/0", len(accepted), len(rejected))
	}
	ev := accepted[0]
	if ev.Result != types.ResultError || ev.SubjectKey != "legacy-key" || ev.OccurredAtMs != 1710504000000 {
		t.Errorf("legacy fields not mapped: %+v", ev)
	}
}

func TestNormalizeBatchDefaultsAbsentKindToHit(t *testing.T) {
	payload := []byte(`{
		"exportedAt": 1,
		"items": [{"subjectKey": "a", "latencyMs": 1, "occurredAtMs": 1710504000000}]
	}`)

	_, accepted, _, err := NormalizeBatch(payload)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if accepted[0].Result != types.ResultHit {
		t.Errorf("result = %q, want hit", accepted[0].Result)
	}
}

func TestNormalizeBatchRejectsBadItems(t *testing.T) {
	payload := []byte(`{
		"exportedAt": 1,
		"items": [
			{"eventType": "hit", "subjectKey": "ok", "latencyMs": 1, "occurredAtMs": 1710504000000},
			{"eventType": "timeout", "subjectKey": "a", "latencyMs": 1, "occurredAtMs": 1710504000000},
			{"eventType": "hit", "subjectKey": "  ", "latencyMs": 1, "occurredAtMs": 1710504000000},
			{"eventType": "hit", "subjectKey": "a", "latencyMs": -1, "occurredAtMs": 1710504000000},
			{"eventType": "hit", "subjectKey": "a", "latencyMs": 1, "occurredAtMs": 0},
			"not an object"
		]
	}`)

	_, accepted, rejected, err := NormalizeBatch(payload)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(accepted) != 1 {
		t.Errorf("accepted = %d, want 1", len(accepted))
	}
	if len(rejected) != 5 {
		t.Fatalf("rejected = %d, want 5", len(rejected))
	}
	if len(accepted)+len(rejected) != 6 {
		t.Error("accepted + rejected must cover every item")
	}
	if rejected[0].Index != 1 {
		t.Errorf("first rejection index = %d, want 1", rejected[0].Index)
	}
}

func TestNormalizeBatchStructuralFailures(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"not json", `{{{`},
		{"missing exportedAt", `{"items": [{"subjectKey":"a","latencyMs":1,"occurredAtMs":1}]}`},
		{"missing items", `{"exportedAt": 1}`},
		{"items not array", `{"exportedAt": 1, "items": "nope"}`},
		{"empty items", `{"exportedAt": 1, "items": []}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, _, err := NormalizeBatch([]byte(tc.payload))
			var batchErr *apperrors.BatchError
			if !apperrors.As(err, &batchErr) {
				t.Fatalf("expected BatchError, got %v", err)
			}
			if !apperrors.IsValidation(err) {
				t.Error("BatchError must be a validation error")
			}
		})
	}
}

func newTestGateway(t *testing.T) (*Gateway, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "log.jsonl")
	w, err := eventlog.NewWriter(path, eventlog.Options{SyncMode: "sync"})
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return NewGateway(w), path
}

func TestGatewayIngest(t *testing.T) {
	g, path := newTestGateway(t)

	res, err := g.Ingest(context.Background(), []byte(`{
		"exportedAt": "2024-03-15T12:00:00Z",
		"items": [
			{"eventType": "hit", "subjectKey": "a", "latencyMs": 5, "occurredAtMs": 1710504000000},
			{"eventType": "bogus", "subjectKey": "b", "latencyMs": 5, "occurredAtMs": 1710504000000}
		]
	}`))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Accepted != 1 || len(res.Rejected) != 1 {
		t.Errorf("accepted=%d rejected=%d, want 1/1", res.Accepted, len(res.Rejected))
	}
	if res.ServerTimestamp == 0 {
		t.Error("server timestamp not assigned")
	}

	// The batch is durable before the acknowledgement.
	r, err := eventlog.NewReader(path)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer r.Close()
	rec, err := r.Next()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rec.Items) != 1 || rec.ServerTimestamp != res.ServerTimestamp {
		t.Errorf("persisted record %+v does not match result %+v", rec, res)
	}
}

func TestGatewayRejectsAllInvalid(t *testing.T) {
	g, path := newTestGateway(t)

	_, err := g.Ingest(context.Background(), []byte(`{
		"exportedAt": 1,
		"items": [{"subjectKey": "", "latencyMs": 1, "occurredAtMs": 1}]
	}`))
	var batchErr *apperrors.BatchError
	if !apperrors.As(err, &batchErr) {
		t.Fatalf("expected BatchError, got %v", err)
	}
	// Per-item reasons plus the overall rejection.
	if len(batchErr.Reasons) != 2 {
		t.Errorf("reasons = %v, want item reason plus summary", batchErr.Reasons)
	}

	// Nothing may reach the log for a rejected batch.
	r, err := eventlog.NewReader(path)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer r.Close()
	if _, err := r.Next(); err == nil {
		t.Error("rejected batch was appended to the log")
	}
}
