package types

import (
	"encoding/json"
	"math"
	"testing"
)

func TestBucketLabelFor(t *testing.T) {
	cases := []struct {
		latency float64
		want    string
	}{
		{0, "0-10"},
		{9.99, "0-10"},
		{10, "10-25"},
		{24.5, "10-25"},
		{25, "25-100"},
		{99.99, "25-100"},
		{100, "100+"},
		{5000, "100+"},
	}

	for _, tc := range cases {
		if got := BucketLabelFor(tc.latency); got != tc.want {
			t.Errorf("BucketLabelFor(%v) = %q, want %q", tc.latency, got, tc.want)
		}
	}
}

func TestLatencyBucketsCoverAllValues(t *testing.T) {
	if len(LatencyBuckets) != 4 {
		t.Fatalf("expected 4 bands, got %d", len(LatencyBuckets))
	}
	last := LatencyBuckets[len(LatencyBuckets)-1]
	if !math.IsInf(last.To, 1) {
		t.Errorf("last band must be unbounded, got To=%v", last.To)
	}
	for i := 1; i < len(LatencyBuckets); i++ {
		if LatencyBuckets[i].From != LatencyBuckets[i-1].To {
			t.Errorf("gap between band %d and %d", i-1, i)
		}
	}
}

func TestDateKey(t *testing.T) {
	// 2024-03-15T12:00:00Z
	if got := DateKey(1710504000000); got != "2024-03-15" {
		t.Errorf("DateKey = %q, want 2024-03-15", got)
	}
	// Midnight boundary stays on the UTC date.
	if got := DateKey(1710460800000); got != "2024-03-15" {
		t.Errorf("DateKey at midnight = %q, want 2024-03-15", got)
	}
}

func TestResultTypeKnown(t *testing.T) {
	for _, r := range []ResultType{ResultHit, ResultMiss, ResultError} {
		if !r.Known() {
			t.Errorf("%q should be known", r)
		}
	}
	if ResultType("timeout").Known() {
		t.Error("unknown result type accepted")
	}
}

func TestMetricEventJSONFields(t *testing.T) {
	ev := MetricEvent{Result: ResultHit, SubjectKey: "abc", LatencyMs: 12.5, OccurredAtMs: 1710504000000}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"eventType", "subjectKey", "latencyMs", "occurredAtMs"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing field %q in %s", key, data)
		}
	}
}
