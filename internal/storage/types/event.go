package types

import "time"

// ResultType indicates the outcome kind of a lookup.
type ResultType string

const (
	// ResultHit is a successful lookup that found its subject.
	ResultHit ResultType = "hit"
	// ResultMiss is a lookup that found nothing.
	ResultMiss ResultType = "miss"
	// ResultError is a lookup that failed.
	ResultError ResultType = "error"
)

// Known returns true for one of the enumerated outcome kinds.
func (r ResultType) Known() bool {
	switch r {
	case ResultHit, ResultMiss, ResultError:
		return true
	default:
		return false
	}
}

// MetricEvent represents a single observed lookup outcome.
// Events are immutable once appended to the event log; corrections happen
// only via new events.
type MetricEvent struct {
	// Result is the outcome kind.
	Result ResultType `json:"eventType"`

	// SubjectKey identifies what was looked up (opaque).
	SubjectKey string `json:"subjectKey"`

	// LatencyMs is the observed latency in milliseconds. Never negative.
	LatencyMs float64 `json:"latencyMs"`

	// OccurredAtMs is the client-observed timestamp in Unix milliseconds.
	OccurredAtMs int64 `json:"occurredAtMs"`
}

// OccurredAtTime returns the event timestamp as a time.Time.
func (e *MetricEvent) OccurredAtTime() time.Time {
	return time.UnixMilli(e.OccurredAtMs)
}

// DateKey returns the UTC calendar date of the event, formatted YYYY-MM-DD.
func (e *MetricEvent) DateKey() string {
	return DateKey(e.OccurredAtMs)
}

// DateKey returns the UTC calendar date of a Unix-milliseconds timestamp.
func DateKey(tsMs int64) string {
	return time.UnixMilli(tsMs).UTC().Format(DateLayout)
}

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// LogRecord is the durable unit appended to the event log: one accepted
// batch per line. ServerTimestamp is assigned by the ingestion gateway at
// accept time, not by the producer.
type LogRecord struct {
	// ExportedAt is the client-side export time: an ISO string or a
	// numeric timestamp, recorded as received.
	ExportedAt any `json:"exportedAt"`

	// Items are the accepted, normalized events of the batch.
	Items []MetricEvent `json:"items"`

	// ServerTimestamp is the gateway accept time in Unix milliseconds.
	ServerTimestamp int64 `json:"serverTimestamp"`
}
