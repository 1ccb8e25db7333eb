package types

import "math"

// LatencyBucket is a fixed, half-open latency band [From, To).
type LatencyBucket struct {
	Label string
	From  float64
	To    float64
}

// LatencyBuckets are the histogram bands, scanned in order; first match
// wins. The final band is open-ended, so any latency >= 100 lands there.
var LatencyBuckets = []LatencyBucket{
	{Label: "0-10", From: 0, To: 10},
	{Label: "10-25", From: 10, To: 25},
	{Label: "25-100", From: 25, To: 100},
	{Label: "100+", From: 100, To: math.Inf(1)},
}

// BucketLabelFor returns the histogram band label for a latency value.
func BucketLabelFor(latencyMs float64) string {
	for _, b := range LatencyBuckets {
		if latencyMs >= b.From && latencyMs < b.To {
			return b.Label
		}
	}
	return LatencyBuckets[len(LatencyBuckets)-1].Label
}

// DailyRollup is one per-day summary row in the aggregate store.
// Counts are additive across aggregation runs; the latency columns hold
// the most recent run's statistics for the date.
type DailyRollup struct {
	Date   string `json:"date"`
	Total  int64  `json:"total"`
	Hits   int64  `json:"hits"`
	Misses int64  `json:"misses"`
	Errors int64  `json:"errors"`

	// Nullable: absent until the date has latency samples.
	LatencyP50 *float64 `json:"latency_p50"`
	LatencyP90 *float64 `json:"latency_p90"`
	LatencyAvg *float64 `json:"latency_avg"`
}

// BucketCount is one (date, bucket) histogram row. Strictly additive.
type BucketCount struct {
	Date   string `json:"date"`
	Bucket string `json:"bucket"`
	Count  int64  `json:"count"`
}
