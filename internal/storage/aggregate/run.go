// Package aggregate implements the incremental aggregation of the event
// log into per-day rollups and latency histograms.
package aggregate

import (
	"sort"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/nvoss/lagmark/internal/storage/types"
)

// dayStats accumulates one calendar date's statistics within a single run.
type dayStats struct {
	total  int64
	hits   int64
	misses int64
	errors int64

	// Full sample list for this run; nearest-rank percentiles are exact
	// order statistics over it.
	latencies []float64

	buckets map[string]int64

	// DDSketch for cross-run merging (nil when the feature is disabled)
	sketch *ddsketch.DDSketch
}

// Accumulator buckets events by UTC day and latency band over one
// aggregation run.
type Accumulator struct {
	perDay map[string]*dayStats

	sketchEnabled  bool
	sketchAccuracy float64

	processed int64
	maxTs     int64
}

// NewAccumulator creates a run accumulator. When sketchAccuracy > 0 a
// per-day DDSketch is maintained alongside the exact run statistics.
func NewAccumulator(sketchEnabled bool, sketchAccuracy float64) *Accumulator {
	return &Accumulator{
		perDay:         make(map[string]*dayStats),
		sketchEnabled:  sketchEnabled,
		sketchAccuracy: sketchAccuracy,
	}
}

// Add folds one event into the run.
func (a *Accumulator) Add(ev types.MetricEvent) {
	date := ev.DateKey()

	ds, ok := a.perDay[date]
	if !ok {
		ds = &dayStats{buckets: make(map[string]int64)}
		if a.sketchEnabled {
			if sketch, err := ddsketch.NewDefaultDDSketch(a.sketchAccuracy); err == nil {
				ds.sketch = sketch
			}
		}
		a.perDay[date] = ds
	}

	ds.total++
	switch resultOrDefault(ev.Result) {
	case types.ResultMiss:
		ds.misses++
	case types.ResultError:
		ds.errors++
	default:
		ds.hits++
	}

	ds.latencies = append(ds.latencies, ev.LatencyMs)
	ds.buckets[types.BucketLabelFor(ev.LatencyMs)]++

	if ds.sketch != nil {
		ds.sketch.Add(ev.LatencyMs)
	}

	a.processed++
	if ev.OccurredAtMs > a.maxTs {
		a.maxTs = ev.OccurredAtMs
	}
}

// resultOrDefault maps unrecognized or absent outcome kinds to hit,
// matching what historical producers relied on.
func resultOrDefault(r types.ResultType) types.ResultType {
	if r.Known() {
		return r
	}
	return types.ResultHit
}

// Processed returns the number of events folded into this run.
func (a *Accumulator) Processed() int64 {
	return a.processed
}

// MaxTimestampMs returns the highest event timestamp seen in this run.
func (a *Accumulator) MaxTimestampMs() int64 {
	return a.maxTs
}

// DayDelta is one date's contribution from a single run, ready to merge
// into the aggregate store.
type DayDelta struct {
	Rollup  types.DailyRollup
	Buckets map[string]int64

	// LatencySum is the run's total latency for the date; the sketch
	// merge path uses it to keep the stored average exact across runs.
	LatencySum float64

	// Sketch is the run's latency sketch (nil when disabled).
	Sketch *ddsketch.DDSketch
}

// Deltas finalizes the run: per-date averages and nearest-rank
// percentiles over this run's samples only, sorted ascending by date for
// deterministic merge order.
func (a *Accumulator) Deltas() []DayDelta {
	dates := make([]string, 0, len(a.perDay))
	for date := range a.perDay {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	out := make([]DayDelta, 0, len(dates))
	for _, date := range dates {
		ds := a.perDay[date]

		var sum float64
		for _, v := range ds.latencies {
			sum += v
		}

		out = append(out, DayDelta{
			Rollup: types.DailyRollup{
				Date:       date,
				Total:      ds.total,
				Hits:       ds.hits,
				Misses:     ds.misses,
				Errors:     ds.errors,
				LatencyP50: NearestRank(ds.latencies, 50),
				LatencyP90: NearestRank(ds.latencies, 90),
				LatencyAvg: Mean(ds.latencies),
			},
			Buckets:    ds.buckets,
			LatencySum: sum,
			Sketch:     ds.sketch,
		})
	}
	return out
}
