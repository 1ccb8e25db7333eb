// Package query provides read-only range queries over the aggregate
// store: summaries, latency histograms, and daily time series.
//
// The query path never touches the raw event log; every operation is
// O(days in range) against the rollup tables.
package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/nvoss/lagmark/internal/logging"
	"github.com/nvoss/lagmark/internal/storage/rollup"
	"github.com/nvoss/lagmark/internal/storage/types"
)

// Service answers range queries from the aggregate store.
type Service struct {
	store        *rollup.Store
	defaultRange string
	now          func() time.Time

	log *slog.Logger
}

// New creates a query service. defaultRange is used when a request names
// no window ("7d" when empty).
func New(store *rollup.Store, defaultRange string) *Service {
	return &Service{
		store:        store,
		defaultRange: defaultRange,
		now:          time.Now,
		log:          logging.Component("query"),
	}
}

// Params are the raw window parameters of a query.
type Params struct {
	Range string
	From  string
	To    string
}

// Totals are summed counters across a window.
type Totals struct {
	Total  int64 `json:"total"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Errors int64 `json:"errors"`
}

// LatencyStats are aggregate latency estimates across a window. All
// fields are null when the window holds no events.
type LatencyStats struct {
	P50 *float64 `json:"p50"`
	P90 *float64 `json:"p90"`
	Avg *float64 `json:"avg"`
}

// Summary is the response of the summary query.
type Summary struct {
	Range     string              `json:"range,omitempty"`
	From      string              `json:"from"`
	To        string              `json:"to"`
	Totals    Totals              `json:"totals"`
	HitRate   float64             `json:"hitRate"`
	ErrorRate float64             `json:"errorRate"`
	Latency   LatencyStats        `json:"latency"`
	Daily     []types.DailyRollup `json:"daily"`
}

// Summary sums counters across the window and estimates window-wide
// latency as the event-count-weighted mean of each day's stats. An empty
// window returns zeroed totals and null latency, never an error.
func (s *Service) Summary(ctx context.Context, p Params) (*Summary, error) {
	w, err := ResolveWindow(p.Range, p.From, p.To, s.defaultRange, s.now())
	if err != nil {
		return nil, err
	}

	rows, err := s.store.ReadRollupRange(ctx, w.From, w.To)
	if err != nil {
		return nil, err
	}

	out := &Summary{
		Range: w.Range,
		From:  w.From,
		To:    w.To,
		Daily: rows,
	}
	if out.Daily == nil {
		out.Daily = []types.DailyRollup{}
	}

	var weightedAvg, weightedP50, weightedP90 float64
	var weightedEvents int64

	for _, row := range rows {
		out.Totals.Total += row.Total
		out.Totals.Hits += row.Hits
		out.Totals.Misses += row.Misses
		out.Totals.Errors += row.Errors

		if row.Total == 0 {
			continue
		}
		weight := float64(row.Total)
		if row.LatencyAvg != nil {
			weightedAvg += *row.LatencyAvg * weight
		}
		if row.LatencyP50 != nil {
			weightedP50 += *row.LatencyP50 * weight
		}
		if row.LatencyP90 != nil {
			weightedP90 += *row.LatencyP90 * weight
		}
		weightedEvents += row.Total
	}

	if out.Totals.Total > 0 {
		out.HitRate = float64(out.Totals.Hits) / float64(out.Totals.Total)
		out.ErrorRate = float64(out.Totals.Errors) / float64(out.Totals.Total)
	}

	if weightedEvents > 0 {
		n := float64(weightedEvents)
		avg := weightedAvg / n
		p50 := weightedP50 / n
		p90 := weightedP90 / n
		out.Latency = LatencyStats{P50: &p50, P90: &p90, Avg: &avg}
	}

	return out, nil
}

// HistogramEntry is one latency band's summed count.
type HistogramEntry struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// Histogram is the response of the latency histogram query.
type Histogram struct {
	From    string           `json:"from"`
	To      string           `json:"to"`
	Buckets []HistogramEntry `json:"buckets"`
}

// LatencyHistogram sums bucket counts across the window, one entry per
// band present, in band order.
func (s *Service) LatencyHistogram(ctx context.Context, p Params) (*Histogram, error) {
	w, err := ResolveWindow(p.Range, p.From, p.To, s.defaultRange, s.now())
	if err != nil {
		return nil, err
	}

	counts, err := s.store.ReadBucketRange(ctx, w.From, w.To)
	if err != nil {
		return nil, err
	}

	out := &Histogram{
		From:    w.From,
		To:      w.To,
		Buckets: make([]HistogramEntry, 0, len(counts)),
	}
	for _, band := range types.LatencyBuckets {
		if count, ok := counts[band.Label]; ok {
			out.Buckets = append(out.Buckets, HistogramEntry{Label: band.Label, Count: count})
		}
	}
	return out, nil
}

// DailySeries is the response of the daily rollup query.
type DailySeries struct {
	From string              `json:"from"`
	To   string              `json:"to"`
	Days []types.DailyRollup `json:"days"`
}

// DailyRollup returns the raw ascending per-day rows for charting.
func (s *Service) DailyRollup(ctx context.Context, p Params) (*DailySeries, error) {
	w, err := ResolveWindow(p.Range, p.From, p.To, s.defaultRange, s.now())
	if err != nil {
		return nil, err
	}

	rows, err := s.store.ReadRollupRange(ctx, w.From, w.To)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []types.DailyRollup{}
	}

	return &DailySeries{From: w.From, To: w.To, Days: rows}, nil
}
