package aggregate

import (
	"math"
	"sort"
)

// NearestRank computes a percentile using the nearest-rank method: sort
// ascending and index at floor(percentile/100 * (n-1)). Returns nil for
// an empty sample set.
//
// Example: samples [5, 5, 9, 20] give p50 = 5 and p90 = 9.
func NearestRank(samples []float64, percentile float64) *float64 {
	if len(samples) == 0 {
		return nil
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	idx := int(math.Floor(percentile / 100 * float64(len(sorted)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	v := sorted[idx]
	return &v
}

// Mean returns the arithmetic mean of the samples, or nil for an empty set.
func Mean(samples []float64) *float64 {
	if len(samples) == 0 {
		return nil
	}

	var sum float64
	for _, v := range samples {
		sum += v
	}
	m := sum / float64(len(samples))
	return &m
}
