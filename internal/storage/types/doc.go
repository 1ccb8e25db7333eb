// Package types defines the core data types shared across the pipeline.
//
// Key types:
//   - MetricEvent: a single observed lookup outcome
//   - LogRecord: one accepted batch, the durable event log unit
//   - DailyRollup: one per-day summary row in the aggregate store
//   - LatencyBucket: a fixed histogram latency band
package types
