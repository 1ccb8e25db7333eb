// Package storage hosts the persistence layers of the metrics pipeline.
//
// Architecture:
//
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│  Ingestion  │────▶│  Event Log  │────▶│ Aggregator  │
//	│   Gateway   │     │   (JSONL)   │     │ (watermark) │
//	└─────────────┘     └─────────────┘     └─────────────┘
//	                                               │
//	                                               ▼
//	                                        ┌─────────────┐
//	                    queries ◀───────────│   Rollup    │
//	                                        │Store(DuckDB)│
//	                                        └─────────────┘
//
// The layers:
//   - eventlog: append-only JSON-lines event log, one batch per line
//   - aggregate: incremental watermark-based aggregation runs
//   - rollup: transactional DuckDB aggregate store (daily rollups,
//     latency histograms, watermark metadata)
//   - query: read-only range queries over the rollup store
//   - types: shared event and rollup data types
//
// The event log is the source of truth; the rollup store is derived
// state and can be rebuilt from the log at any time.
package storage
