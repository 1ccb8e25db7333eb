package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the complete lagmark configuration.
type Config struct {
	// DataDir is the root directory for all persistent state.
	DataDir string `yaml:"data_dir"`

	// Listen is the HTTP listen address for the serve command.
	Listen string `yaml:"listen"`

	// Logging configures structured log output.
	Logging LoggingConfig `yaml:"logging"`

	// EventLog configures the append-only event log.
	EventLog EventLogConfig `yaml:"event_log"`

	// Store configures the aggregate store.
	Store StoreConfig `yaml:"store"`

	// Features configures optional features.
	Features FeaturesConfig `yaml:"features"`

	// Query configures the query service.
	Query QueryConfig `yaml:"query"`

	// Export configures Parquet export.
	Export ExportConfig `yaml:"export"`
}

// LoggingConfig configures structured log output.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON selects JSON output instead of human-readable text.
	JSON bool `yaml:"json"`
}

// EventLogConfig configures the append-only event log.
type EventLogConfig struct {
	// Path is the JSONL file path. Empty means <data_dir>/metrics-log.jsonl.
	Path string `yaml:"path"`

	// SyncMode controls how appends are synced to disk.
	// "sync" - write-through, rely on the OS page cache
	// "fsync" - fsync after each appended record
	SyncMode string `yaml:"sync_mode"`
}

// StoreConfig configures the aggregate store.
type StoreConfig struct {
	// Path is the DuckDB database path. Empty means <data_dir>/metrics.duckdb.
	Path string `yaml:"path"`
}

// FeaturesConfig configures optional features.
type FeaturesConfig struct {
	// PercentileSketch configures cross-run mergeable percentiles.
	PercentileSketch PercentileSketchConfig `yaml:"percentile_sketch"`
}

// PercentileSketchConfig configures DDSketch-based percentile merging.
// When disabled (the default), a date's p50/p90 reflect only the most
// recent aggregation run that touched it.
type PercentileSketchConfig struct {
	// Enabled enables the per-day merged sketch.
	Enabled bool `yaml:"enabled"`

	// Accuracy is the relative accuracy (0.01 = 1% error).
	Accuracy float64 `yaml:"accuracy"`
}

// QueryConfig configures the query service.
type QueryConfig struct {
	// DefaultRange is the window used when a request names none: 1d, 7d, 30d.
	DefaultRange string `yaml:"default_range"`
}

// ExportConfig configures Parquet export.
type ExportConfig struct {
	// Compression is the Parquet compression algorithm: snappy, zstd, lz4, gzip, none.
	Compression string `yaml:"compression"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "data",
		Listen:  ":8080",
		Logging: LoggingConfig{
			Level: "info",
		},
		EventLog: EventLogConfig{
			SyncMode: "fsync",
		},
		Features: FeaturesConfig{
			PercentileSketch: PercentileSketchConfig{
				Enabled:  false,
				Accuracy: 0.01,
			},
		},
		Query: QueryConfig{
			DefaultRange: "7d",
		},
		Export: ExportConfig{
			Compression: "zstd",
		},
	}
}

// Load reads a configuration file, applying defaults for absent fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// EventLogPath returns the resolved event log path.
func (c *Config) EventLogPath() string {
	if c.EventLog.Path != "" {
		return c.EventLog.Path
	}
	return filepath.Join(c.DataDir, "metrics-log.jsonl")
}

// StorePath returns the resolved aggregate store path.
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(c.DataDir, "metrics.duckdb")
}

// ExportDir returns the directory for Parquet exports.
func (c *Config) ExportDir() string {
	return filepath.Join(c.DataDir, "export")
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		filepath.Dir(c.EventLogPath()),
		filepath.Dir(c.StorePath()),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
