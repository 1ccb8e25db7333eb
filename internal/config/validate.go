package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if err := c.EventLog.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("event_log: %w", err))
	}

	if err := c.Features.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("features: %w", err))
	}

	if err := c.Query.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("query: %w", err))
	}

	if err := c.Export.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("export: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the logging configuration.
func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("unknown level %q", c.Level)
	}
}

// Validate checks the event log configuration.
func (c *EventLogConfig) Validate() error {
	switch c.SyncMode {
	case "", "sync", "fsync":
		return nil
	default:
		return fmt.Errorf("unknown sync_mode %q", c.SyncMode)
	}
}

// Validate checks the features configuration.
func (c *FeaturesConfig) Validate() error {
	if c.PercentileSketch.Enabled {
		if c.PercentileSketch.Accuracy <= 0 || c.PercentileSketch.Accuracy >= 1 {
			return errors.New("percentile_sketch.accuracy must be in (0, 1)")
		}
	}
	return nil
}

// Validate checks the query configuration.
func (c *QueryConfig) Validate() error {
	switch c.DefaultRange {
	case "", "1d", "7d", "30d":
		return nil
	default:
		return fmt.Errorf("unknown default_range %q", c.DefaultRange)
	}
}

// Validate checks the export configuration.
func (c *ExportConfig) Validate() error {
	switch c.Compression {
	case "", "snappy", "zstd", "lz4", "gzip", "none":
		return nil
	default:
		return fmt.Errorf("unknown compression %q", c.Compression)
	}
}
