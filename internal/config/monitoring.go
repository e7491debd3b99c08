// Monitoring configuration - logging, metrics, alerting and tracing settings.
//
// DESIGN: Logging is for operators; metrics/alerting/tracing settings drive
// the observability core. Zero-valued intervals get conservative defaults so
// a minimal config file stays usable.
package config

import (
	"fmt"
	"time"
)

// MonitoringConfig contains logging settings.
type MonitoringConfig struct {
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // json, console
	LogOutput string `yaml:"log_output"` // stdout, stderr, or file path
}

func (c *MonitoringConfig) validate() error {
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("monitoring.log_level must be debug|info|warn|error, got %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "", "json", "console":
	default:
		return fmt.Errorf("monitoring.log_format must be json|console, got %q", c.LogFormat)
	}
	return nil
}

// MetricsConfig contains settings for the bucketed metrics collector.
type MetricsConfig struct {
	BucketInterval time.Duration `yaml:"bucket_interval"` // Width of one aggregation bucket
	Retention      time.Duration `yaml:"retention"`       // How long buckets are kept
	SweepInterval  time.Duration `yaml:"sweep_interval"`  // How often old buckets are flushed

	// Per-operation latency warning thresholds. Exceeding one logs a
	// warning; alerting remains the rule engine's responsibility.
	HighLatency LatencyThresholds `yaml:"high_latency"`
}

// LatencyThresholds holds per-operation latency warning thresholds.
type LatencyThresholds struct {
	Transcription time.Duration `yaml:"transcription"`
	Synthesis     time.Duration `yaml:"synthesis"`
	Realtime      time.Duration `yaml:"realtime"`
}

func (c *MetricsConfig) applyDefaults() {
	if c.BucketInterval == 0 {
		c.BucketInterval = time.Minute
	}
	if c.Retention == 0 {
		c.Retention = time.Hour
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = time.Minute
	}
	if c.HighLatency.Transcription == 0 {
		c.HighLatency.Transcription = 10 * time.Second
	}
	if c.HighLatency.Synthesis == 0 {
		c.HighLatency.Synthesis = 5 * time.Second
	}
	if c.HighLatency.Realtime == 0 {
		c.HighLatency.Realtime = 2 * time.Second
	}
}

func (c *MetricsConfig) validate() error {
	if c.BucketInterval < time.Second {
		return fmt.Errorf("metrics.bucket_interval must be at least 1s, got %s", c.BucketInterval)
	}
	if c.Retention < c.BucketInterval {
		return fmt.Errorf("metrics.retention (%s) must be at least one bucket interval (%s)", c.Retention, c.BucketInterval)
	}
	return nil
}

// AlertingConfig contains settings for the alert rule engine.
type AlertingConfig struct {
	HistoryLimit       int           `yaml:"history_limit"`       // Max retained triggered alerts
	RulesPath          string        `yaml:"rules_path"`          // SQLite rule store path; empty = in-memory rules
	EvaluationInterval time.Duration `yaml:"evaluation_interval"` // Periodic evaluation cadence
}

func (c *AlertingConfig) applyDefaults() {
	if c.HistoryLimit == 0 {
		c.HistoryLimit = 1000
	}
	if c.EvaluationInterval == 0 {
		c.EvaluationInterval = 30 * time.Second
	}
}

func (c *AlertingConfig) validate() error {
	if c.HistoryLimit < 1 {
		return fmt.Errorf("alerting.history_limit must be positive, got %d", c.HistoryLimit)
	}
	return nil
}

// TracingConfig contains settings for the trace/span registry.
type TracingConfig struct {
	Enabled         bool          `yaml:"enabled"`          // Disabled yields inert no-op contexts
	ServiceName     string        `yaml:"service_name"`     // Seeded as a default trace tag
	ServiceVersion  string        `yaml:"service_version"`  // Seeded as a default trace tag
	Retention       time.Duration `yaml:"retention"`        // How long completed traces are kept
	CleanupInterval time.Duration `yaml:"cleanup_interval"` // Completed-trace purge cadence
}

func (c *TracingConfig) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "audio-gateway"
	}
	if c.Retention == 0 {
		c.Retention = 30 * time.Minute
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = 5 * time.Minute
	}
}
