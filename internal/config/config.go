// Package config loads and validates the gateway observability configuration.
//
// DESIGN: All configuration comes from YAML files. Interval and threshold
// fields fall back to documented defaults when omitted; structural fields
// (ports, levels, bounds) are validated and fail fast.
//
// FILES:
//   - config.go:     Root Config struct, Load(), Validate()
//   - monitoring.go: Logging, metrics, alerting and tracing settings
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the audio gateway observability layer.
type Config struct {
	Server     ServerConfig     `yaml:"server"`     // HTTP ops surface settings
	Monitoring MonitoringConfig `yaml:"monitoring"` // Logging settings
	Metrics    MetricsConfig    `yaml:"metrics"`    // Bucketed metrics collection
	Alerting   AlertingConfig   `yaml:"alerting"`   // Alert rule engine
	Tracing    TracingConfig    `yaml:"tracing"`    // Trace/span registry
}

// ServerConfig contains HTTP server settings for the operator surface.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // Port to listen on
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // Max time to read request
	WriteTimeout time.Duration `yaml:"write_timeout"` // Max time to write response
}

// expandEnvWithDefaults expands environment variables with support for
// default values. Supports both ${VAR} and ${VAR:-default} syntax.
func expandEnvWithDefaults(s string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}

// Load reads configuration from a YAML file.
// Returns an error if the file doesn't exist or is invalid.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes.
// Supports ${VAR:-default} env var expansion, defaults, and validation.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in range 1-65535, got %d", c.Server.Port)
	}
	if err := c.Monitoring.validate(); err != nil {
		return err
	}
	if err := c.Metrics.validate(); err != nil {
		return err
	}
	if err := c.Alerting.validate(); err != nil {
		return err
	}
	return nil
}

func (c *Config) applyDefaults() {
	c.Metrics.applyDefaults()
	c.Alerting.applyDefaults()
	c.Tracing.applyDefaults()
}
