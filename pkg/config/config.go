// Package config loads and validates the asmdiff YAML configuration.
package config

import (
	"github.com/sdejongh/asmdiff/pkg/filter"
	"github.com/sdejongh/asmdiff/pkg/logging"
	"github.com/sdejongh/asmdiff/pkg/models"
	"github.com/sdejongh/asmdiff/pkg/output"
	"github.com/sdejongh/asmdiff/pkg/ratelimit"
)

// Config represents the application configuration
type Config struct {
	Compare     CompareConfig     `yaml:"compare"`
	Performance PerformanceConfig `yaml:"performance"`
	Output      OutputConfig      `yaml:"output"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// CompareConfig holds comparison settings
type CompareConfig struct {
	Filters        []string `yaml:"filters"`
	FilterPolicy   string   `yaml:"filter_policy"`   // "first-match" or "first-rule"
	ManagedHashing bool     `yaml:"managed_hashing"` // Ignore rebuild noise in managed assemblies
}

// PerformanceConfig holds performance-related settings
type PerformanceConfig struct {
	MaxWorkers  int    `yaml:"max_workers"`
	BufferSize  int    `yaml:"buffer_size"`
	MaxReadRate string `yaml:"max_read_rate"` // e.g. "50MiB"; empty = unlimited
}

// OutputConfig holds output-related settings
type OutputConfig struct {
	Format   string `yaml:"format"`   // "human" or "json"
	Progress bool   `yaml:"progress"` // Show a progress bar on terminals
	Quiet    bool   `yaml:"quiet"`    // Suppress difference listing
}

// LoggingConfig holds logging-related settings
type LoggingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Format     string `yaml:"format"` // "json" or "text"
	Level      string `yaml:"level"`  // "debug", "info", "warn", "error"
	File       string `yaml:"file"`   // Log file path (empty = stderr)
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Compare: CompareConfig{
			Filters:        []string{},
			FilterPolicy:   string(filter.FirstMatch),
			ManagedHashing: true,
		},
		Performance: PerformanceConfig{
			MaxWorkers: 4,
			BufferSize: 65536,
		},
		Output: OutputConfig{
			Format:   string(output.FormatHuman),
			Progress: false,
			Quiet:    false,
		},
		Logging: LoggingConfig{
			Enabled:    false,
			Format:     string(logging.FormatJSON),
			Level:      "info",
			File:       "",
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := filter.ParsePolicy(c.Compare.FilterPolicy); err != nil {
		return &models.ValidationError{
			Field:   "compare.filter_policy",
			Message: "must be 'first-match' or 'first-rule'",
		}
	}

	if _, err := filter.Compile(c.Compare.Filters); err != nil {
		return &models.ValidationError{
			Field:   "compare.filters",
			Message: err.Error(),
		}
	}

	if c.Performance.MaxWorkers < 1 {
		return &models.ValidationError{
			Field:   "performance.max_workers",
			Message: "must be at least 1",
		}
	}

	if c.Performance.BufferSize < 1024 {
		return &models.ValidationError{
			Field:   "performance.buffer_size",
			Message: "must be at least 1024 bytes",
		}
	}

	if _, err := ratelimit.ParseRate(c.Performance.MaxReadRate); err != nil {
		return &models.ValidationError{
			Field:   "performance.max_read_rate",
			Message: err.Error(),
		}
	}

	if _, err := output.ParseFormat(c.Output.Format); err != nil || c.Output.Format == "" {
		return &models.ValidationError{
			Field:   "output.format",
			Message: "must be 'human' or 'json'",
		}
	}

	validLogFormats := map[string]bool{string(logging.FormatJSON): true, string(logging.FormatText): true}
	if !validLogFormats[c.Logging.Format] {
		return &models.ValidationError{
			Field:   "logging.format",
			Message: "must be 'json' or 'text'",
		}
	}

	if logging.LevelString(logging.ParseLevel(c.Logging.Level)) != c.Logging.Level {
		return &models.ValidationError{
			Field:   "logging.level",
			Message: "must be 'debug', 'info', 'warn', or 'error'",
		}
	}

	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 {
		return &models.ValidationError{
			Field:   "logging.max_size_mb",
			Message: "rotation limits cannot be negative",
		}
	}

	return nil
}
