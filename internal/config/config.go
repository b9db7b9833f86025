// Package config loads the run configuration from a YAML file. Keys
// match the original workflow's config.yml (aoi-path, out-dir,
// target-date, date-buffer, nodata-threshold) plus the expansion and
// export knobs.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"landcover-pipeline/internal/common"
)

// Storage backends
const (
	StorageLocal = "local"
	StorageGCS   = "gcs"
)

// Config is the run configuration, loaded once and read-only afterwards
type Config struct {
	// Required inputs
	AOIPath         string  `mapstructure:"aoi-path" yaml:"aoi-path"`
	OutDir          string  `mapstructure:"out-dir" yaml:"out-dir"`
	TargetDate      string  `mapstructure:"target-date" yaml:"target-date"`
	DateBuffer      int     `mapstructure:"date-buffer" yaml:"date-buffer"`
	NoDataThreshold float64 `mapstructure:"nodata-threshold" yaml:"nodata-threshold"`

	// Expansion policy
	BufferStep    int  `mapstructure:"buffer-step" yaml:"buffer-step,omitempty"`
	MaxDateBuffer int  `mapstructure:"max-date-buffer" yaml:"max-date-buffer,omitempty"`
	MaxIterations int  `mapstructure:"max-iterations" yaml:"max-iterations,omitempty"`
	BestEffort    bool `mapstructure:"best-effort" yaml:"best-effort,omitempty"`

	// Explicit window for daily and raw exports; defaults to the
	// target date buffered on both sides
	StartDate string `mapstructure:"start-date" yaml:"start-date,omitempty"`
	EndDate   string `mapstructure:"end-date" yaml:"end-date,omitempty"`

	// Data source
	Scale      float64 `mapstructure:"scale" yaml:"scale,omitempty"`
	Project    string  `mapstructure:"project" yaml:"project,omitempty"`
	MaxWorkers int     `mapstructure:"max-workers" yaml:"max-workers,omitempty"`

	// Output backend
	Storage   string `mapstructure:"storage" yaml:"storage,omitempty"`
	GCSBucket string `mapstructure:"gcs-bucket" yaml:"gcs-bucket,omitempty"`
	GCSPrefix string `mapstructure:"gcs-prefix" yaml:"gcs-prefix,omitempty"`

	// Logging
	LogMode string `mapstructure:"log-mode" yaml:"log-mode,omitempty"`
}

// InvalidConfigError reports a missing or malformed configuration
// value. It is fatal before any processing starts.
type InvalidConfigError struct {
	Key    string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Key, e.Reason)
}

// Default returns the configuration defaults
func Default() *Config {
	return &Config{
		BufferStep:    15,
		MaxDateBuffer: 180,
		Scale:         common.DefaultScale,
		Project:       "dynamic-world-pipeline",
		MaxWorkers:    10,
		Storage:       StorageLocal,
		LogMode:       "dev",
	}
}

// Load reads, merges with defaults, and validates a config file
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued optional fields
func (c *Config) applyDefaults() {
	defaults := Default()
	if c.BufferStep == 0 {
		c.BufferStep = defaults.BufferStep
	}
	if c.MaxDateBuffer == 0 {
		c.MaxDateBuffer = defaults.MaxDateBuffer
	}
	if c.Scale == 0 {
		c.Scale = defaults.Scale
	}
	if c.Project == "" {
		c.Project = defaults.Project
	}
	if c.MaxWorkers == 0 {
		c.MaxWorkers = defaults.MaxWorkers
	}
	if c.Storage == "" {
		c.Storage = defaults.Storage
	}
	if c.LogMode == "" {
		c.LogMode = defaults.LogMode
	}
}

// Validate checks required keys and value ranges. It runs before any
// network call.
func (c *Config) Validate() error {
	if c.AOIPath == "" {
		return &InvalidConfigError{Key: "aoi-path", Reason: "required"}
	}
	if c.TargetDate == "" && (c.StartDate == "" || c.EndDate == "") {
		return &InvalidConfigError{Key: "target-date", Reason: "required (or provide both start-date and end-date)"}
	}
	if c.TargetDate != "" && !common.ValidateISO8601(c.TargetDate) {
		return &InvalidConfigError{Key: "target-date", Reason: fmt.Sprintf("not an ISO date: %q", c.TargetDate)}
	}
	if c.StartDate != "" && !common.ValidateISO8601(c.StartDate) {
		return &InvalidConfigError{Key: "start-date", Reason: fmt.Sprintf("not an ISO date: %q", c.StartDate)}
	}
	if c.EndDate != "" && !common.ValidateISO8601(c.EndDate) {
		return &InvalidConfigError{Key: "end-date", Reason: fmt.Sprintf("not an ISO date: %q", c.EndDate)}
	}
	if c.DateBuffer <= 0 && c.TargetDate != "" {
		return &InvalidConfigError{Key: "date-buffer", Reason: "must be a positive number of days"}
	}
	if c.NoDataThreshold < 0 || c.NoDataThreshold > 100 {
		return &InvalidConfigError{Key: "nodata-threshold", Reason: "must be a percentage in [0, 100]"}
	}
	if c.MaxDateBuffer < c.DateBuffer {
		return &InvalidConfigError{Key: "max-date-buffer", Reason: "must be at least date-buffer"}
	}
	if c.BufferStep <= 0 {
		return &InvalidConfigError{Key: "buffer-step", Reason: "must be positive"}
	}
	if c.Scale <= 0 {
		return &InvalidConfigError{Key: "scale", Reason: "must be positive"}
	}
	switch c.Storage {
	case StorageLocal:
		if c.OutDir == "" {
			return &InvalidConfigError{Key: "out-dir", Reason: "required for local storage"}
		}
	case StorageGCS:
		if c.GCSBucket == "" {
			return &InvalidConfigError{Key: "gcs-bucket", Reason: "required for gcs storage"}
		}
	default:
		return &InvalidConfigError{Key: "storage", Reason: fmt.Sprintf("must be %q or %q, got %q", StorageLocal, StorageGCS, c.Storage)}
	}
	return nil
}

// Marshal renders the config back to YAML. Loading the result yields
// an equivalent config.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// TargetTime parses the target date
func (c *Config) TargetTime() (time.Time, error) {
	return common.ParseISO8601(c.TargetDate)
}

// Window resolves the explicit [start, end] window, defaulting to the
// target date buffered on both sides
func (c *Config) Window() (start, end time.Time, err error) {
	if c.StartDate != "" && c.EndDate != "" {
		start, err = common.ParseISO8601(c.StartDate)
		if err != nil {
			return
		}
		end, err = common.ParseISO8601(c.EndDate)
		if err != nil {
			return
		}
		if end.Before(start) {
			err = &InvalidConfigError{Key: "end-date", Reason: "must not precede start-date"}
		}
		return
	}
	target, err := c.TargetTime()
	if err != nil {
		return
	}
	return target.AddDate(0, 0, -c.DateBuffer), target.AddDate(0, 0, c.DateBuffer), nil
}
