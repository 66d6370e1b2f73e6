// YAML config loader with CUE validation and environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"sensorsync/internal/backpressure"
)

// EnvPrefix scopes environment overrides, e.g. SENSORSYNC_REMOTE_API_KEY.
const EnvPrefix = "sensorsync"

// Duration wraps time.Duration so YAML and env values can use "30s" syntax.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Decode implements envconfig.Decoder.
func (d *Duration) Decode(value string) error {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value, err)
	}
	*d = Duration(parsed)
	return nil
}

// PollConfig controls the measurement loop.
type PollConfig struct {
	BaseInterval  Duration `yaml:"base_interval"`
	SensorTimeout Duration `yaml:"sensor_timeout"`
}

// SyncConfig controls the batch upload loop.
type SyncConfig struct {
	Interval  Duration `yaml:"interval"`
	BatchSize int      `yaml:"batch_size"`
}

// BreakerConfig controls the circuit breaker guarding remote writes.
type BreakerConfig struct {
	FailureThreshold int      `yaml:"failure_threshold"`
	Cooldown         Duration `yaml:"cooldown"`
}

// StepConfig is one backpressure table row.
type StepConfig struct {
	Failures int      `yaml:"failures"`
	Interval Duration `yaml:"interval"`
}

// BackpressureConfig maps consecutive sync failures to poll intervals.
// Recovery is "immediate" or "gradual".
type BackpressureConfig struct {
	Recovery string       `yaml:"recovery"`
	Steps    []StepConfig `yaml:"steps"`
}

// Gradual reports whether recovery steps the failure count down instead of
// resetting it.
func (b BackpressureConfig) Gradual() bool { return b.Recovery == "gradual" }

// StepTable converts the YAML rows to the controller's step type. An empty
// table means the controller's defaults.
func (b BackpressureConfig) StepTable() []backpressure.Step {
	if len(b.Steps) == 0 {
		return nil
	}
	steps := make([]backpressure.Step, len(b.Steps))
	for i, s := range b.Steps {
		steps[i] = backpressure.Step{Failures: s.Failures, Interval: s.Interval.Std()}
	}
	return steps
}

// RetentionConfig controls disk-pressure eviction.
type RetentionConfig struct {
	CheckInterval        Duration `yaml:"check_interval"`
	DiskThresholdPercent float64  `yaml:"disk_threshold_percent"`
	EvictFraction        float64  `yaml:"evict_fraction"`
	MaxPasses            int      `yaml:"max_passes"`
	ProtectUnsynced      bool     `yaml:"protect_unsynced"`
	DiskPath             string   `yaml:"disk_path"`
}

// RemoteConfig selects and configures the upload target. Kind is "http" or
// "greptime".
type RemoteConfig struct {
	Kind        string   `yaml:"kind"`
	Endpoint    string   `yaml:"endpoint" envconfig:"REMOTE_ENDPOINT"`
	APIKey      string   `yaml:"api_key" envconfig:"REMOTE_API_KEY"`
	Timeout     Duration `yaml:"timeout"`
	BulkTimeout Duration `yaml:"bulk_timeout"`
	Database    string   `yaml:"database"`
	Table       string   `yaml:"table"`
}

// AdminConfig controls the local status endpoint.
type AdminConfig struct {
	Listen string `yaml:"listen"`
}

// Config is the root agent configuration.
type Config struct {
	DeviceID     string             `yaml:"device_id" envconfig:"DEVICE_ID"`
	DatabasePath string             `yaml:"database_path" envconfig:"DATABASE_PATH"`
	LogLevel     string             `yaml:"log_level" envconfig:"LOG_LEVEL"`
	Poll         PollConfig         `yaml:"poll"`
	Sync         SyncConfig         `yaml:"sync"`
	Breaker      BreakerConfig      `yaml:"breaker"`
	Backpressure BackpressureConfig `yaml:"backpressure"`
	Retention    RetentionConfig    `yaml:"retention"`
	Remote       RemoteConfig       `yaml:"remote"`
	Admin        AdminConfig        `yaml:"admin"`
}

// Load reads YAML config, validates it against the CUE schema, applies
// environment overrides, fills defaults, and runs semantic checks.
func Load(configPath, cueSchemaPath string) (*Config, error) {
	if cueSchemaPath != "" {
		if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Poll.BaseInterval == 0 {
		c.Poll.BaseInterval = Duration(10 * time.Second)
	}
	if c.Poll.SensorTimeout == 0 {
		c.Poll.SensorTimeout = Duration(5 * time.Second)
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = Duration(5 * time.Second)
	}
	if c.Sync.BatchSize == 0 {
		c.Sync.BatchSize = 360
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 3
	}
	if c.Breaker.Cooldown == 0 {
		c.Breaker.Cooldown = Duration(60 * time.Second)
	}
	if c.Backpressure.Recovery == "" {
		c.Backpressure.Recovery = "gradual"
	}
	if c.Retention.CheckInterval == 0 {
		c.Retention.CheckInterval = Duration(5 * time.Minute)
	}
	if c.Retention.DiskThresholdPercent == 0 {
		c.Retention.DiskThresholdPercent = 50
	}
	if c.Retention.EvictFraction == 0 {
		c.Retention.EvictFraction = 0.2
	}
	if c.Retention.MaxPasses == 0 {
		c.Retention.MaxPasses = 3
	}
	if c.Retention.DiskPath == "" {
		c.Retention.DiskPath = "/"
	}
	if c.Remote.Kind == "" {
		c.Remote.Kind = "http"
	}
	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = Duration(10 * time.Second)
	}
	if c.Remote.BulkTimeout == 0 {
		c.Remote.BulkTimeout = Duration(30 * time.Second)
	}
	if c.Admin.Listen == "" {
		c.Admin.Listen = ":8080"
	}
}

// Validate runs the semantic checks CUE cannot express against env-overridden
// values.
func (c *Config) Validate() error {
	if c.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}
	switch c.Remote.Kind {
	case "http", "greptime":
	default:
		return fmt.Errorf("remote.kind must be http or greptime, got %q", c.Remote.Kind)
	}
	if c.Remote.Endpoint == "" {
		return fmt.Errorf("remote.endpoint is required")
	}
	switch c.Backpressure.Recovery {
	case "immediate", "gradual":
	default:
		return fmt.Errorf("backpressure.recovery must be immediate or gradual, got %q", c.Backpressure.Recovery)
	}
	if steps := c.Backpressure.StepTable(); steps != nil {
		if err := backpressure.ValidateSteps(steps); err != nil {
			return err
		}
	}
	if t := c.Retention.DiskThresholdPercent; t <= 0 || t > 100 {
		return fmt.Errorf("retention.disk_threshold_percent must be in (0, 100], got %v", t)
	}
	if f := c.Retention.EvictFraction; f <= 0 || f > 1 {
		return fmt.Errorf("retention.evict_fraction must be in (0, 1], got %v", f)
	}
	return nil
}
