package routerconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultReadFrom is applied when TailConfig.ReadFrom is empty.
	DefaultReadFrom = "checkpoint"
	// DefaultCheckpointPeriod is how often the tailer's checkpoint is
	// flushed to disk when TailConfig.CheckpointPeriod is zero.
	DefaultCheckpointPeriod = 5 * time.Second
	// DefaultLogLevel is applied when LogConfig.Level is empty.
	DefaultLogLevel = "info"
	// DefaultMetricsAddr is applied when MetricsConfig.Addr is empty and
	// metrics are enabled.
	DefaultMetricsAddr = ":9598"
)

// Load reads and parses the YAML configuration file at path, applies
// environment overrides (spec.md §6: DATA_DIR, LOG_LEVEL), fills defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("routerconfig: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("routerconfig: parse %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.withDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides fields from the process environment, per spec.md §6:
// "DATA_DIR overrides the CLI default; LOG_LEVEL sets observability
// verbosity."
func (c *Config) applyEnv() {
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) withDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Tail.ReadFrom == "" {
		c.Tail.ReadFrom = DefaultReadFrom
	}
	if c.Tail.CheckpointPeriod <= 0 {
		c.Tail.CheckpointPeriod = DefaultCheckpointPeriod
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
}
