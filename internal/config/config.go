// Package config loads the optional YAML defaults file. Every value
// has a built-in default and can be overridden per-run by CLI flags.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML values like "200ms" or "2s".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Value returns the wrapped time.Duration.
func (d Duration) Value() time.Duration { return time.Duration(d) }

// Config is the on-disk configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Reflector ReflectorConfig `yaml:"reflector"`
	Meter     MeterConfig     `yaml:"meter"`
}

// LogConfig controls process logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// ReflectorConfig holds reflector-mode defaults.
type ReflectorConfig struct {
	ReadTimeout Duration `yaml:"read_timeout"`
	MaxErrors   int      `yaml:"max_errors"`
}

// MeterConfig holds meter-mode defaults.
type MeterConfig struct {
	Ceiling       string   `yaml:"ceiling"`
	Window        Duration `yaml:"window"`
	LossThreshold float64  `yaml:"loss_threshold"`
	Resolution    float64  `yaml:"resolution"`
	KernelPacing  *bool    `yaml:"kernel_pacing"`
	HistoryDB     string   `yaml:"history_db"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Reflector: ReflectorConfig{
			ReadTimeout: Duration(500 * time.Millisecond),
			MaxErrors:   10,
		},
		Meter: MeterConfig{
			Ceiling:       "1gbps",
			Window:        Duration(200 * time.Millisecond),
			LossThreshold: 0.01,
			Resolution:    0.01,
		},
	}
}

// Load reads path over the built-in defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// KernelPacingEnabled resolves the optional kernel_pacing flag;
// pacing defaults to on.
func (m MeterConfig) KernelPacingEnabled() bool {
	if m.KernelPacing == nil {
		return true
	}
	return *m.KernelPacing
}
