// Package config loads the taskgrid daemon configuration from YAML or TOML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fentz26/taskgrid/internal/health"
	"github.com/fentz26/taskgrid/internal/lease"
	"github.com/fentz26/taskgrid/internal/scheduler"
	"gopkg.in/yaml.v3"
)

// Config holds the daemon configuration.
type Config struct {
	// Listen is the control plane HTTP address.
	Listen string `yaml:"listen" toml:"listen"`
	// DBPath is the SQLite database file. A leading ~ is expanded.
	DBPath string `yaml:"db_path" toml:"db_path"`
	// SweepInterval is how often expired leases are recovered.
	SweepInterval time.Duration `yaml:"sweep_interval" toml:"sweep_interval"`

	Lease     lease.Policy    `yaml:"lease" toml:"lease"`
	Phase     PhaseConfig     `yaml:"phase" toml:"phase"`
	Health    health.Config   `yaml:"health" toml:"health"`
	Generator GeneratorConfig `yaml:"generator" toml:"generator"`

	// Path is the file the configuration was read from, if any.
	Path string `yaml:"-" toml:"-"`
}

// PhaseConfig controls task classification and dependency validation.
type PhaseConfig struct {
	// RulesFile overrides the built-in classification keyword tables.
	RulesFile string `yaml:"rules_file" toml:"rules_file"`
	// Strict rejects submissions that fail dependency validation.
	Strict bool `yaml:"strict" toml:"strict"`
	// DefaultFeature groups tasks that name no feature.
	DefaultFeature string `yaml:"default_feature" toml:"default_feature"`
}

// GeneratorConfig configures the requirements-to-tasks generator.
type GeneratorConfig struct {
	Model     string `yaml:"model" toml:"model"`
	MaxTokens int64  `yaml:"max_tokens" toml:"max_tokens"`
}

// DefaultConfig returns a configuration that runs out of the box.
func DefaultConfig() *Config {
	sched := scheduler.DefaultConfig()
	return &Config{
		Listen:        "127.0.0.1:7466",
		DBPath:        "~/.taskgrid/taskgrid.db",
		SweepInterval: sched.SweepInterval,
		Lease:         sched.Lease,
		Phase: PhaseConfig{
			Strict: sched.StrictPhases,
		},
		Health: sched.Health,
		Generator: GeneratorConfig{
			Model:     "claude-sonnet-4-5",
			MaxTokens: 8192,
		},
	}
}

// DefaultPath returns ~/.taskgrid/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".taskgrid", "config.yaml")
	}
	return filepath.Join(home, ".taskgrid", "config.yaml")
}

// Load reads the configuration file at path, or DefaultPath when path is
// empty. The format follows the extension: .toml is TOML, anything else YAML.
// A missing file yields the defaults. Values in the file override defaults.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	resolved, err := ExpandHome(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(resolved)
	switch {
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// No config file; run with defaults.
	case err != nil:
		return nil, fmt.Errorf("read config file %s: %w", resolved, err)
	default:
		if err := decode(resolved, data, cfg); err != nil {
			return nil, err
		}
		cfg.Path = resolved
	}

	if cfg.DBPath, err = ExpandHome(cfg.DBPath); err != nil {
		return nil, err
	}
	if cfg.Phase.RulesFile != "" {
		if cfg.Phase.RulesFile, err = ExpandHome(cfg.Phase.RulesFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("decode config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
	}
	return nil
}

// Validate checks the configuration for obviously broken values.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive, got %s", c.SweepInterval)
	}

	p := c.Lease
	for name, d := range map[string]time.Duration{
		"lease.min_initial": p.MinInitial,
		"lease.default":     p.Default,
		"lease.nearly_done": p.NearlyDone,
		"lease.halfway":     p.Halfway,
		"lease.stalled":     p.Stalled,
		"lease.capped":      p.Capped,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if p.MaxRenewals <= 0 {
		return fmt.Errorf("lease.max_renewals must be positive, got %d", p.MaxRenewals)
	}
	if p.LongTaskFactor < 1 {
		return fmt.Errorf("lease.long_task_factor must be at least 1, got %g", p.LongTaskFactor)
	}

	h := c.Health
	if h.BottleneckDependents <= 0 || h.BottleneckHighDependents < h.BottleneckDependents {
		return fmt.Errorf("health bottleneck thresholds must be positive and ordered")
	}
	if h.ChainDepth <= 0 || h.OverloadedAbove <= 0 || h.StaleAfter <= 0 {
		return fmt.Errorf("health thresholds must be positive")
	}
	if h.HeavilyOverloadedAbove < h.OverloadedAbove {
		return fmt.Errorf("health.heavily_overloaded_above must not be below overloaded_above")
	}
	return nil
}

// Scheduler returns the scheduler settings carried by the configuration.
func (c *Config) Scheduler() *scheduler.Config {
	return &scheduler.Config{
		SweepInterval:  c.SweepInterval,
		StrictPhases:   c.Phase.Strict,
		DefaultFeature: c.Phase.DefaultFeature,
		Lease:          c.Lease,
		Health:         c.Health,
	}
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	trimmed := strings.TrimPrefix(path, "~")
	trimmed = strings.TrimPrefix(trimmed, "\\")
	trimmed = strings.TrimPrefix(trimmed, "/")
	return filepath.Clean(filepath.Join(home, trimmed)), nil
}
