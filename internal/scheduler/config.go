// Package scheduler coordinates task assignment across agents. It owns the
// dependency graph, the lease table and the agent registry behind one lock.
package scheduler

import (
	"time"

	"github.com/fentz26/taskgrid/internal/health"
	"github.com/fentz26/taskgrid/internal/lease"
)

// Config defines the scheduler configuration.
type Config struct {
	// SweepInterval is how often expired leases and orphaned tasks are recovered.
	SweepInterval time.Duration `yaml:"sweep_interval" toml:"sweep_interval"`
	// StrictPhases rejects a submission whose dependency structure fails
	// validation. When false the problems are returned as warnings.
	StrictPhases bool `yaml:"strict_phases" toml:"strict_phases"`
	// DefaultFeature groups tasks that name no feature.
	DefaultFeature string `yaml:"default_feature" toml:"default_feature"`

	Lease  lease.Policy  `yaml:"lease" toml:"lease"`
	Health health.Config `yaml:"health" toml:"health"`
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		SweepInterval: 60 * time.Second,
		StrictPhases:  true,
		Lease:         lease.DefaultPolicy(),
		Health:        health.DefaultConfig(),
	}
}
