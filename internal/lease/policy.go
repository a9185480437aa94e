// Package lease issues, renews and expires time-bounded task leases.
package lease

import "time"

// Policy controls how long leases last.
type Policy struct {
	// MinInitial is the floor for a freshly granted lease. A task estimated
	// above it gets its estimate instead.
	MinInitial time.Duration `yaml:"min_initial" toml:"min_initial"`
	// Default is the renewal duration when no other rule applies.
	Default time.Duration `yaml:"default" toml:"default"`
	// NearlyDone applies at NearlyDonePercent progress or more.
	NearlyDone        time.Duration `yaml:"nearly_done" toml:"nearly_done"`
	NearlyDonePercent float64       `yaml:"nearly_done_percent" toml:"nearly_done_percent"`
	// Halfway applies at HalfwayPercent progress or more.
	Halfway        time.Duration `yaml:"halfway" toml:"halfway"`
	HalfwayPercent float64       `yaml:"halfway_percent" toml:"halfway_percent"`
	// Stalled applies to low progress after MaxRenewals renewals.
	Stalled        time.Duration `yaml:"stalled" toml:"stalled"`
	StalledPercent float64       `yaml:"stalled_percent" toml:"stalled_percent"`
	// Capped applies once a lease has been renewed MaxRenewals times.
	Capped      time.Duration `yaml:"capped" toml:"capped"`
	MaxRenewals int           `yaml:"max_renewals" toml:"max_renewals"`
	// Tasks estimated above LongTaskHours get renewals scaled by LongTaskFactor.
	LongTaskHours  float64 `yaml:"long_task_hours" toml:"long_task_hours"`
	LongTaskFactor float64 `yaml:"long_task_factor" toml:"long_task_factor"`
}

// DefaultPolicy returns the standard lease policy.
func DefaultPolicy() Policy {
	return Policy{
		MinInitial:        4 * time.Hour,
		Default:           4 * time.Hour,
		NearlyDone:        2 * time.Hour,
		NearlyDonePercent: 75,
		Halfway:           3 * time.Hour,
		HalfwayPercent:    50,
		Stalled:           2 * time.Hour,
		StalledPercent:    25,
		Capped:            2 * time.Hour,
		MaxRenewals:       5,
		LongTaskHours:     8,
		LongTaskFactor:    1.5,
	}
}

// InitialDuration returns the length of a new lease for a task estimated at
// the given number of hours.
func (p Policy) InitialDuration(estimatedHours float64) time.Duration {
	est := hours(estimatedHours)
	if est > p.MinInitial {
		return est
	}
	return p.MinInitial
}

// RenewalDuration picks the next lease length. Rules are checked in order:
// renewal cap, nearly done, halfway, stalled, default. The result is scaled
// for long tasks.
func (p Policy) RenewalDuration(renewalCount int, progressPercent, estimatedHours float64) time.Duration {
	var d time.Duration
	switch {
	case renewalCount >= p.MaxRenewals:
		d = p.Capped
	case progressPercent >= p.NearlyDonePercent:
		d = p.NearlyDone
	case progressPercent >= p.HalfwayPercent:
		d = p.Halfway
	case progressPercent < p.StalledPercent && renewalCount >= p.MaxRenewals:
		// Shadowed by the renewal cap, which uses the same threshold.
		d = p.Stalled
	default:
		d = p.Default
	}
	if estimatedHours > p.LongTaskHours {
		d = time.Duration(float64(d) * p.LongTaskFactor)
	}
	return d
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}
