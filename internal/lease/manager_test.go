package lease

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/taskgrid/internal/models"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newManager() (*Manager, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	return NewManager(DefaultPolicy(), clock.Now), clock
}

func TestGrant(t *testing.T) {
	m, clock := newManager()

	l, err := m.Grant("short", "agent-1", 1.5)
	require.NoError(t, err)
	assert.Equal(t, clock.t, l.GrantedAt)
	assert.Equal(t, clock.t.Add(4*time.Hour), l.ExpiresAt)
	assert.Zero(t, l.RenewalCount)

	l, err = m.Grant("long", "agent-1", 6.5)
	require.NoError(t, err)
	assert.Equal(t, clock.t.Add(6*time.Hour+30*time.Minute), l.ExpiresAt)

	_, err = m.Grant("short", "agent-2", 1)
	assert.ErrorIs(t, err, ErrAlreadyLeased)
	assert.Equal(t, 2, m.Len())
}

func TestRenewalDurations(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		name     string
		renewals int
		progress float64
		estimate float64
		want     time.Duration
	}{
		{"long task nearly done", 0, 80, 10, 3 * time.Hour},
		{"halfway", 0, 60, 5, 3 * time.Hour},
		{"nearly done", 1, 75, 5, 2 * time.Hour},
		{"default", 2, 30, 5, 4 * time.Hour},
		{"low progress default", 0, 10, 5, 4 * time.Hour},
		{"capped", 5, 90, 5, 2 * time.Hour},
		{"capped and stalled", 7, 5, 5, 2 * time.Hour},
		{"long task default", 0, 0, 12, 6 * time.Hour},
		{"exactly eight hours is not long", 0, 0, 8, 4 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.RenewalDuration(tt.renewals, tt.progress, tt.estimate))
		})
	}
}

func TestRenew(t *testing.T) {
	m, clock := newManager()
	_, err := m.Renew("missing", 10)
	assert.ErrorIs(t, err, ErrNoLease)

	_, err = m.Grant("task", "agent-1", 10)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	l, err := m.Renew("task", 80)
	require.NoError(t, err)
	assert.Equal(t, clock.t.Add(3*time.Hour), l.ExpiresAt)
	assert.Equal(t, 1, l.RenewalCount)
	assert.Equal(t, 80.0, l.LastProgressPercent)

	for i := 0; i < 4; i++ {
		_, err = m.Renew("task", 10)
		require.NoError(t, err)
	}
	l, err = m.Renew("task", 10)
	require.NoError(t, err)
	assert.Equal(t, 6, l.RenewalCount)
	assert.Equal(t, clock.t.Add(3*time.Hour), l.ExpiresAt, "capped 2h scaled for a long task")

	got, ok := m.Get("task")
	require.True(t, ok)
	assert.Equal(t, l, got)
}

func TestReleaseIsIdempotent(t *testing.T) {
	m, _ := newManager()
	_, err := m.Grant("task", "agent-1", 1)
	require.NoError(t, err)

	m.Release("task")
	m.Release("task")
	_, ok := m.Get("task")
	assert.False(t, ok)

	_, err = m.Grant("task", "agent-2", 1)
	assert.NoError(t, err)
}

func TestExpired(t *testing.T) {
	m, clock := newManager()
	_, err := m.Grant("b", "agent-1", 1)
	require.NoError(t, err)
	_, err = m.Grant("a", "agent-2", 1)
	require.NoError(t, err)
	_, err = m.Grant("c", "agent-3", 10)
	require.NoError(t, err)

	assert.Empty(t, m.Expired(clock.t))

	expired := m.Expired(clock.t.Add(4 * time.Hour))
	require.Len(t, expired, 2)
	assert.Equal(t, "a", expired[0].TaskID)
	assert.Equal(t, "b", expired[1].TaskID)

	// Copies are returned; mutating them leaves the manager alone.
	expired[0].AgentID = "someone-else"
	l, _ := m.Get("a")
	assert.Equal(t, "agent-2", l.AgentID)

	assert.Len(t, m.Active(), 3)
}

func TestRestore(t *testing.T) {
	m, clock := newManager()
	persisted := models.Lease{
		TaskID:       "task",
		AgentID:      "agent-1",
		GrantedAt:    clock.t.Add(-5 * time.Hour),
		ExpiresAt:    clock.t.Add(-time.Hour),
		RenewalCount: 2,
	}
	require.NoError(t, m.Restore(persisted, 3))
	assert.ErrorIs(t, m.Restore(persisted, 3), ErrAlreadyLeased)
	assert.Error(t, m.Restore(models.Lease{TaskID: "x"}, 1))

	expired := m.Expired(clock.t)
	require.Len(t, expired, 1)
	assert.Equal(t, 2, expired[0].RenewalCount)
}
