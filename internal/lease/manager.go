package lease

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fentz26/taskgrid/internal/models"
)

var (
	// ErrAlreadyLeased is returned when granting a lease on a task that holds one.
	ErrAlreadyLeased = errors.New("task already leased")
	// ErrNoLease is returned when renewing a task without an active lease.
	ErrNoLease = errors.New("no active lease")
)

type entry struct {
	lease          models.Lease
	estimatedHours float64
}

// Manager tracks at most one lease per task. It is not safe for concurrent
// use; the scheduler calls it from inside its critical section.
type Manager struct {
	policy Policy
	now    func() time.Time
	leases map[string]*entry
}

// NewManager creates a lease manager. A nil clock uses time.Now.
func NewManager(policy Policy, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		policy: policy,
		now:    now,
		leases: make(map[string]*entry),
	}
}

// Grant creates a lease for agentID on taskID.
func (m *Manager) Grant(taskID, agentID string, estimatedHours float64) (*models.Lease, error) {
	if _, ok := m.leases[taskID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyLeased, taskID)
	}
	now := m.now()
	e := &entry{
		lease: models.Lease{
			TaskID:    taskID,
			AgentID:   agentID,
			GrantedAt: now,
			ExpiresAt: now.Add(m.policy.InitialDuration(estimatedHours)),
		},
		estimatedHours: estimatedHours,
	}
	m.leases[taskID] = e
	l := e.lease
	return &l, nil
}

// Renew extends the lease on taskID according to the policy and records the
// reported progress.
func (m *Manager) Renew(taskID string, progressPercent float64) (*models.Lease, error) {
	e, ok := m.leases[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoLease, taskID)
	}
	d := m.policy.RenewalDuration(e.lease.RenewalCount, progressPercent, e.estimatedHours)
	e.lease.ExpiresAt = m.now().Add(d)
	e.lease.RenewalCount++
	e.lease.LastProgressPercent = progressPercent
	l := e.lease
	return &l, nil
}

// Release drops the lease on taskID. Releasing a task without a lease is a no-op.
func (m *Manager) Release(taskID string) {
	delete(m.leases, taskID)
}

// Get returns a copy of the lease on taskID.
func (m *Manager) Get(taskID string) (*models.Lease, bool) {
	e, ok := m.leases[taskID]
	if !ok {
		return nil, false
	}
	l := e.lease
	return &l, true
}

// Expired returns the leases whose expiry is at or before now, by task id.
func (m *Manager) Expired(now time.Time) []*models.Lease {
	var out []*models.Lease
	for _, e := range m.leases {
		if e.lease.Expired(now) {
			l := e.lease
			out = append(out, &l)
		}
	}
	sortLeases(out)
	return out
}

// Active returns a copy of every lease, by task id.
func (m *Manager) Active() []*models.Lease {
	out := make([]*models.Lease, 0, len(m.leases))
	for _, e := range m.leases {
		l := e.lease
		out = append(out, &l)
	}
	sortLeases(out)
	return out
}

// Len returns the number of leases held.
func (m *Manager) Len() int {
	return len(m.leases)
}

// Restore reinstates a persisted lease as-is, keeping its expiry and renewal
// count. Expired leases are restored too; the next scan recovers them.
func (m *Manager) Restore(l models.Lease, estimatedHours float64) error {
	if l.TaskID == "" || l.AgentID == "" {
		return fmt.Errorf("restore lease: task and agent ids are required")
	}
	if _, ok := m.leases[l.TaskID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyLeased, l.TaskID)
	}
	m.leases[l.TaskID] = &entry{lease: l, estimatedHours: estimatedHours}
	return nil
}

func sortLeases(ls []*models.Lease) {
	sort.Slice(ls, func(i, j int) bool { return ls[i].TaskID < ls[j].TaskID })
}
