// Package registry tracks the agents that poll the board for work.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fentz26/taskgrid/internal/models"
)

var (
	// ErrAgentNotFound is returned for operations on an unregistered agent.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrInvalidAgent is returned when registering an agent without an id.
	ErrInvalidAgent = errors.New("invalid agent")
)

// Registry holds registered agents keyed by id. Like the graph it is owned
// by the scheduler and is not safe for concurrent use on its own.
type Registry struct {
	agents map[string]*models.Agent
	now    func() time.Time
}

// New creates an empty registry. A nil clock uses time.Now.
func New(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		agents: make(map[string]*models.Agent),
		now:    now,
	}
}

// Register adds an agent, or updates the name and skills of one that is
// already registered. Assignment state is kept across re-registration.
func (r *Registry) Register(id, name string, skills []string) (*models.Agent, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: id cannot be empty", ErrInvalidAgent)
	}
	if name == "" {
		name = id
	}

	if a, ok := r.agents[id]; ok {
		a.Name = name
		a.Skills = models.NormalizeSkills(skills)
		return a.Clone(), nil
	}

	a := &models.Agent{
		ID:           id,
		Name:         name,
		Skills:       models.NormalizeSkills(skills),
		Status:       models.AgentStatusRegistered,
		RegisteredAt: r.now(),
	}
	r.agents[id] = a
	return a.Clone(), nil
}

// Get returns a copy of the agent.
func (r *Registry) Get(id string) (*models.Agent, bool) {
	a, ok := r.agents[id]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// List returns copies of every agent sorted by id.
func (r *Registry) List() []*models.Agent {
	out := make([]*models.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	return len(r.agents)
}

// Skills returns the normalised skill set of an agent.
func (r *Registry) Skills(id string) ([]string, error) {
	a, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return append([]string(nil), a.Skills...), nil
}

// Assign points the agent at taskID and marks it working.
func (r *Registry) Assign(id, taskID string) error {
	a, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	a.CurrentTaskID = taskID
	a.Status = models.AgentStatusWorking
	return nil
}

// Release clears taskID from the agent if it is the current task. The agent
// moves on to fallback when it still owns other work, otherwise it becomes
// available. Unknown agents are ignored so recovery can run after an agent
// has gone.
func (r *Registry) Release(id, taskID, fallback string) {
	a, ok := r.agents[id]
	if !ok {
		return
	}
	if a.CurrentTaskID != taskID && a.CurrentTaskID != "" {
		return
	}
	a.CurrentTaskID = fallback
	if fallback == "" {
		a.Status = models.AgentStatusAvailable
	} else {
		a.Status = models.AgentStatusWorking
	}
}

// SetStatus overrides the agent's status.
func (r *Registry) SetStatus(id string, status models.AgentStatus) error {
	a, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	a.Status = status
	return nil
}

// Repair points an agent at current with the matching status. It is used by
// the orphan sweep when the agent's view disagrees with the board and
// reports whether anything changed.
func (r *Registry) Repair(id, current string, blocked bool) bool {
	a, ok := r.agents[id]
	if !ok {
		return false
	}
	status := models.AgentStatusWorking
	switch {
	case current == "" && a.Status == models.AgentStatusRegistered:
		status = models.AgentStatusRegistered
	case current == "":
		status = models.AgentStatusAvailable
	case blocked:
		status = models.AgentStatusBlocked
	}
	if a.CurrentTaskID == current && a.Status == status {
		return false
	}
	a.CurrentTaskID = current
	a.Status = status
	return true
}

// Restore reinstates persisted agents, replacing any with the same id.
func (r *Registry) Restore(agents []*models.Agent) {
	for _, a := range agents {
		if a == nil || a.ID == "" {
			continue
		}
		c := a.Clone()
		c.Skills = models.NormalizeSkills(c.Skills)
		r.agents[c.ID] = c
	}
}
