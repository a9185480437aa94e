package scheduler

import (
	"fmt"

	"github.com/fentz26/taskgrid/internal/graph"
	"github.com/fentz26/taskgrid/internal/health"
	"github.com/fentz26/taskgrid/internal/lease"
	"github.com/fentz26/taskgrid/internal/models"
	"github.com/fentz26/taskgrid/internal/registry"
)

// TaskFilter narrows ListTasks. Empty fields match everything.
type TaskFilter struct {
	Status  models.TaskStatus
	Type    models.TaskType
	Feature string
	AgentID string
}

func (f TaskFilter) match(t *models.Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Feature != "" && t.Feature != f.Feature {
		return false
	}
	if f.AgentID != "" && t.AssignedAgent != f.AgentID {
		return false
	}
	return true
}

// TaskDependencies describes where a task sits in the graph.
type TaskDependencies struct {
	TaskID                string   `json:"task_id"`
	DependsOn             []string `json:"depends_on"`
	DependedBy            []string `json:"depended_by"`
	IsBottleneck          bool     `json:"is_bottleneck"`
	IsBlocked             bool     `json:"is_blocked"`
	DependencyDepth       int      `json:"dependency_depth"`
	HasCircularDependency bool     `json:"has_circular_dependency"`
}

// Stats is a point-in-time summary of the board.
type Stats struct {
	Tasks        map[models.TaskStatus]int  `json:"tasks"`
	Agents       map[models.AgentStatus]int `json:"agents"`
	TotalTasks   int                        `json:"total_tasks"`
	TotalAgents  int                        `json:"total_agents"`
	ActiveLeases int                        `json:"active_leases"`
	Running      bool                       `json:"running"`
}

// Task returns a copy of one task.
func (s *Scheduler) Task(id string) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.graph.Task(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t.Clone(), nil
}

// ListTasks returns copies of the tasks matching the filter, by id.
func (s *Scheduler) ListTasks(f TaskFilter) []*models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*models.Task{}
	for _, t := range s.graph.Tasks() {
		if f.match(t) {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Agent returns a copy of one agent.
func (s *Scheduler) Agent(id string) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agents.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return a, nil
}

// ListAgents returns copies of every agent, by id.
func (s *Scheduler) ListAgents() []*models.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agents.List()
}

// EligibleTasks returns the tasks the agent could be given right now, best
// first, without assigning anything.
func (s *Scheduler) EligibleTasks(agentID string) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	skills, err := s.agents.Skills(agentID)
	if err != nil {
		return nil, err
	}
	out := []*models.Task{}
	for _, t := range s.graph.EligibleTasks(skills) {
		if graph.HasSkills(t.RequiredSkills, skills) {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

// GetTaskDependencies reports the task's direct edges and its position in
// the graph.
func (s *Scheduler) GetTaskDependencies(taskID string) (*TaskDependencies, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.graph.Task(taskID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	deps := s.graph.Dependencies(taskID)
	dependents := s.graph.Dependents(taskID)
	blocked := t.Status == models.TaskStatusBlocked
	for _, id := range deps {
		if d, ok := s.graph.Task(id); ok && d.Status != models.TaskStatusDone {
			blocked = true
			break
		}
	}

	return &TaskDependencies{
		TaskID:                taskID,
		DependsOn:             nonNil(deps),
		DependedBy:            nonNil(dependents),
		IsBottleneck:          s.config.Health.IsBottleneck(t, len(dependents)),
		IsBlocked:             blocked,
		DependencyDepth:       s.graph.Depth(taskID),
		HasCircularDependency: s.graph.OnCycle(taskID),
	}, nil
}

// Snapshot copies the state health analysis needs.
func (s *Scheduler) Snapshot() health.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return health.Snapshot{
		Graph:  s.graph.Clone(),
		Agents: s.agents.List(),
		Now:    s.now(),
	}
}

// GetBoardHealth analyses a snapshot of the board. The analysis itself runs
// outside the lock.
func (s *Scheduler) GetBoardHealth() *health.Report {
	return health.NewAnalyzer(s.config.Health).Analyze(s.Snapshot())
}

// Blockers returns every blocked task.
func (s *Scheduler) Blockers() []*models.Task {
	return s.ListTasks(TaskFilter{Status: models.TaskStatusBlocked})
}

// Leases returns a copy of every active lease.
func (s *Scheduler) Leases() []*models.Lease {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.leases.Active()
}

// GetStats returns current scheduler statistics.
func (s *Scheduler) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Tasks:        make(map[models.TaskStatus]int),
		Agents:       make(map[models.AgentStatus]int),
		TotalTasks:   s.graph.Len(),
		TotalAgents:  s.agents.Len(),
		ActiveLeases: s.leases.Len(),
		Running:      s.started,
	}
	for _, t := range s.graph.Tasks() {
		st.Tasks[t.Status]++
	}
	for _, a := range s.agents.List() {
		st.Agents[a.Status]++
	}
	return st
}

// Restore replaces the board with persisted state. Leases for unknown tasks
// are dropped. Run ScanExpired afterwards to recover anything that lapsed
// while the process was down.
func (s *Scheduler) Restore(tasks []*models.Task, agents []*models.Agent, leases []*models.Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := graph.Load(tasks)
	if err != nil {
		return fmt.Errorf("restore tasks: %w", err)
	}
	s.graph = g
	s.leases = lease.NewManager(s.config.Lease, s.now)
	s.agents = registry.New(s.now)
	s.agents.Restore(agents)

	for _, l := range leases {
		t, ok := g.Task(l.TaskID)
		if !ok {
			s.logger.Printf("Dropping persisted lease for unknown task %s", l.TaskID)
			continue
		}
		if err := s.leases.Restore(*l, t.EstimatedHours); err != nil {
			s.logger.Printf("Skipping persisted lease for %s: %v", l.TaskID, err)
			continue
		}
		restored := *l
		t.Lease = &restored
	}

	if cycles := g.DetectCycles(); len(cycles) > 0 {
		s.logger.Printf("Restored board contains %d dependency cycle(s)", len(cycles))
	}
	s.logger.Printf("Restored %d task(s), %d agent(s), %d lease(s)", g.Len(), s.agents.Len(), s.leases.Len())
	return nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
