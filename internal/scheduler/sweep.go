package scheduler

import (
	"sort"

	"github.com/fentz26/taskgrid/internal/models"
)

// ScanExpired recovers tasks whose lease has lapsed and repairs any task or
// agent whose assignment state is inconsistent. It returns the ids of the
// tasks put back on the board. Repairs are logged, never returned as errors.
func (s *Scheduler) ScanExpired() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	recovered := make(map[string]bool)

	for _, l := range s.leases.Expired(now) {
		t, ok := s.graph.Task(l.TaskID)
		if !ok {
			s.leases.Release(l.TaskID)
			s.logger.Printf("Dropped lease for unknown task %s", l.TaskID)
			continue
		}
		s.requeue(t)
		recovered[t.ID] = true
		s.emit(models.EventLeaseRecovered, t, l.AgentID, "lease expired")
		s.logger.Printf("Recovered task %s: lease held by %s expired at %s",
			t.ID, l.AgentID, l.ExpiresAt.Format("2006-01-02 15:04:05"))
	}

	for _, t := range s.graph.Tasks() {
		if s.repairTask(t) {
			recovered[t.ID] = true
		}
	}
	s.repairAgents()

	ids := make([]string, 0, len(recovered))
	for id := range recovered {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// repairTask fixes a task whose status, assignee and lease disagree. It
// reports whether the task was returned to the board.
func (s *Scheduler) repairTask(t *models.Task) bool {
	held, hasLease := s.leases.Get(t.ID)

	switch t.Status {
	case models.TaskStatusInProgress, models.TaskStatusBlocked:
		if t.IsOrphan() || (hasLease && held.AgentID != t.AssignedAgent) {
			agentID := t.AssignedAgent
			s.requeue(t)
			s.emit(models.EventOrphanRepaired, t, agentID, "orphaned task reset")
			s.logger.Printf("Repaired orphaned task %s (agent %q): reset to todo", t.ID, agentID)
			return true
		}
		if t.Lease != nil && !hasLease {
			// The board knows about a lease the manager lost; adopt it so it
			// can still expire.
			if err := s.leases.Restore(*t.Lease, t.EstimatedHours); err == nil {
				s.logger.Printf("Adopted untracked lease on task %s", t.ID)
			}
		} else if hasLease && (t.Lease == nil || *t.Lease != *held) {
			t.Lease = held
		}
		return false
	}

	// Todo and Done tasks never hold a lease or, when Todo, an assignee.
	dirty := false
	if hasLease || t.Lease != nil {
		s.leases.Release(t.ID)
		t.Lease = nil
		dirty = true
	}
	if t.Status == models.TaskStatusTodo && t.AssignedAgent != "" {
		agentID := t.AssignedAgent
		t.AssignedAgent = ""
		s.agents.Release(agentID, t.ID, s.otherOwnedTask(agentID, t.ID))
		dirty = true
	}
	if dirty {
		t.UpdatedAt = s.now()
		s.emit(models.EventOrphanRepaired, t, "", "stray assignment cleared")
		s.logger.Printf("Cleared stray lease or assignee on %s task %s", t.Status, t.ID)
	}
	return false
}

// repairAgents points every agent at a task it actually holds.
func (s *Scheduler) repairAgents() {
	owned := make(map[string][]*models.Task)
	for _, t := range s.graph.Tasks() {
		if t.AssignedAgent == "" {
			continue
		}
		if t.Status == models.TaskStatusInProgress || t.Status == models.TaskStatusBlocked {
			owned[t.AssignedAgent] = append(owned[t.AssignedAgent], t)
		}
	}

	for _, a := range s.agents.List() {
		tasks := owned[a.ID]
		current := ""
		blocked := false
		for _, t := range tasks {
			if t.ID == a.CurrentTaskID {
				current = t.ID
				blocked = t.Status == models.TaskStatusBlocked
			}
		}
		if current == "" && len(tasks) > 0 {
			current = tasks[0].ID
			blocked = tasks[0].Status == models.TaskStatusBlocked
		}
		if s.agents.Repair(a.ID, current, blocked) {
			s.emit(models.EventAgentChanged, nil, a.ID, "agent state repaired")
			s.logger.Printf("Repaired agent %s: current task now %q", a.ID, current)
		}
	}
}
