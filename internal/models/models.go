// Package models defines the core domain types for taskgrid.
package models

import (
	"sort"
	"strings"
	"time"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusBlocked    TaskStatus = "blocked"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone, TaskStatusBlocked:
		return true
	}
	return false
}

// TaskType is the lifecycle phase a task belongs to.
type TaskType string

const (
	TaskTypeDesign         TaskType = "design"
	TaskTypeImplementation TaskType = "implementation"
	TaskTypeTesting        TaskType = "testing"
	TaskTypeDocumentation  TaskType = "documentation"
	TaskTypeDeployment     TaskType = "deployment"
	TaskTypeInfrastructure TaskType = "infrastructure"
	TaskTypeOther          TaskType = "other"
)

// TaskTypes lists every task type in classification order.
var TaskTypes = []TaskType{
	TaskTypeDesign,
	TaskTypeImplementation,
	TaskTypeTesting,
	TaskTypeDocumentation,
	TaskTypeDeployment,
	TaskTypeInfrastructure,
	TaskTypeOther,
}

// ParseTaskType maps a loosely written type name onto a TaskType. The second
// return value is false when the name is not recognised.
func ParseTaskType(s string) (TaskType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "design":
		return TaskTypeDesign, true
	case "implementation", "impl", "implement":
		return TaskTypeImplementation, true
	case "testing", "test", "tests":
		return TaskTypeTesting, true
	case "documentation", "docs", "doc":
		return TaskTypeDocumentation, true
	case "deployment", "deploy":
		return TaskTypeDeployment, true
	case "infrastructure", "infra":
		return TaskTypeInfrastructure, true
	case "other":
		return TaskTypeOther, true
	}
	return "", false
}

// Task represents a unit of work on the board.
type Task struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	Type           TaskType   `json:"type"`
	Status         TaskStatus `json:"status"`
	Feature        string     `json:"feature,omitempty"`
	Dependencies   []string   `json:"dependencies"`
	Labels         []string   `json:"labels,omitempty"`
	RequiredSkills []string   `json:"required_skills,omitempty"`
	EstimatedHours float64    `json:"estimated_hours"`
	AssignedAgent  string     `json:"assigned_agent,omitempty"`
	Lease          *Lease     `json:"lease,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Clone returns a deep copy so callers never share slices or the lease with
// the graph that owns the original.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Dependencies = append([]string(nil), t.Dependencies...)
	c.Labels = append([]string(nil), t.Labels...)
	c.RequiredSkills = append([]string(nil), t.RequiredSkills...)
	if t.Lease != nil {
		l := *t.Lease
		c.Lease = &l
	}
	return &c
}

// HasDependency reports whether id is a direct dependency of the task.
func (t *Task) HasDependency(id string) bool {
	for _, dep := range t.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}

// IsOrphan reports whether the task is in progress (or blocked while held)
// without a consistent assignee and lease.
func (t *Task) IsOrphan() bool {
	switch t.Status {
	case TaskStatusInProgress:
		if t.AssignedAgent == "" || t.Lease == nil {
			return true
		}
	case TaskStatusBlocked:
		// A blocked task that was never assigned is a manual block, not an orphan.
		if t.AssignedAgent == "" && t.Lease == nil {
			return false
		}
		if t.AssignedAgent == "" || t.Lease == nil {
			return true
		}
	default:
		return false
	}
	return t.Lease.AgentID != t.AssignedAgent || t.Lease.TaskID != t.ID
}

// Lease represents a time-bounded exclusive claim an agent holds on a task.
type Lease struct {
	TaskID              string    `json:"task_id"`
	AgentID             string    `json:"agent_id"`
	GrantedAt           time.Time `json:"granted_at"`
	ExpiresAt           time.Time `json:"expires_at"`
	RenewalCount        int       `json:"renewal_count"`
	LastProgressPercent float64   `json:"last_progress_percent"`
}

// Expired reports whether the lease has lapsed at now.
func (l *Lease) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// AgentStatus represents the availability of an agent.
type AgentStatus string

const (
	AgentStatusRegistered AgentStatus = "registered"
	AgentStatusAvailable  AgentStatus = "available"
	AgentStatusWorking    AgentStatus = "working"
	AgentStatusBlocked    AgentStatus = "blocked"
)

// Agent is a worker that polls the board for tasks.
type Agent struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Skills        []string    `json:"skills"`
	CurrentTaskID string      `json:"current_task_id,omitempty"`
	Status        AgentStatus `json:"status"`
	RegisteredAt  time.Time   `json:"registered_at"`
}

// Clone returns a copy of the agent with its own skills slice.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	c := *a
	c.Skills = append([]string(nil), a.Skills...)
	return &c
}

// TaskDraft is a task definition submitted for ingestion, usually produced by
// a text-to-tasks generator or read from a plan file.
type TaskDraft struct {
	ID             string   `json:"id,omitempty" yaml:"id,omitempty"`
	Name           string   `json:"name" yaml:"name"`
	Description    string   `json:"description,omitempty" yaml:"description,omitempty"`
	Type           TaskType `json:"type,omitempty" yaml:"type,omitempty"`
	Feature        string   `json:"feature,omitempty" yaml:"feature,omitempty"`
	Labels         []string `json:"labels,omitempty" yaml:"labels,omitempty"`
	RequiredSkills []string `json:"required_skills,omitempty" yaml:"required_skills,omitempty"`
	EstimatedHours float64  `json:"estimated_hours,omitempty" yaml:"estimated_hours,omitempty"`
	Dependencies   []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// Edge declares that TaskID depends on DependsOn.
type Edge struct {
	TaskID    string `json:"task_id" yaml:"task_id"`
	DependsOn string `json:"depends_on" yaml:"depends_on"`
}

// ProgressStatus is the state an agent reports alongside a progress update.
type ProgressStatus string

const (
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressCompleted  ProgressStatus = "completed"
	ProgressBlocked    ProgressStatus = "blocked"
)

// EventKind names a state transition emitted by the scheduler.
type EventKind string

const (
	EventTaskSubmitted  EventKind = "task.submitted"
	EventTaskUpdated    EventKind = "task.updated"
	EventTaskAssigned   EventKind = "task.assigned"
	EventTaskProgress   EventKind = "task.progress"
	EventTaskCompleted  EventKind = "task.completed"
	EventTaskBlocked    EventKind = "task.blocked"
	EventTaskUnblocked  EventKind = "task.unblocked"
	EventTaskReleased   EventKind = "task.released"
	EventLeaseRecovered EventKind = "lease.recovered"
	EventOrphanRepaired EventKind = "task.orphan_repaired"
	EventAgentChanged   EventKind = "agent.changed"
)

// Event is an ordered record of a scheduler state transition. Task and Agent
// are snapshots taken inside the critical section that produced the event.
type Event struct {
	ID      string    `json:"id"`
	Kind    EventKind `json:"kind"`
	TaskID  string    `json:"task_id,omitempty"`
	AgentID string    `json:"agent_id,omitempty"`
	Message string    `json:"message,omitempty"`
	Task    *Task     `json:"task,omitempty"`
	Agent   *Agent    `json:"agent,omitempty"`
	At      time.Time `json:"at"`
}

// Comment is a note attached to a task on the board.
type Comment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Author    string    `json:"author,omitempty"`
	Kind      string    `json:"kind"` // "blocker", "progress" or "note"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// PDREntry represents a Process Decision Record for audit.
type PDREntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	TaskID     string    `json:"task_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NormalizeSkills lower-cases, trims, de-duplicates and sorts a skill set.
func NormalizeSkills(skills []string) []string {
	seen := make(map[string]bool, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
