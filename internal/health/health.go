// Package health analyses a snapshot of the board and produces a scored
// report of structural and workload problems.
package health

import (
	"sort"
	"time"

	"github.com/fentz26/taskgrid/internal/graph"
	"github.com/fentz26/taskgrid/internal/models"
)

// IssueType names a class of board problem.
type IssueType string

const (
	IssueSkillMismatch      IssueType = "skill_mismatch"
	IssueCircularDependency IssueType = "circular_dependency"
	IssueBottleneck         IssueType = "bottleneck"
	IssueChainBlock         IssueType = "chain_block"
	IssueStaleTask          IssueType = "stale_task"
	IssueAgentOverloaded    IssueType = "agent_overloaded"
	IssueAgentIdle          IssueType = "agent_idle"
)

// Severity ranks how much an issue hurts the board.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Rank orders severities from info (0) to critical (4).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Deduction is the number of points an issue of this severity costs.
func (s Severity) Deduction() int {
	switch s {
	case SeverityCritical:
		return 20
	case SeverityHigh:
		return 10
	case SeverityMedium:
		return 5
	case SeverityLow:
		return 2
	}
	return 0
}

// Status is the coarse health band a score falls in.
type Status string

const (
	StatusExcellent Status = "excellent"
	StatusGood      Status = "good"
	StatusFair      Status = "fair"
	StatusPoor      Status = "poor"
	StatusCritical  Status = "critical"
)

// StatusFor maps a score onto its band.
func StatusFor(score int) Status {
	switch {
	case score >= 90:
		return StatusExcellent
	case score >= 80:
		return StatusGood
	case score >= 70:
		return StatusFair
	case score >= 60:
		return StatusPoor
	}
	return StatusCritical
}

// Issue is one finding in a report.
type Issue struct {
	Type            IssueType `json:"type"`
	Severity        Severity  `json:"severity"`
	Description     string    `json:"description"`
	AffectedTaskIDs []string  `json:"affected_task_ids,omitempty"`
	AgentID         string    `json:"agent_id,omitempty"`
	Recommendations []string  `json:"recommendations,omitempty"`
}

// Stats summarises the board the report was computed over.
type Stats struct {
	TotalTasks     int     `json:"total_tasks"`
	Todo           int     `json:"todo"`
	InProgress     int     `json:"in_progress"`
	Done           int     `json:"done"`
	Blocked        int     `json:"blocked"`
	Agents         int     `json:"agents"`
	CompletionRate float64 `json:"completion_rate"`
	BlockedRate    float64 `json:"blocked_rate"`
}

// Report is the result of one analysis pass.
type Report struct {
	Score       int       `json:"health_score"`
	Status      Status    `json:"status"`
	Issues      []Issue   `json:"issues"`
	Stats       Stats     `json:"stats"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Snapshot is the state an analysis runs over. The analyzer only reads it;
// callers pass a copy taken under the scheduler's read lock.
type Snapshot struct {
	Graph  *graph.Graph
	Agents []*models.Agent
	Now    time.Time
}

// Config holds the analyzer thresholds.
type Config struct {
	BottleneckDependents     int           `yaml:"bottleneck_dependents" toml:"bottleneck_dependents"`
	BottleneckHighDependents int           `yaml:"bottleneck_high_dependents" toml:"bottleneck_high_dependents"`
	ChainDepth               int           `yaml:"chain_depth" toml:"chain_depth"`
	StaleAfter               time.Duration `yaml:"stale_after" toml:"stale_after"`
	OverloadedAbove          int           `yaml:"overloaded_above" toml:"overloaded_above"`
	HeavilyOverloadedAbove   int           `yaml:"heavily_overloaded_above" toml:"heavily_overloaded_above"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		BottleneckDependents:     3,
		BottleneckHighDependents: 5,
		ChainDepth:               4,
		StaleAfter:               7 * 24 * time.Hour,
		OverloadedAbove:          3,
		HeavilyOverloadedAbove:   5,
	}
}

// IsBottleneck reports whether a task with the given number of dependents
// holds up the board. Finished tasks never do.
func (c Config) IsBottleneck(t *models.Task, dependents int) bool {
	return t.Status != models.TaskStatusDone && dependents >= c.BottleneckDependents
}

// ComputeStats counts tasks by status.
func ComputeStats(tasks []*models.Task, agents int) Stats {
	s := Stats{TotalTasks: len(tasks), Agents: agents}
	for _, t := range tasks {
		switch t.Status {
		case models.TaskStatusTodo:
			s.Todo++
		case models.TaskStatusInProgress:
			s.InProgress++
		case models.TaskStatusDone:
			s.Done++
		case models.TaskStatusBlocked:
			s.Blocked++
		}
	}
	if s.TotalTasks > 0 {
		s.CompletionRate = float64(s.Done) / float64(s.TotalTasks)
		s.BlockedRate = float64(s.Blocked) / float64(s.TotalTasks)
	}
	return s
}

// Score computes the 0-100 health score for a set of issues and stats.
func Score(issues []Issue, stats Stats) int {
	score := 100
	for _, is := range issues {
		score -= is.Severity.Deduction()
	}
	if stats.TotalTasks > 0 {
		switch {
		case stats.CompletionRate < 0.10:
			score -= 10
		case stats.CompletionRate < 0.30:
			score -= 5
		}
		switch {
		case stats.BlockedRate > 0.30:
			score -= 10
		case stats.BlockedRate > 0.15:
			score -= 5
		}
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// SortIssues orders issues by severity, then type, then the first affected
// task and agent.
func SortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if fa, fb := first(a.AffectedTaskIDs), first(b.AffectedTaskIDs); fa != fb {
			return fa < fb
		}
		return a.AgentID < b.AgentID
	})
}

func first(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}
