package health

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/taskgrid/internal/graph"
	"github.com/fentz26/taskgrid/internal/models"
)

var now = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func todo(id string, deps ...string) *models.Task {
	return &models.Task{ID: id, Name: id, Status: models.TaskStatusTodo, Dependencies: deps, UpdatedAt: now}
}

func load(t *testing.T, tasks ...*models.Task) *graph.Graph {
	t.Helper()
	g, err := graph.Load(tasks)
	require.NoError(t, err)
	return g
}

func byType(issues []Issue) map[IssueType][]Issue {
	out := make(map[IssueType][]Issue)
	for _, is := range issues {
		out[is.Type] = append(out[is.Type], is)
	}
	return out
}

func TestScore(t *testing.T) {
	critical := []Issue{{Type: IssueCircularDependency, Severity: SeverityCritical}}

	assert.Equal(t, 100, Score(nil, Stats{}))
	assert.Equal(t, 80, Score(critical, Stats{}))

	stats := Stats{TotalTasks: 10, Done: 4, Blocked: 4, CompletionRate: 0.4, BlockedRate: 0.4}
	assert.Equal(t, 70, Score(critical, stats))

	stats = Stats{TotalTasks: 10, Done: 2, Blocked: 2, CompletionRate: 0.2, BlockedRate: 0.2}
	assert.Equal(t, 90, Score(nil, stats))

	stats = Stats{TotalTasks: 10, CompletionRate: 0}
	assert.Equal(t, 90, Score(nil, stats))

	many := make([]Issue, 8)
	for i := range many {
		many[i].Severity = SeverityCritical
	}
	assert.Equal(t, 0, Score(many, Stats{}))

	info := []Issue{{Severity: SeverityInfo}, {Severity: SeverityLow}}
	assert.Equal(t, 98, Score(info, Stats{}))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		score int
		want  Status
	}{
		{100, StatusExcellent},
		{90, StatusExcellent},
		{89, StatusGood},
		{80, StatusGood},
		{70, StatusFair},
		{60, StatusPoor},
		{59, StatusCritical},
		{0, StatusCritical},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.score), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.score))
		})
	}
}

func TestAnalyzeEmptyBoard(t *testing.T) {
	r := NewAnalyzer(DefaultConfig()).Analyze(Snapshot{Now: now})
	assert.Equal(t, 100, r.Score)
	assert.Equal(t, StatusExcellent, r.Status)
	assert.Empty(t, r.Issues)
	assert.Equal(t, now, r.GeneratedAt)
}

func TestAnalyzeFindsEveryIssueType(t *testing.T) {
	rust := todo("rust-task")
	rust.RequiredSkills = []string{"rust"}
	combo := todo("combo")
	combo.RequiredSkills = []string{"go", "python"}

	old := todo("old")
	old.Status = models.TaskStatusInProgress
	old.AssignedAgent = "a1"
	old.UpdatedAt = now.Add(-8 * 24 * time.Hour)

	tasks := []*models.Task{
		rust, combo, old,
		todo("core"), todo("d1", "core"), todo("d2", "core"), todo("d3", "core"),
		todo("c0"), todo("c1", "c0"), todo("c2", "c1"), todo("c3", "c2"), todo("c4", "c3"),
	}
	for i := 1; i <= 4; i++ {
		w := todo(fmt.Sprintf("w%d", i))
		w.Status = models.TaskStatusInProgress
		w.AssignedAgent = "a3"
		tasks = append(tasks, w)
	}

	agents := []*models.Agent{
		{ID: "a1", Skills: []string{"go"}},
		{ID: "a2", Skills: []string{"python"}},
		{ID: "a3"},
	}

	r := NewAnalyzer(DefaultConfig()).Analyze(Snapshot{Graph: load(t, tasks...), Agents: agents, Now: now})
	found := byType(r.Issues)

	require.Len(t, found[IssueSkillMismatch], 2)
	assert.Equal(t, []string{"combo"}, found[IssueSkillMismatch][0].AffectedTaskIDs)
	assert.Contains(t, found[IssueSkillMismatch][0].Description, "all skills")
	assert.Contains(t, found[IssueSkillMismatch][1].Description, "rust")

	require.Len(t, found[IssueBottleneck], 1)
	assert.Equal(t, SeverityMedium, found[IssueBottleneck][0].Severity)
	assert.Equal(t, []string{"core", "d1", "d2", "d3"}, found[IssueBottleneck][0].AffectedTaskIDs)

	require.Len(t, found[IssueChainBlock], 1)
	assert.Equal(t, []string{"c0", "c1", "c2", "c3", "c4"}, found[IssueChainBlock][0].AffectedTaskIDs)

	require.Len(t, found[IssueStaleTask], 1)
	assert.Equal(t, "a1", found[IssueStaleTask][0].AgentID)

	require.Len(t, found[IssueAgentOverloaded], 1)
	assert.Equal(t, SeverityLow, found[IssueAgentOverloaded][0].Severity)
	assert.Equal(t, "a3", found[IssueAgentOverloaded][0].AgentID)

	require.Len(t, found[IssueAgentIdle], 1)
	assert.Equal(t, "a2", found[IssueAgentIdle][0].AgentID)

	assert.Empty(t, found[IssueCircularDependency])

	// 2 high, 3 medium, 1 low, 1 info, and nothing done yet.
	assert.Equal(t, 100-20-15-2-10, r.Score)
	assert.Equal(t, StatusCritical, r.Status)

	var order []IssueType
	for _, is := range r.Issues {
		order = append(order, is.Type)
	}
	assert.Equal(t, []IssueType{
		IssueSkillMismatch, IssueSkillMismatch,
		IssueBottleneck, IssueChainBlock, IssueStaleTask,
		IssueAgentOverloaded, IssueAgentIdle,
	}, order)
}

func TestAnalyzeCycles(t *testing.T) {
	g := load(t, todo("a", "b"), todo("b", "a"))
	r := NewAnalyzer(DefaultConfig()).Analyze(Snapshot{Graph: g, Now: now})

	require.Len(t, r.Issues, 1)
	assert.Equal(t, IssueCircularDependency, r.Issues[0].Type)
	assert.Equal(t, SeverityCritical, r.Issues[0].Severity)
	assert.Equal(t, []string{"a", "b"}, r.Issues[0].AffectedTaskIDs)
	assert.Equal(t, 70, r.Score)
	assert.Equal(t, StatusFair, r.Status)
}

func TestBottleneckSeverityAndDoneTasks(t *testing.T) {
	tasks := []*models.Task{todo("hub")}
	for i := 0; i < 5; i++ {
		tasks = append(tasks, todo(fmt.Sprintf("leaf%d", i), "hub"))
	}
	a := NewAnalyzer(DefaultConfig())

	found := byType(a.Analyze(Snapshot{Graph: load(t, tasks...), Now: now}).Issues)
	require.Len(t, found[IssueBottleneck], 1)
	assert.Equal(t, SeverityHigh, found[IssueBottleneck][0].Severity)

	tasks[0].Status = models.TaskStatusDone
	found = byType(a.Analyze(Snapshot{Graph: load(t, tasks...), Now: now}).Issues)
	assert.Empty(t, found[IssueBottleneck])
}

func TestConfigIsBottleneck(t *testing.T) {
	cfg := DefaultConfig()
	hub := todo("hub")
	assert.False(t, cfg.IsBottleneck(hub, 2))
	assert.True(t, cfg.IsBottleneck(hub, 3))

	hub.Status = models.TaskStatusDone
	assert.False(t, cfg.IsBottleneck(hub, 10))
}

func TestChainDepthBelowThreshold(t *testing.T) {
	g := load(t, todo("c0"), todo("c1", "c0"), todo("c2", "c1"), todo("c3", "c2"))
	found := byType(NewAnalyzer(DefaultConfig()).Analyze(Snapshot{Graph: g, Now: now}).Issues)
	assert.Empty(t, found[IssueChainBlock])
}
