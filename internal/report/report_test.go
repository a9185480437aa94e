package report

import (
	"testing"
	"time"

	"github.com/fentz26/taskgrid/internal/health"
	"github.com/fentz26/taskgrid/internal/models"
	"github.com/fentz26/taskgrid/internal/scheduler"
	"github.com/stretchr/testify/assert"
)

func TestHealth(t *testing.T) {
	r := &health.Report{
		Score:  70,
		Status: health.StatusFair,
		Issues: []health.Issue{{
			Type:            health.IssueCircularDependency,
			Severity:        health.SeverityCritical,
			Description:     "Circular dependency: a -> b -> a",
			AffectedTaskIDs: []string{"a", "b"},
			Recommendations: []string{"Remove one of the dependencies"},
		}},
		Stats: health.Stats{TotalTasks: 2, Todo: 2, Agents: 1},
	}

	out := Health(r)
	assert.Contains(t, out, "70/100 (fair)")
	assert.Contains(t, out, "CRITICAL")
	assert.Contains(t, out, "Circular dependency: a -> b -> a")
	assert.Contains(t, out, "tasks: a, b")
	assert.Contains(t, out, "Remove one of the dependencies")
	assert.Contains(t, out, "2 tasks: 2 todo")
}

func TestHealthWithoutIssues(t *testing.T) {
	out := Health(&health.Report{Score: 100, Status: health.StatusExcellent})
	assert.Contains(t, out, "No issues found.")
}

func TestTasks(t *testing.T) {
	assert.Contains(t, Tasks(nil), "No tasks.")

	out := Tasks([]*models.Task{
		{ID: "api-design", Name: "Design API", Type: models.TaskTypeDesign, Status: models.TaskStatusDone},
		{ID: "api-impl", Name: "Implement API", Type: models.TaskTypeImplementation,
			Status: models.TaskStatusInProgress, AssignedAgent: "agent-1"},
	})
	assert.Contains(t, out, "api-design")
	assert.Contains(t, out, "Implement API")
	assert.Contains(t, out, "in_progress")
	assert.Contains(t, out, "@agent-1")
}

func TestTask(t *testing.T) {
	task := &models.Task{
		ID:             "api-impl",
		Name:           "Implement API",
		Type:           models.TaskTypeImplementation,
		Status:         models.TaskStatusBlocked,
		RequiredSkills: []string{"go"},
		EstimatedHours: 6,
		Lease: &models.Lease{
			ExpiresAt:    time.Date(2025, 3, 3, 13, 0, 0, 0, time.UTC),
			RenewalCount: 2,
		},
	}
	out := Task(task, []models.Comment{{Kind: "blocker", Content: "Waiting on keys", CreatedAt: time.Now()}})
	assert.Contains(t, out, "blocked")
	assert.Contains(t, out, "6.0h")
	assert.Contains(t, out, "2025-03-03 13:00")
	assert.Contains(t, out, "board [blocker] Waiting on keys")
}

func TestDependencies(t *testing.T) {
	out := Dependencies(&scheduler.TaskDependencies{
		TaskID:                "b",
		DependsOn:             []string{"a"},
		DependencyDepth:       1,
		IsBlocked:             true,
		HasCircularDependency: true,
	})
	assert.Contains(t, out, "Dependencies of b")
	assert.Contains(t, out, "none")
	assert.Contains(t, out, "blocked")
	assert.Contains(t, out, "circular")
}
