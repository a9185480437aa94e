package main

import (
	"path/filepath"
	"testing"

	"github.com/fentz26/taskgrid/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlanMapping(t *testing.T) {
	plan, err := parsePlan([]byte(`
tasks:
  - id: api-design
    name: Design API
    type: design
    feature: api
  - id: api-impl
    name: Implement API
    required_skills: [go]
    estimated_hours: 6
edges:
  - task_id: api-impl
    depends_on: api-design
`))
	require.NoError(t, err)
	require.Len(t, plan.Tasks, 2)
	assert.Equal(t, models.TaskTypeDesign, plan.Tasks[0].Type)
	assert.Equal(t, []string{"go"}, plan.Tasks[1].RequiredSkills)
	assert.Equal(t, 6.0, plan.Tasks[1].EstimatedHours)
	assert.Equal(t, []models.Edge{{TaskID: "api-impl", DependsOn: "api-design"}}, plan.Edges)
}

func TestParsePlanJSONList(t *testing.T) {
	plan, err := parsePlan([]byte(`[{"id": "a", "name": "Write docs", "dependencies": ["b"]}, {"id": "b", "name": "Build it"}]`))
	require.NoError(t, err)
	require.Len(t, plan.Tasks, 2)
	assert.Equal(t, []string{"b"}, plan.Tasks[0].Dependencies)
	assert.Empty(t, plan.Edges)
}

func TestParsePlanRejectsEmpty(t *testing.T) {
	for _, in := range []string{"", "tasks: []", "just a string"} {
		_, err := parsePlan([]byte(in))
		assert.Error(t, err, "input %q", in)
	}
}

func TestWritePlanRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	want := &Plan{Tasks: []models.TaskDraft{{ID: "a", Name: "Only"}}}
	require.NoError(t, writePlan(path, want))

	got, err := loadPlan(path)
	require.NoError(t, err)
	assert.Equal(t, want.Tasks, got.Tasks)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"go", "sql"}, splitList(" go, ,sql "))
	assert.Nil(t, splitList(""))
}
