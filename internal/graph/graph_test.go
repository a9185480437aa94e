package graph

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/taskgrid/internal/models"
)

func newTask(id string) *models.Task {
	return &models.Task{ID: id, Name: id, Status: models.TaskStatusTodo}
}

func buildGraph(t *testing.T, ids ...string) *Graph {
	t.Helper()
	g := New()
	for _, id := range ids {
		require.NoError(t, g.AddTask(newTask(id)))
	}
	return g
}

func TestAddTaskDuplicate(t *testing.T) {
	g := buildGraph(t, "a")
	err := g.AddTask(newTask("a"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateTask))

	assert.ErrorIs(t, g.AddTask(&models.Task{}), ErrInvalidTask)
}

func TestAddDependencyRejectsCycles(t *testing.T) {
	g := buildGraph(t, "a", "b", "c")
	require.NoError(t, g.AddDependency("b", "a"))
	require.NoError(t, g.AddDependency("c", "b"))

	err := g.AddDependency("a", "c")
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, "a", cycleErr.TaskID)
	assert.Equal(t, "c", cycleErr.DependsOn)
	assert.Equal(t, []string{"c", "b", "a"}, cycleErr.Path)

	require.ErrorAs(t, g.AddDependency("a", "a"), &cycleErr)
	assert.Empty(t, g.DetectCycles())

	t.Run("unknown ids", func(t *testing.T) {
		assert.ErrorIs(t, g.AddDependency("a", "zzz"), ErrUnknownTask)
		assert.ErrorIs(t, g.AddDependency("zzz", "a"), ErrUnknownTask)
	})

	t.Run("existing edge is a no-op", func(t *testing.T) {
		require.NoError(t, g.AddDependency("b", "a"))
		assert.Equal(t, []string{"a"}, g.Dependencies("b"))
	})
}

func TestDAGInvariantUnderRandomEdges(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	g := New()
	const n = 30
	for i := 0; i < n; i++ {
		require.NoError(t, g.AddTask(newTask(fmt.Sprintf("t%02d", i))))
	}
	accepted := 0
	for i := 0; i < 400; i++ {
		a := fmt.Sprintf("t%02d", rng.Intn(n))
		b := fmt.Sprintf("t%02d", rng.Intn(n))
		if err := g.AddDependency(a, b); err == nil {
			accepted++
		}
		require.Empty(t, g.DetectCycles(), "cycle after edge %s -> %s", a, b)
	}
	assert.Greater(t, accepted, 0)
}

func TestEligibility(t *testing.T) {
	g := buildGraph(t, "design", "impl", "test")
	require.NoError(t, g.AddDependency("impl", "design"))
	require.NoError(t, g.AddDependency("test", "impl"))

	completed := g.CompletedSet()
	assert.True(t, g.IsEligible("design", completed))
	assert.False(t, g.IsEligible("impl", completed))
	assert.False(t, g.IsEligible("missing", completed))

	design, _ := g.Task("design")
	design.Status = models.TaskStatusDone
	completed = g.CompletedSet()
	assert.False(t, g.IsEligible("design", completed))
	assert.True(t, g.IsEligible("impl", completed))
	assert.False(t, g.IsEligible("test", completed))

	impl, _ := g.Task("impl")
	impl.AssignedAgent = "agent-1"
	assert.False(t, g.IsEligible("impl", completed))

	impl.AssignedAgent = ""
	impl.Status = models.TaskStatusBlocked
	assert.False(t, g.IsEligible("impl", completed))
}

func TestEligibleTasksRanking(t *testing.T) {
	g := New()
	tasks := []*models.Task{
		{ID: "c", Status: models.TaskStatusTodo, EstimatedHours: 1},
		{ID: "b", Status: models.TaskStatusTodo, EstimatedHours: 1},
		{ID: "a", Status: models.TaskStatusTodo, EstimatedHours: 5},
		{ID: "go", Status: models.TaskStatusTodo, EstimatedHours: 8, RequiredSkills: []string{"go"}},
		{ID: "go-sql", Status: models.TaskStatusTodo, EstimatedHours: 9, RequiredSkills: []string{"go", "sql"}},
	}
	for _, task := range tasks {
		require.NoError(t, g.AddTask(task))
	}

	var ids []string
	for _, task := range g.EligibleTasks([]string{"Go", "SQL"}) {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []string{"go-sql", "go", "b", "c", "a"}, ids)
}

func TestSkillHelpers(t *testing.T) {
	assert.True(t, HasSkills(nil, nil))
	assert.True(t, HasSkills([]string{"Go"}, []string{"go", "python"}))
	assert.False(t, HasSkills([]string{"go", "rust"}, []string{"go"}))
	assert.Equal(t, []string{"rust"}, MissingSkills([]string{"go", "Rust"}, []string{"go"}))
}

func TestLoadDetectsImportedCycles(t *testing.T) {
	tasks := []*models.Task{
		{ID: "a", Status: models.TaskStatusTodo, Dependencies: []string{"c"}},
		{ID: "b", Status: models.TaskStatusTodo, Dependencies: []string{"a"}},
		{ID: "c", Status: models.TaskStatusTodo, Dependencies: []string{"b", "ghost"}},
		{ID: "d", Status: models.TaskStatusTodo, Dependencies: []string{"d"}},
		{ID: "e", Status: models.TaskStatusTodo},
	}
	g, err := Load(tasks)
	require.NoError(t, err)

	cycles := g.DetectCycles()
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"a", "c", "b"}, cycles[0])

	assert.True(t, g.OnCycle("b"))
	assert.False(t, g.OnCycle("e"))
	assert.Equal(t, []string{"b"}, g.Dependencies("c"))
	assert.Empty(t, g.Dependencies("d"))
}

func TestLongestChainAndDepth(t *testing.T) {
	g := buildGraph(t, "a", "b", "c", "d", "x")
	require.NoError(t, g.AddDependency("b", "a"))
	require.NoError(t, g.AddDependency("c", "b"))
	require.NoError(t, g.AddDependency("d", "c"))
	require.NoError(t, g.AddDependency("d", "x"))

	assert.Equal(t, []string{"a", "b", "c", "d"}, g.LongestChain("d", nil))
	assert.Equal(t, 3, g.Depth("d"))
	assert.Equal(t, 0, g.Depth("a"))
	assert.Equal(t, []string{"b"}, g.Dependents("a"))

	a, _ := g.Task("a")
	a.Status = models.TaskStatusDone
	notDone := func(t *models.Task) bool { return t.Status != models.TaskStatusDone }
	assert.Equal(t, []string{"b", "c", "d"}, g.LongestChain("d", notDone))
}

func TestCloneIsIndependent(t *testing.T) {
	g := buildGraph(t, "a", "b")
	require.NoError(t, g.AddDependency("b", "a"))

	c := g.Clone()
	require.NoError(t, c.AddTask(newTask("z")))
	require.NoError(t, c.AddDependency("a", "z"))
	ct, _ := c.Task("a")
	ct.Status = models.TaskStatusDone

	orig, _ := g.Task("a")
	assert.Equal(t, models.TaskStatusTodo, orig.Status)
	assert.Equal(t, 2, g.Len())
	assert.Empty(t, g.Dependencies("a"))
}
