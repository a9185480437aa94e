package phase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/taskgrid/internal/graph"
	"github.com/fentz26/taskgrid/internal/models"
)

func task(id string, typ models.TaskType) *models.Task {
	return &models.Task{ID: id, Name: id, Type: typ, Status: models.TaskStatusTodo}
}

func TestEnforcePhaseOrderSingleFeature(t *testing.T) {
	tasks := []*models.Task{
		task("d1", models.TaskTypeDesign),
		task("i1", models.TaskTypeImplementation),
		task("t1", models.TaskTypeTesting),
		task("doc1", models.TaskTypeDocumentation),
	}

	edges := EnforcePhaseOrder(tasks)
	assert.Equal(t, []models.Edge{
		{TaskID: "doc1", DependsOn: "d1"},
		{TaskID: "doc1", DependsOn: "i1"},
		{TaskID: "doc1", DependsOn: "t1"},
		{TaskID: "i1", DependsOn: "d1"},
		{TaskID: "t1", DependsOn: "i1"},
	}, edges)
}

func TestEnforcePhaseOrderGroupsByFeature(t *testing.T) {
	da := task("d-a", models.TaskTypeDesign)
	da.Feature = "a"
	ia := task("i-a", models.TaskTypeImplementation)
	ia.Feature = "A"
	ib := task("i-b", models.TaskTypeImplementation)
	ib.Labels = []string{"feature:b"}
	tb := task("t-b", models.TaskTypeTesting)
	tb.Feature = "b"
	depB := task("dep-b", models.TaskTypeDeployment)
	depB.Feature = "b"
	ic := task("i-c", models.TaskTypeImplementation)
	ic.Feature = "c"
	depC := task("dep-c", models.TaskTypeDeployment)
	depC.Feature = "c"

	edges := EnforcePhaseOrder([]*models.Task{da, ia, ib, tb, depB, ic, depC})
	assert.ElementsMatch(t, []models.Edge{
		{TaskID: "i-a", DependsOn: "d-a"},
		{TaskID: "t-b", DependsOn: "i-b"},
		{TaskID: "dep-b", DependsOn: "t-b"},
		{TaskID: "dep-c", DependsOn: "i-c"},
	}, edges)
}

func TestEnforcePhaseOrderSkipsStartedAndExisting(t *testing.T) {
	d := task("d", models.TaskTypeDesign)
	started := task("started", models.TaskTypeImplementation)
	started.Status = models.TaskStatusInProgress
	linked := task("linked", models.TaskTypeImplementation)
	linked.Dependencies = []string{"d"}
	doneDoc := task("done-doc", models.TaskTypeDocumentation)
	doneDoc.Status = models.TaskStatusDone

	edges := EnforcePhaseOrder([]*models.Task{d, started, linked, doneDoc})
	assert.Empty(t, edges)
}

func TestDocumentationDependsOnEverything(t *testing.T) {
	tasks := []*models.Task{
		task("x", models.TaskTypeOther),
		task("infra", models.TaskTypeInfrastructure),
		task("doc-a", models.TaskTypeDocumentation),
		task("doc-b", models.TaskTypeDocumentation),
	}
	tasks[2].Feature = "unrelated"

	edges := EnforcePhaseOrder(tasks)
	deps := make(map[string][]string)
	for _, e := range edges {
		deps[e.TaskID] = append(deps[e.TaskID], e.DependsOn)
	}
	assert.ElementsMatch(t, []string{"infra", "x"}, deps["doc-a"])
	assert.ElementsMatch(t, []string{"infra", "x"}, deps["doc-b"])
	assert.Len(t, deps, 2)
}

func TestValidateMissingImplementation(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.AddTask(task("d1", models.TaskTypeDesign)))
	require.NoError(t, g.AddTask(task("t1", models.TaskTypeTesting)))
	require.NoError(t, g.AddDependency("t1", "d1"))

	errs := ValidateDependencies(g)
	require.Len(t, errs, 1)
	assert.Equal(t, CodeMissingImplementation, errs[0].Code)
	assert.Equal(t, []string{"t1"}, errs[0].TaskIDs)
	assert.Contains(t, errs[0].SuggestedFix, "create an implementation task")

	impl := task("i1", models.TaskTypeImplementation)
	impl.Feature = "other"
	require.NoError(t, g.AddTask(impl))
	errs = ValidateDependencies(g)
	require.Len(t, errs, 1)
	assert.Equal(t, "add a dependency t1 -> i1", errs[0].SuggestedFix)

	require.NoError(t, g.AddDependency("d1", "i1"))
	errs = ValidateDependencies(g)
	// d1 now reaches i1, so t1 is satisfied transitively, but design after
	// implementation breaks phase order.
	require.Len(t, errs, 1)
	assert.Equal(t, CodePhaseOrder, errs[0].Code)
	assert.Equal(t, []string{"d1", "i1"}, errs[0].TaskIDs)
}

func TestValidateReportsCycles(t *testing.T) {
	g, err := graph.Load([]*models.Task{
		{ID: "a", Type: models.TaskTypeOther, Status: models.TaskStatusTodo, Dependencies: []string{"b"}},
		{ID: "b", Type: models.TaskTypeOther, Status: models.TaskStatusTodo, Dependencies: []string{"a"}},
	})
	require.NoError(t, err)

	errs := ValidateDependencies(g)
	require.Len(t, errs, 1)
	assert.Equal(t, CodeCircularDependency, errs[0].Code)
	assert.Equal(t, "circular dependency: a -> b -> a", errs[0].Message)
	assert.Equal(t, "remove the dependency b -> a", errs[0].SuggestedFix)
	assert.EqualError(t, errs, errs[0].Message)
}

func TestValidationErrorsJoin(t *testing.T) {
	errs := ValidationErrors{{Message: "one"}, {Message: "two"}}
	assert.EqualError(t, errs, "2 dependency problems: one; two")
}

func TestRankOrdering(t *testing.T) {
	order := []models.TaskType{
		models.TaskTypeDesign,
		models.TaskTypeInfrastructure,
		models.TaskTypeImplementation,
		models.TaskTypeTesting,
		models.TaskTypeDeployment,
		models.TaskTypeDocumentation,
	}
	for i := 1; i < len(order); i++ {
		assert.Less(t, Rank(order[i-1]), Rank(order[i]))
	}
	assert.Zero(t, Rank(models.TaskTypeOther))
}
