package client

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/fentz26/taskgrid/internal/audit"
	"github.com/fentz26/taskgrid/internal/controlplane"
	"github.com/fentz26/taskgrid/internal/health"
	"github.com/fentz26/taskgrid/internal/models"
	"github.com/fentz26/taskgrid/internal/scheduler"
	"github.com/fentz26/taskgrid/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	svc := controlplane.NewService(nil, st, audit.NewPDRWriter(st), nil)
	ts := httptest.NewServer(controlplane.NewServer(svc, st, "").Handler())
	t.Cleanup(ts.Close)
	return New(ts.URL + "/")
}

func TestClientRoundTrip(t *testing.T) {
	c := newTestClient(t)

	h, err := c.Health()
	require.NoError(t, err)
	assert.True(t, h.OK)

	agent, err := c.RegisterAgent("agent-1", "Builder", []string{"Go"})
	require.NoError(t, err)
	assert.Equal(t, []string{"go"}, agent.Skills)

	res, err := c.SubmitTasks([]models.TaskDraft{
		{ID: "d", Name: "Design storage layout", Type: models.TaskTypeDesign, Feature: "store"},
		{ID: "i", Name: "Implement storage", Type: models.TaskTypeImplementation, Feature: "store"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "i"}, res.TaskIDs)

	task, err := c.RequestNextTask("agent-1")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "d", task.ID)

	// The implementation waits on the design task.
	none, err := c.RequestNextTask("agent-1")
	require.NoError(t, err)
	assert.Nil(t, none)

	task, err = c.ReportBlocker("agent-1", "d", "Need the retention policy")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusBlocked, task.Status)

	blockers, err := c.Blockers()
	require.NoError(t, err)
	require.Len(t, blockers, 1)
	assert.Equal(t, "Need the retention policy", blockers[0].Comments[0].Content)

	_, err = c.UnblockTask("d", "Policy is 30 days")
	require.NoError(t, err)
	task, err = c.ReportProgress("agent-1", "d", 100, models.ProgressCompleted, "done")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusDone, task.Status)

	deps, err := c.TaskDependencies("i")
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, deps.DependsOn)
	assert.False(t, deps.IsBlocked)

	tasks, err := c.ListTasks(scheduler.TaskFilter{Status: models.TaskStatusDone})
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	comments, err := c.Comments("d")
	require.NoError(t, err)
	assert.NotEmpty(t, comments)

	report, err := c.BoardHealth()
	require.NoError(t, err)
	assert.Equal(t, 100, report.Score)
	assert.Equal(t, health.StatusExcellent, report.Status)

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalTasks)
	assert.Equal(t, 1, stats.Tasks[models.TaskStatusDone])
}

func TestClientErrors(t *testing.T) {
	c := newTestClient(t)

	_, err := c.RequestNextTask("ghost")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	_, err = c.SubmitTasks([]models.TaskDraft{
		{ID: "t", Name: "Write tests", Type: models.TaskTypeTesting},
	}, nil)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.NotEmpty(t, apiErr.Problems)
	assert.Contains(t, err.Error(), "fix:")
}

func TestClientAuditAndCommentSearch(t *testing.T) {
	c := newTestClient(t)

	_, err := c.RegisterAgent("agent-1", "Builder", nil)
	require.NoError(t, err)
	_, err = c.SubmitTasks([]models.TaskDraft{
		{ID: "d", Name: "Design storage layout", Type: models.TaskTypeDesign, Feature: "store"},
	}, nil)
	require.NoError(t, err)
	_, err = c.RequestNextTask("agent-1")
	require.NoError(t, err)
	_, err = c.ReportBlocker("agent-1", "d", "Need the retention policy")
	require.NoError(t, err)

	entries, err := c.AuditLog("d", 0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		assert.Equal(t, "d", e.TaskID)
	}

	entries, err = c.AuditLog("", 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	comments, err := c.SearchComments("retention")
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "d", comments[0].TaskID)

	_, err = c.SearchComments("  ")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}
