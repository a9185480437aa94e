// Package client is a typed HTTP client for the taskgrid control plane.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/taskgrid/internal/controlplane"
	"github.com/fentz26/taskgrid/internal/health"
	"github.com/fentz26/taskgrid/internal/models"
	"github.com/fentz26/taskgrid/internal/scheduler"
)

// DefaultTimeout is the default timeout for API requests.
const DefaultTimeout = 10 * time.Second

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Message    string
	Problems   []string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
	if len(e.Problems) > 0 {
		msg += "\n  - " + strings.Join(e.Problems, "\n  - ")
	}
	return msg
}

// Client talks to a running daemon.
type Client struct {
	addr string
	http *http.Client
}

// New creates a client for the daemon at addr, e.g. http://127.0.0.1:7466.
func New(addr string) *Client {
	return &Client{
		addr: strings.TrimRight(addr, "/"),
		http: &http.Client{Timeout: DefaultTimeout},
	}
}

// Health checks the daemon. The parsed response is returned alongside the
// error when the daemon reports itself unhealthy.
func (c *Client) Health() (*controlplane.HealthResponse, error) {
	resp, err := c.http.Get(c.addr + "/health")
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var h controlplane.HealthResponse
	if err := json.Unmarshal(body, &h); err != nil {
		return nil, fmt.Errorf("failed to parse health response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &h, fmt.Errorf("health check failed (status %d): %s", resp.StatusCode, h.DB)
	}
	return &h, nil
}

// RegisterAgent adds or updates an agent.
func (c *Client) RegisterAgent(id, name string, skills []string) (*models.Agent, error) {
	var a models.Agent
	req := controlplane.RegisterAgentRequest{ID: id, Name: name, Skills: skills}
	if _, err := c.do(http.MethodPost, "/agents", req, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAgents returns every agent.
func (c *Client) ListAgents() ([]*models.Agent, error) {
	var agents []*models.Agent
	if _, err := c.do(http.MethodGet, "/agents", nil, &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// SubmitTasks ingests drafts and explicit edges.
func (c *Client) SubmitTasks(drafts []models.TaskDraft, edges []models.Edge) (*scheduler.SubmitResult, error) {
	var res scheduler.SubmitResult
	req := controlplane.SubmitRequest{Tasks: drafts, Edges: edges}
	if _, err := c.do(http.MethodPost, "/tasks", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListTasks returns the tasks matching f.
func (c *Client) ListTasks(f scheduler.TaskFilter) ([]*models.Task, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Type != "" {
		q.Set("type", string(f.Type))
	}
	if f.Feature != "" {
		q.Set("feature", f.Feature)
	}
	if f.AgentID != "" {
		q.Set("agent", f.AgentID)
	}
	path := "/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var tasks []*models.Task
	if _, err := c.do(http.MethodGet, path, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetTask returns one task.
func (c *Client) GetTask(id string) (*models.Task, error) {
	var t models.Task
	if _, err := c.do(http.MethodGet, "/tasks/"+url.PathEscape(id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// TaskDependencies describes a task's place in the dependency graph.
func (c *Client) TaskDependencies(id string) (*scheduler.TaskDependencies, error) {
	var d scheduler.TaskDependencies
	if _, err := c.do(http.MethodGet, "/tasks/"+url.PathEscape(id)+"/dependencies", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Comments returns the comments on a task.
func (c *Client) Comments(id string) ([]models.Comment, error) {
	var comments []models.Comment
	if _, err := c.do(http.MethodGet, "/tasks/"+url.PathEscape(id)+"/comments", nil, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// SearchComments finds comments containing query.
func (c *Client) SearchComments(query string) ([]models.Comment, error) {
	var comments []models.Comment
	path := "/comments?" + url.Values{"q": {query}}.Encode()
	if _, err := c.do(http.MethodGet, path, nil, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// AuditLog returns recent decision records, optionally for one task. A zero
// limit uses the daemon's default.
func (c *Client) AuditLog(taskID string, limit int) ([]models.PDREntry, error) {
	q := url.Values{}
	if taskID != "" {
		q.Set("task", taskID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/pdr"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var entries []models.PDREntry
	if _, err := c.do(http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// RequestNextTask asks for work. It returns nil, nil when nothing is available.
func (c *Client) RequestNextTask(agentID string) (*models.Task, error) {
	var t models.Task
	status, err := c.do(http.MethodPost, "/agents/"+url.PathEscape(agentID)+"/next", nil, &t)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	return &t, nil
}

// ReportProgress renews the lease and applies the reported status.
func (c *Client) ReportProgress(agentID, taskID string, percent float64, status models.ProgressStatus, message string) (*models.Task, error) {
	req := controlplane.ProgressRequest{AgentID: agentID, Percent: percent, Status: status, Message: message}
	return c.taskAction(taskID, "progress", req)
}

// ReportBlocker marks a task blocked.
func (c *Client) ReportBlocker(agentID, taskID, description string) (*models.Task, error) {
	return c.taskAction(taskID, "blocker", controlplane.BlockerRequest{AgentID: agentID, Description: description})
}

// UnblockTask resumes a blocked task.
func (c *Client) UnblockTask(taskID, note string) (*models.Task, error) {
	return c.taskAction(taskID, "unblock", controlplane.UnblockRequest{Note: note})
}

// ReleaseTask returns a task to the board.
func (c *Client) ReleaseTask(agentID, taskID string) (*models.Task, error) {
	return c.taskAction(taskID, "release", controlplane.ReleaseRequest{AgentID: agentID})
}

func (c *Client) taskAction(taskID, action string, req interface{}) (*models.Task, error) {
	var t models.Task
	if _, err := c.do(http.MethodPost, "/tasks/"+url.PathEscape(taskID)+"/"+action, req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// BoardHealth returns the board health report.
func (c *Client) BoardHealth() (*health.Report, error) {
	var r health.Report
	if _, err := c.do(http.MethodGet, "/health/board", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Blockers lists blocked tasks with their blocker descriptions.
func (c *Client) Blockers() ([]controlplane.Blocker, error) {
	var b []controlplane.Blocker
	if _, err := c.do(http.MethodGet, "/blockers", nil, &b); err != nil {
		return nil, err
	}
	return b, nil
}

// Stats returns scheduler statistics.
func (c *Client) Stats() (*scheduler.Stats, error) {
	var st scheduler.Stats
	if _, err := c.do(http.MethodGet, "/stats", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// do sends a request and decodes a JSON response into out. It returns the
// status code so callers can tell 204 from 200.
func (c *Client) do(method, path string, in, out interface{}) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.addr+path, body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}

	if resp.StatusCode >= 400 {
		return resp.StatusCode, apiError(resp.StatusCode, data)
	}
	if resp.StatusCode == http.StatusNoContent || out == nil || len(data) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func apiError(status int, body []byte) error {
	var er controlplane.ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Error == "" {
		return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	}
	e := &APIError{StatusCode: status, Message: er.Error}
	for _, p := range er.Problems {
		line := p.Message
		if p.SuggestedFix != "" {
			line += " (fix: " + p.SuggestedFix + ")"
		}
		e.Problems = append(e.Problems, line)
	}
	return e
}
