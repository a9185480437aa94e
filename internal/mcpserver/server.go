// Package mcpserver exposes the agent-facing task operations as MCP tools so
// coding agents can poll the board over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fentz26/taskgrid/internal/health"
	"github.com/fentz26/taskgrid/internal/models"
	"github.com/fentz26/taskgrid/internal/scheduler"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Version is reported to MCP clients.
var Version = "dev"

// Backend is the task board the tools operate on. *client.Client satisfies it.
type Backend interface {
	RegisterAgent(id, name string, skills []string) (*models.Agent, error)
	RequestNextTask(agentID string) (*models.Task, error)
	ReportProgress(agentID, taskID string, percent float64, status models.ProgressStatus, message string) (*models.Task, error)
	ReportBlocker(agentID, taskID, description string) (*models.Task, error)
	ReleaseTask(agentID, taskID string) (*models.Task, error)
	TaskDependencies(taskID string) (*scheduler.TaskDependencies, error)
	BoardHealth() (*health.Report, error)
}

// Tools holds the tool handlers.
type Tools struct {
	backend Backend
	// agentID is used when a call names no agent.
	agentID string
}

// NewTools creates the tool handlers. defaultAgent may be empty, in which case
// every call must pass agent_id.
func NewTools(b Backend, defaultAgent string) *Tools {
	return &Tools{backend: b, agentID: defaultAgent}
}

// New creates the MCP server with every tool registered.
func New(t *Tools) *server.MCPServer {
	s := server.NewMCPServer(
		"taskgrid",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions("Poll request_next_task for work, report progress to keep your lease alive, "+
			"and report blockers instead of going silent."),
	)

	s.AddTool(registerAgentTool, t.RegisterAgent)
	s.AddTool(requestNextTaskTool, t.RequestNextTask)
	s.AddTool(reportProgressTool, t.ReportProgress)
	s.AddTool(reportBlockerTool, t.ReportBlocker)
	s.AddTool(releaseTaskTool, t.ReleaseTask)
	s.AddTool(taskDependenciesTool, t.TaskDependencies)
	s.AddTool(boardHealthTool, t.BoardHealth)
	return s
}

// Serve runs the MCP server over stdin and stdout until the client goes away.
func Serve(t *Tools) error {
	return server.ServeStdio(New(t))
}

var (
	registerAgentTool = mcp.NewTool("register_agent",
		mcp.WithDescription("Register this agent and its skills with the task board."),
		mcp.WithString("agent_id", mcp.Description("Agent id; defaults to the configured agent")),
		mcp.WithString("name", mcp.Description("Display name")),
		mcp.WithArray("skills", mcp.Description("Skills this agent has, e.g. go, sql"), mcp.WithStringItems()),
	)

	requestNextTaskTool = mcp.NewTool("request_next_task",
		mcp.WithDescription("Get the next eligible task and a lease on it. Returns no task when nothing is available."),
		mcp.WithString("agent_id", mcp.Description("Agent id; defaults to the configured agent")),
	)

	reportProgressTool = mcp.NewTool("report_progress",
		mcp.WithDescription("Report progress on a leased task. This renews the lease."),
		mcp.WithString("agent_id", mcp.Description("Agent id; defaults to the configured agent")),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task being reported on")),
		mcp.WithNumber("percent", mcp.Required(), mcp.Description("Progress from 0 to 100")),
		mcp.WithString("status", mcp.Description("in_progress, completed or blocked"),
			mcp.Enum(string(models.ProgressInProgress), string(models.ProgressCompleted), string(models.ProgressBlocked))),
		mcp.WithString("message", mcp.Description("Short progress note")),
	)

	reportBlockerTool = mcp.NewTool("report_blocker",
		mcp.WithDescription("Mark a leased task as blocked. The lease is kept."),
		mcp.WithString("agent_id", mcp.Description("Agent id; defaults to the configured agent")),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Blocked task")),
		mcp.WithString("description", mcp.Required(), mcp.Description("What is blocking the task")),
	)

	releaseTaskTool = mcp.NewTool("release_task",
		mcp.WithDescription("Give a leased task back to the board."),
		mcp.WithString("agent_id", mcp.Description("Agent id; defaults to the configured agent")),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task to release")),
	)

	taskDependenciesTool = mcp.NewTool("task_dependencies",
		mcp.WithDescription("Show what a task depends on and what depends on it."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task to inspect")),
	)

	boardHealthTool = mcp.NewTool("board_health",
		mcp.WithDescription("Analyse the board for bottlenecks, cycles, stale work and skill gaps."),
	)
)

// RegisterAgent handles register_agent.
func (t *Tools) RegisterAgent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID, err := t.agent(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	a, err := t.backend.RegisterAgent(agentID, req.GetString("name", agentID), req.GetStringSlice("skills", nil))
	return result(a, err)
}

// RequestNextTask handles request_next_task.
func (t *Tools) RequestNextTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID, err := t.agent(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	task, err := t.backend.RequestNextTask(agentID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if task == nil {
		return mcp.NewToolResultText("No task available right now. Try again later."), nil
	}
	return result(task, nil)
}

// ReportProgress handles report_progress.
func (t *Tools) ReportProgress(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID, err := t.agent(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	taskID, err := req.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	percent, err := req.RequireFloat("percent")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	status := models.ProgressStatus(req.GetString("status", string(models.ProgressInProgress)))

	task, err := t.backend.ReportProgress(agentID, taskID, percent, status, req.GetString("message", ""))
	return result(task, err)
}

// ReportBlocker handles report_blocker.
func (t *Tools) ReportBlocker(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID, err := t.agent(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	taskID, err := req.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	description, err := req.RequireString("description")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	task, err := t.backend.ReportBlocker(agentID, taskID, description)
	return result(task, err)
}

// ReleaseTask handles release_task.
func (t *Tools) ReleaseTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID, err := t.agent(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	taskID, err := req.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	task, err := t.backend.ReleaseTask(agentID, taskID)
	return result(task, err)
}

// TaskDependencies handles task_dependencies.
func (t *Tools) TaskDependencies(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := req.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	deps, err := t.backend.TaskDependencies(taskID)
	return result(deps, err)
}

// BoardHealth handles board_health.
func (t *Tools) BoardHealth(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := t.backend.BoardHealth()
	return result(report, err)
}

func (t *Tools) agent(req mcp.CallToolRequest) (string, error) {
	id := req.GetString("agent_id", t.agentID)
	if id == "" {
		return "", fmt.Errorf("agent_id is required")
	}
	return id, nil
}

// result renders v as indented JSON, or err as a tool error the agent can read.
func result(v interface{}, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
