package main

import (
	"github.com/fentz26/taskgrid/internal/mcpserver"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the agent task tools over MCP stdio",
	Long: `Runs a Model Context Protocol server on stdin/stdout so a coding agent can
request tasks, report progress and raise blockers as tool calls. Calls are
forwarded to the daemon at --api.`,
	RunE: runMCP,
}

var mcpAgent string

func init() {
	mcpCmd.Flags().StringVar(&mcpAgent, "agent", "", "Agent id used when a tool call names none")
}

func runMCP(cmd *cobra.Command, args []string) error {
	return mcpserver.Serve(mcpserver.NewTools(apiClient(), mcpAgent))
}
