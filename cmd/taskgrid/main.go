package main

import (
	"fmt"
	"os"

	"github.com/fentz26/taskgrid/internal/client"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "taskgrid",
	Short: "taskgrid - task assignment and lease coordination for agent fleets",
	Long: `taskgrid hands out dependency-ordered tasks to a fleet of agents, keeps
each assignment alive through adaptive leases, and recovers work when an
agent goes silent.`,
	SilenceUsage: true,
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	apiAddr    string
	configPath string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:7466", "API server address")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.taskgrid/config.yaml)")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(blockersCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(commentsCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(mcpCmd)
}

func apiClient() *client.Client {
	return client.New(apiAddr)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, Red("Error:"), err)
		os.Exit(1)
	}
}
