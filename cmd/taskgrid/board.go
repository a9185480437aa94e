package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/fentz26/taskgrid/internal/models"
	"github.com/fentz26/taskgrid/internal/report"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Analyse board health",
	RunE:  runHealth,
}

var blockersCmd = &cobra.Command{
	Use:   "blockers",
	Short: "List blocked tasks and why",
	RunE:  runBlockers,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show scheduler statistics",
	RunE:  runStats,
}

var healthJSON bool

func init() {
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "Print the raw report as JSON")
}

func runHealth(cmd *cobra.Command, args []string) error {
	r, err := apiClient().BoardHealth()
	if err != nil {
		return err
	}
	if healthJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	fmt.Print(report.Health(r))
	return nil
}

func runBlockers(cmd *cobra.Command, args []string) error {
	blockers, err := apiClient().Blockers()
	if err != nil {
		return err
	}
	if len(blockers) == 0 {
		fmt.Println(Green("✓"), "Nothing is blocked")
		return nil
	}

	for _, b := range blockers {
		fmt.Printf("%s %s %s\n", Red("■"), Bold(b.Task.ID), b.Task.Name)
		if b.Task.AssignedAgent != "" {
			fmt.Printf("  held by %s\n", b.Task.AssignedAgent)
		}
		for _, c := range b.Comments {
			fmt.Printf("  %s %s\n", Dim(c.CreatedAt.Format("01-02 15:04")), c.Content)
		}
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	st, err := apiClient().Stats()
	if err != nil {
		return err
	}

	fmt.Println(Bold("Tasks"), st.TotalTasks)
	for _, s := range []models.TaskStatus{
		models.TaskStatusTodo, models.TaskStatusInProgress, models.TaskStatusBlocked, models.TaskStatusDone,
	} {
		fmt.Printf("  %-12s %d\n", s, st.Tasks[s])
	}

	fmt.Println(Bold("Agents"), st.TotalAgents)
	statuses := make([]string, 0, len(st.Agents))
	for s := range st.Agents {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Printf("  %-12s %d\n", s, st.Agents[models.AgentStatus(s)])
	}

	fmt.Println(Bold("Active leases"), st.ActiveLeases)
	return nil
}
