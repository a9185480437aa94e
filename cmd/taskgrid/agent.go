package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fentz26/taskgrid/internal/models"
	"github.com/spf13/cobra"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Register agents and drive their task lifecycle",
}

var agentRegisterCmd = &cobra.Command{
	Use:   "register [agent-id]",
	Short: "Register or update an agent",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentRegister,
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agents",
	RunE:  runAgentList,
}

var agentNextCmd = &cobra.Command{
	Use:   "next [agent-id]",
	Short: "Request the next task for an agent",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentNext,
}

var agentProgressCmd = &cobra.Command{
	Use:   "progress [agent-id] [task-id] [percent]",
	Short: "Report progress on a leased task",
	Args:  cobra.ExactArgs(3),
	RunE:  runAgentProgress,
}

var agentBlockCmd = &cobra.Command{
	Use:   "block [agent-id] [task-id] [description]",
	Short: "Report a blocker on a leased task",
	Args:  cobra.ExactArgs(3),
	RunE:  runAgentBlock,
}

var agentReleaseCmd = &cobra.Command{
	Use:   "release [agent-id] [task-id]",
	Short: "Give a task back to the board",
	Args:  cobra.ExactArgs(2),
	RunE:  runAgentRelease,
}

var (
	agentName     string
	agentSkills   string
	progressState string
	progressMsg   string
)

func init() {
	agentCmd.AddCommand(agentRegisterCmd, agentListCmd, agentNextCmd, agentProgressCmd, agentBlockCmd, agentReleaseCmd)

	agentRegisterCmd.Flags().StringVar(&agentName, "name", "", "Display name")
	agentRegisterCmd.Flags().StringVar(&agentSkills, "skills", "", "Comma-separated skills (e.g. go,sql)")

	agentProgressCmd.Flags().StringVar(&progressState, "status", string(models.ProgressInProgress),
		"Progress status (in_progress, completed, blocked)")
	agentProgressCmd.Flags().StringVarP(&progressMsg, "message", "m", "", "Progress note")
}

func runAgentRegister(cmd *cobra.Command, args []string) error {
	agent, err := apiClient().RegisterAgent(args[0], agentName, splitList(agentSkills))
	if err != nil {
		return err
	}
	fmt.Printf("%s Registered agent %s", Green("✓"), Bold(agent.ID))
	if len(agent.Skills) > 0 {
		fmt.Printf(" (%s)", strings.Join(agent.Skills, ", "))
	}
	fmt.Println()
	return nil
}

func runAgentList(cmd *cobra.Command, args []string) error {
	agents, err := apiClient().ListAgents()
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		fmt.Println("No agents registered")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tTASK\tSKILLS\tREGISTERED")
	for _, a := range agents {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.Status, a.CurrentTaskID,
			strings.Join(a.Skills, ","), a.RegisteredAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runAgentNext(cmd *cobra.Command, args []string) error {
	task, err := apiClient().RequestNextTask(args[0])
	if err != nil {
		return err
	}
	if task == nil {
		fmt.Println(Dim("No task available"))
		return nil
	}
	fmt.Printf("%s Assigned %s to %s\n", Green("✓"), Bold(task.ID), args[0])
	fmt.Printf("  %s\n", task.Name)
	if task.Lease != nil {
		fmt.Printf("  Lease expires %s\n", Cyan(task.Lease.ExpiresAt.Format("2006-01-02 15:04:05")))
	}
	return nil
}

func runAgentProgress(cmd *cobra.Command, args []string) error {
	var percent float64
	if _, err := fmt.Sscanf(args[2], "%g", &percent); err != nil {
		return fmt.Errorf("invalid percent %q", args[2])
	}

	task, err := apiClient().ReportProgress(args[0], args[1], percent, models.ProgressStatus(progressState), progressMsg)
	if err != nil {
		return err
	}

	switch task.Status {
	case models.TaskStatusDone:
		fmt.Printf("%s Task %s completed\n", BoldGreen("✓"), task.ID)
	case models.TaskStatusBlocked:
		fmt.Printf("%s Task %s blocked\n", Red("■"), task.ID)
	default:
		fmt.Printf("%s Task %s at %.0f%%", Green("✓"), task.ID, percent)
		if task.Lease != nil {
			fmt.Printf(", lease until %s", task.Lease.ExpiresAt.Format("15:04:05"))
		}
		fmt.Println()
	}
	return nil
}

func runAgentBlock(cmd *cobra.Command, args []string) error {
	task, err := apiClient().ReportBlocker(args[0], args[1], args[2])
	if err != nil {
		return err
	}
	fmt.Printf("%s Task %s blocked: %s\n", Red("■"), task.ID, args[2])
	return nil
}

func runAgentRelease(cmd *cobra.Command, args []string) error {
	task, err := apiClient().ReleaseTask(args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Printf("Released task %s (now %s)\n", task.ID, task.Status)
	return nil
}

// splitList splits a comma-separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
