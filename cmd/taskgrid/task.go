package main

import (
	"fmt"

	"github.com/fentz26/taskgrid/internal/models"
	"github.com/fentz26/taskgrid/internal/report"
	"github.com/fentz26/taskgrid/internal/scheduler"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskSubmitCmd = &cobra.Command{
	Use:   "submit [plan-file]",
	Short: "Submit a YAML or JSON task plan",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskSubmit,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show [task-id]",
	Short: "Show task details and comments",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskDepsCmd = &cobra.Command{
	Use:   "deps [task-id]",
	Short: "Show where a task sits in the dependency graph",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskDeps,
}

var taskUnblockCmd = &cobra.Command{
	Use:   "unblock [task-id]",
	Short: "Clear a blocker and return the task to the board",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskUnblock,
}

var (
	filterStatus  string
	filterType    string
	filterFeature string
	filterAgent   string
	unblockNote   string
)

func init() {
	taskCmd.AddCommand(taskSubmitCmd, taskListCmd, taskShowCmd, taskDepsCmd, taskUnblockCmd)

	taskListCmd.Flags().StringVar(&filterStatus, "status", "", "Filter by status (todo, in_progress, blocked, done)")
	taskListCmd.Flags().StringVar(&filterType, "type", "", "Filter by task type")
	taskListCmd.Flags().StringVar(&filterFeature, "feature", "", "Filter by feature")
	taskListCmd.Flags().StringVar(&filterAgent, "agent", "", "Filter by assigned agent")

	taskUnblockCmd.Flags().StringVar(&unblockNote, "note", "", "Resolution note")
}

func runTaskSubmit(cmd *cobra.Command, args []string) error {
	plan, err := loadPlan(args[0])
	if err != nil {
		return err
	}
	return submitPlan(plan)
}

func submitPlan(plan *Plan) error {
	res, err := apiClient().SubmitTasks(plan.Tasks, plan.Edges)
	if err != nil {
		return err
	}
	fmt.Printf("%s Submitted %d task(s)\n", Green("✓"), len(res.TaskIDs))
	for _, id := range res.TaskIDs {
		fmt.Printf("  %s\n", id)
	}
	for _, w := range res.Warnings {
		fmt.Printf("%s %s\n", Yellow("warning:"), w.Error())
	}
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	tasks, err := apiClient().ListTasks(scheduler.TaskFilter{
		Status:  models.TaskStatus(filterStatus),
		Type:    models.TaskType(filterType),
		Feature: filterFeature,
		AgentID: filterAgent,
	})
	if err != nil {
		return err
	}
	fmt.Print(report.Tasks(tasks))
	return nil
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	c := apiClient()
	task, err := c.GetTask(args[0])
	if err != nil {
		return err
	}
	comments, err := c.Comments(args[0])
	if err != nil {
		return err
	}
	fmt.Print(report.Task(task, comments))
	return nil
}

func runTaskDeps(cmd *cobra.Command, args []string) error {
	deps, err := apiClient().TaskDependencies(args[0])
	if err != nil {
		return err
	}
	fmt.Print(report.Dependencies(deps))
	return nil
}

func runTaskUnblock(cmd *cobra.Command, args []string) error {
	task, err := apiClient().UnblockTask(args[0], unblockNote)
	if err != nil {
		return err
	}
	fmt.Printf("%s Task %s unblocked (now %s)\n", Green("✓"), task.ID, task.Status)
	return nil
}
