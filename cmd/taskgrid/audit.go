package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent scheduling decisions",
	RunE:  runAudit,
}

var commentsCmd = &cobra.Command{
	Use:   "comments [query]",
	Short: "Search task comments",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runComments,
}

var (
	auditTask  string
	auditLimit int
)

func init() {
	auditCmd.Flags().StringVar(&auditTask, "task", "", "Only show records for this task")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 20, "Maximum records to show")
}

func runAudit(cmd *cobra.Command, args []string) error {
	entries, err := apiClient().AuditLog(auditTask, auditLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No audit records")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tOUTCOME\tTASK\tDETAILS")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Timestamp.Format("2006-01-02 15:04:05"),
			e.Action, e.Outcome, e.TaskID, e.Details)
	}
	return w.Flush()
}

func runComments(cmd *cobra.Command, args []string) error {
	comments, err := apiClient().SearchComments(strings.Join(args, " "))
	if err != nil {
		return err
	}
	if len(comments) == 0 {
		fmt.Println(Dim("No matching comments"))
		return nil
	}

	for _, c := range comments {
		fmt.Printf("%s %s %s\n", Dim(c.CreatedAt.Format("01-02 15:04")), Bold(c.TaskID), Dim("["+c.Kind+"]"))
		fmt.Printf("  %s\n", c.Content)
	}
	return nil
}
