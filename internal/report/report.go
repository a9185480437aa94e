// Package report renders board state for the terminal.
package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/taskgrid/internal/health"
	"github.com/fentz26/taskgrid/internal/models"
	"github.com/fentz26/taskgrid/internal/scheduler"
)

var (
	// Colors
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	cyanColor    = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("240"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Width(14)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginTop(1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	mutedStyle = lipgloss.NewStyle().Foreground(mutedColor)

	statusTodo       = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // Yellow
	statusInProgress = lipgloss.NewStyle().Foreground(lipgloss.Color("6")) // Cyan
	statusDone       = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // Green
	statusBlocked    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // Red
)

// FormatStatus renders a task status with its colour.
func FormatStatus(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusTodo:
		return statusTodo.Render("● todo")
	case models.TaskStatusInProgress:
		return statusInProgress.Render("● in_progress")
	case models.TaskStatusDone:
		return statusDone.Render("● done")
	case models.TaskStatusBlocked:
		return statusBlocked.Render("● blocked")
	default:
		return string(status)
	}
}

func severityStyle(s health.Severity) lipgloss.Style {
	switch s {
	case health.SeverityCritical, health.SeverityHigh:
		return lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	case health.SeverityMedium:
		return lipgloss.NewStyle().Foreground(warningColor)
	case health.SeverityLow:
		return lipgloss.NewStyle().Foreground(cyanColor)
	default:
		return mutedStyle
	}
}

func scoreStyle(status health.Status) lipgloss.Style {
	switch status {
	case health.StatusExcellent, health.StatusGood:
		return lipgloss.NewStyle().Foreground(successColor).Bold(true)
	case health.StatusFair:
		return lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	}
}

// Health renders a board health report.
func Health(r *health.Report) string {
	var b strings.Builder

	score := scoreStyle(r.Status).Render(fmt.Sprintf("%d/100 (%s)", r.Score, r.Status))
	b.WriteString(titleStyle.Render("Board health") + "  " + score + "\n")

	st := r.Stats
	stats := fmt.Sprintf("%d tasks: %d todo, %d in progress, %d blocked, %d done\n%.0f%% complete, %d agent(s)",
		st.TotalTasks, st.Todo, st.InProgress, st.Blocked, st.Done, st.CompletionRate*100, st.Agents)
	b.WriteString(panelStyle.Render(stats) + "\n")

	if len(r.Issues) == 0 {
		b.WriteString(mutedStyle.Render("No issues found.") + "\n")
		return b.String()
	}

	b.WriteString(sectionStyle.Render(fmt.Sprintf("Issues (%d)", len(r.Issues))) + "\n")
	for _, is := range r.Issues {
		sev := severityStyle(is.Severity).Render(fmt.Sprintf("%-8s", strings.ToUpper(string(is.Severity))))
		b.WriteString(fmt.Sprintf("%s %s  %s\n", sev, mutedStyle.Render(string(is.Type)), is.Description))
		if len(is.AffectedTaskIDs) > 0 {
			b.WriteString("         tasks: " + strings.Join(is.AffectedTaskIDs, ", ") + "\n")
		}
		for _, rec := range is.Recommendations {
			b.WriteString("         → " + rec + "\n")
		}
	}
	return b.String()
}

// Tasks renders a task table.
func Tasks(tasks []*models.Task) string {
	if len(tasks) == 0 {
		return mutedStyle.Render("No tasks.") + "\n"
	}

	idWidth := len("ID")
	for _, t := range tasks {
		if len(t.ID) > idWidth {
			idWidth = len(t.ID)
		}
	}
	idCol := lipgloss.NewStyle().Width(idWidth + 2)
	typeCol := lipgloss.NewStyle().Width(16)
	statusCol := lipgloss.NewStyle().Width(15)

	var b strings.Builder
	b.WriteString(headerStyle.Render(idCol.Render("ID")+typeCol.Render("TYPE")+statusCol.Render("STATUS")+"NAME") + "\n")
	for _, t := range tasks {
		line := idCol.Render(t.ID) + typeCol.Render(string(t.Type)) + statusCol.Render(FormatStatus(t.Status)) + t.Name
		if t.AssignedAgent != "" {
			line += mutedStyle.Render(" @" + t.AssignedAgent)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

// Task renders one task with its comments.
func Task(t *models.Task, comments []models.Comment) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(t.Name) + "\n")

	row := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(labelStyle.Render(label) + value + "\n")
	}
	row("ID", t.ID)
	row("Status", FormatStatus(t.Status))
	row("Type", string(t.Type))
	row("Feature", t.Feature)
	row("Agent", t.AssignedAgent)
	row("Skills", strings.Join(t.RequiredSkills, ", "))
	row("Depends on", strings.Join(t.Dependencies, ", "))
	if t.EstimatedHours > 0 {
		row("Estimate", fmt.Sprintf("%.1fh", t.EstimatedHours))
	}
	if t.Lease != nil {
		row("Lease", fmt.Sprintf("until %s (%d renewals, %.0f%%)",
			t.Lease.ExpiresAt.Format("2006-01-02 15:04"), t.Lease.RenewalCount, t.Lease.LastProgressPercent))
	}
	if t.Description != "" {
		b.WriteString(sectionStyle.Render("Description") + "\n" + t.Description + "\n")
	}
	if len(comments) > 0 {
		b.WriteString(sectionStyle.Render("Comments") + "\n")
		for _, c := range comments {
			who := c.Author
			if who == "" {
				who = "board"
			}
			b.WriteString(fmt.Sprintf("%s %s [%s] %s\n",
				mutedStyle.Render(c.CreatedAt.Format("01-02 15:04")), who, c.Kind, c.Content))
		}
	}
	return b.String()
}

// Dependencies renders a task's position in the dependency graph.
func Dependencies(d *scheduler.TaskDependencies) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Dependencies of "+d.TaskID) + "\n")

	list := func(ids []string) string {
		if len(ids) == 0 {
			return mutedStyle.Render("none")
		}
		return strings.Join(ids, ", ")
	}
	b.WriteString(labelStyle.Render("Depends on") + list(d.DependsOn) + "\n")
	b.WriteString(labelStyle.Render("Depended by") + list(d.DependedBy) + "\n")
	b.WriteString(labelStyle.Render("Depth") + fmt.Sprintf("%d", d.DependencyDepth) + "\n")

	var flags []string
	if d.IsBlocked {
		flags = append(flags, statusBlocked.Render("blocked"))
	}
	if d.IsBottleneck {
		flags = append(flags, lipgloss.NewStyle().Foreground(warningColor).Render("bottleneck"))
	}
	if d.HasCircularDependency {
		flags = append(flags, lipgloss.NewStyle().Foreground(errorColor).Bold(true).Render("circular"))
	}
	if len(flags) > 0 {
		b.WriteString(labelStyle.Render("Flags") + strings.Join(flags, " ") + "\n")
	}
	return b.String()
}
