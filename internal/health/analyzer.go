package health

import (
	"fmt"
	"strings"

	"github.com/fentz26/taskgrid/internal/graph"
	"github.com/fentz26/taskgrid/internal/models"
)

// Analyzer runs the board checks. It keeps no state between calls.
type Analyzer struct {
	cfg Config
}

// NewAnalyzer creates an analyzer with the given thresholds.
func NewAnalyzer(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze inspects the snapshot and returns a scored report.
func (a *Analyzer) Analyze(s Snapshot) *Report {
	g := s.Graph
	if g == nil {
		g = graph.New()
	}
	tasks := g.Tasks()

	var issues []Issue
	issues = append(issues, a.skillMismatches(tasks, s.Agents)...)
	issues = append(issues, a.cycles(g)...)
	issues = append(issues, a.bottlenecks(g, tasks)...)
	issues = append(issues, a.chainBlocks(g, tasks)...)
	issues = append(issues, a.staleTasks(s, tasks)...)
	issues = append(issues, a.workload(g, tasks, s.Agents)...)
	SortIssues(issues)

	stats := ComputeStats(tasks, len(s.Agents))
	score := Score(issues, stats)
	if issues == nil {
		issues = []Issue{}
	}
	return &Report{
		Score:       score,
		Status:      StatusFor(score),
		Issues:      issues,
		Stats:       stats,
		GeneratedAt: s.Now,
	}
}

func (a *Analyzer) skillMismatches(tasks []*models.Task, agents []*models.Agent) []Issue {
	var pool []string
	for _, ag := range agents {
		pool = append(pool, ag.Skills...)
	}

	var issues []Issue
	for _, t := range tasks {
		if t.Status != models.TaskStatusTodo || len(t.RequiredSkills) == 0 {
			continue
		}
		matched := false
		for _, ag := range agents {
			if graph.HasSkills(t.RequiredSkills, ag.Skills) {
				matched = true
				break
			}
		}
		if matched {
			continue
		}

		missing := graph.MissingSkills(t.RequiredSkills, pool)
		desc := fmt.Sprintf("No registered agent has all skills required by %q (%s)",
			t.Name, strings.Join(t.RequiredSkills, ", "))
		rec := "Register an agent that covers the full skill set or split the task"
		if len(missing) > 0 {
			desc = fmt.Sprintf("No registered agent has skills %s required by %q",
				strings.Join(missing, ", "), t.Name)
			rec = fmt.Sprintf("Register an agent with %s", strings.Join(missing, ", "))
		}
		issues = append(issues, Issue{
			Type:            IssueSkillMismatch,
			Severity:        SeverityHigh,
			Description:     desc,
			AffectedTaskIDs: []string{t.ID},
			Recommendations: []string{rec, "Relax the task's required skills if they are over-specified"},
		})
	}
	return issues
}

func (a *Analyzer) cycles(g *graph.Graph) []Issue {
	var issues []Issue
	for _, cycle := range g.DetectCycles() {
		issues = append(issues, Issue{
			Type:            IssueCircularDependency,
			Severity:        SeverityCritical,
			Description:     fmt.Sprintf("Circular dependency: %s -> %s", strings.Join(cycle, " -> "), cycle[0]),
			AffectedTaskIDs: cycle,
			Recommendations: []string{
				fmt.Sprintf("Remove the dependency %s -> %s", cycle[len(cycle)-1], cycle[0]),
				"None of these tasks can start until the cycle is broken",
			},
		})
	}
	return issues
}

func (a *Analyzer) bottlenecks(g *graph.Graph, tasks []*models.Task) []Issue {
	var issues []Issue
	for _, t := range tasks {
		dependents := g.Dependents(t.ID)
		if !a.cfg.IsBottleneck(t, len(dependents)) {
			continue
		}
		sev := SeverityMedium
		if len(dependents) >= a.cfg.BottleneckHighDependents {
			sev = SeverityHigh
		}
		issues = append(issues, Issue{
			Type:            IssueBottleneck,
			Severity:        sev,
			Description:     fmt.Sprintf("%q blocks %d other tasks", t.Name, len(dependents)),
			AffectedTaskIDs: append([]string{t.ID}, dependents...),
			Recommendations: []string{
				fmt.Sprintf("Prioritise %s", t.ID),
				"Split the task so dependents can start on the finished parts",
			},
		})
	}
	return issues
}

func (a *Analyzer) chainBlocks(g *graph.Graph, tasks []*models.Task) []Issue {
	notDone := func(t *models.Task) bool { return t.Status != models.TaskStatusDone }

	var issues []Issue
	for _, t := range tasks {
		if !notDone(t) {
			continue
		}
		// Only the end of a chain is reported; anything that depends on it
		// carries the same chain and more.
		end := true
		for _, id := range g.Dependents(t.ID) {
			if dep, ok := g.Task(id); ok && notDone(dep) {
				end = false
				break
			}
		}
		if !end {
			continue
		}
		chain := g.LongestChain(t.ID, notDone)
		if len(chain)-1 < a.cfg.ChainDepth {
			continue
		}
		issues = append(issues, Issue{
			Type:            IssueChainBlock,
			Severity:        SeverityMedium,
			Description:     fmt.Sprintf("Dependency chain of depth %d ends at %q", len(chain)-1, t.Name),
			AffectedTaskIDs: chain,
			Recommendations: []string{
				"Parallelise independent steps in the chain",
				"Restructure the chain so later tasks depend on fewer predecessors",
			},
		})
	}
	return issues
}

func (a *Analyzer) staleTasks(s Snapshot, tasks []*models.Task) []Issue {
	var issues []Issue
	for _, t := range tasks {
		if t.Status != models.TaskStatusInProgress {
			continue
		}
		age := s.Now.Sub(t.UpdatedAt)
		if age < a.cfg.StaleAfter {
			continue
		}
		issues = append(issues, Issue{
			Type:            IssueStaleTask,
			Severity:        SeverityMedium,
			Description:     fmt.Sprintf("%q has not been updated for %d days", t.Name, int(age.Hours()/24)),
			AffectedTaskIDs: []string{t.ID},
			AgentID:         t.AssignedAgent,
			Recommendations: []string{"Check in with the assigned agent or reassign the task"},
		})
	}
	return issues
}

func (a *Analyzer) workload(g *graph.Graph, tasks []*models.Task, agents []*models.Agent) []Issue {
	owned := make(map[string][]string)
	for _, t := range tasks {
		if t.AssignedAgent == "" {
			continue
		}
		if t.Status == models.TaskStatusInProgress || t.Status == models.TaskStatusBlocked {
			owned[t.AssignedAgent] = append(owned[t.AssignedAgent], t.ID)
		}
	}

	var issues []Issue
	for _, ag := range agents {
		ids := owned[ag.ID]
		switch {
		case len(ids) > a.cfg.OverloadedAbove:
			sev := SeverityLow
			if len(ids) > a.cfg.HeavilyOverloadedAbove {
				sev = SeverityMedium
			}
			issues = append(issues, Issue{
				Type:            IssueAgentOverloaded,
				Severity:        sev,
				Description:     fmt.Sprintf("Agent %s holds %d tasks at once", ag.ID, len(ids)),
				AffectedTaskIDs: ids,
				AgentID:         ag.ID,
				Recommendations: []string{"Release some of the agent's tasks so others can pick them up"},
			})
		case len(ids) == 0:
			matching := 0
			for _, t := range g.EligibleTasks(ag.Skills) {
				if graph.HasSkills(t.RequiredSkills, ag.Skills) {
					matching++
				}
			}
			if matching == 0 {
				continue
			}
			issues = append(issues, Issue{
				Type:            IssueAgentIdle,
				Severity:        SeverityInfo,
				Description:     fmt.Sprintf("Agent %s is idle while %d matching tasks are eligible", ag.ID, matching),
				AgentID:         ag.ID,
				Recommendations: []string{"Have the agent request its next task"},
			})
		}
	}
	return issues
}
