package phase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fentz26/taskgrid/internal/graph"
	"github.com/fentz26/taskgrid/internal/models"
)

// Rank orders the lifecycle phases. Other has rank 0 and never takes part in
// ordering checks.
func Rank(t models.TaskType) int {
	switch t {
	case models.TaskTypeDesign:
		return 1
	case models.TaskTypeInfrastructure:
		return 2
	case models.TaskTypeImplementation:
		return 3
	case models.TaskTypeTesting:
		return 4
	case models.TaskTypeDeployment:
		return 5
	case models.TaskTypeDocumentation:
		return 6
	}
	return 0
}

// FeatureOf returns the group a task belongs to: its Feature field, then a
// "feature:<name>" label, then the empty default group.
func FeatureOf(t *models.Task) string {
	if t.Feature != "" {
		return strings.ToLower(t.Feature)
	}
	for _, l := range t.Labels {
		if name, ok := strings.CutPrefix(strings.ToLower(l), "feature:"); ok && name != "" {
			return name
		}
	}
	return ""
}

// EnforcePhaseOrder computes the phase edges implied by tasks.
//
// Within each feature group implementation depends on every design task,
// testing on every implementation task, and deployment on every testing task
// (or on implementation when the group has no tests). Across the whole
// board every documentation task depends on every non-documentation task.
// Edges are only derived for Todo dependents; work already picked up is
// never given new prerequisites. Existing edges are not repeated.
func EnforcePhaseOrder(tasks []*models.Task) []models.Edge {
	groups := make(map[string]map[models.TaskType][]*models.Task)
	for _, t := range tasks {
		f := FeatureOf(t)
		if groups[f] == nil {
			groups[f] = make(map[models.TaskType][]*models.Task)
		}
		groups[f][t.Type] = append(groups[f][t.Type], t)
	}

	var edges []models.Edge
	seen := make(map[models.Edge]bool)
	link := func(dependents, prereqs []*models.Task) {
		for _, d := range dependents {
			if d.Status != models.TaskStatusTodo {
				continue
			}
			for _, p := range prereqs {
				e := models.Edge{TaskID: d.ID, DependsOn: p.ID}
				if d.ID == p.ID || seen[e] || d.HasDependency(p.ID) {
					continue
				}
				seen[e] = true
				edges = append(edges, e)
			}
		}
	}

	features := make([]string, 0, len(groups))
	for f := range groups {
		features = append(features, f)
	}
	sort.Strings(features)

	for _, f := range features {
		g := groups[f]
		link(g[models.TaskTypeImplementation], g[models.TaskTypeDesign])
		link(g[models.TaskTypeTesting], g[models.TaskTypeImplementation])
		if len(g[models.TaskTypeTesting]) > 0 {
			link(g[models.TaskTypeDeployment], g[models.TaskTypeTesting])
		} else {
			link(g[models.TaskTypeDeployment], g[models.TaskTypeImplementation])
		}
	}

	var docs, rest []*models.Task
	for _, t := range tasks {
		if t.Type == models.TaskTypeDocumentation {
			docs = append(docs, t)
		} else {
			rest = append(rest, t)
		}
	}
	link(docs, rest)

	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].TaskID != edges[j].TaskID {
			return edges[i].TaskID < edges[j].TaskID
		}
		return edges[i].DependsOn < edges[j].DependsOn
	})
	return edges
}

// Validation error codes.
const (
	CodeMissingImplementation = "missing_implementation"
	CodeCircularDependency    = "circular_dependency"
	CodePhaseOrder            = "phase_order_violation"
	CodeUnknownTask           = "unknown_task"
)

// ValidationError describes one problem found in the dependency structure.
type ValidationError struct {
	Code         string   `json:"code"`
	TaskIDs      []string `json:"task_ids"`
	Message      string   `json:"message"`
	SuggestedFix string   `json:"suggested_fix"`
}

func (e ValidationError) Error() string {
	return e.Message
}

// ValidationErrors collects every problem a validation pass found.
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	if len(es) == 1 {
		return es[0].Message
	}
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Message
	}
	return fmt.Sprintf("%d dependency problems: %s", len(es), strings.Join(msgs, "; "))
}

// ValidateDependencies checks the graph for testing tasks with no
// implementation anywhere below them, dependency cycles, and edges that run
// against phase order.
func ValidateDependencies(g *graph.Graph) ValidationErrors {
	var errs ValidationErrors
	tasks := g.Tasks()

	var impls []*models.Task
	for _, t := range tasks {
		if t.Type == models.TaskTypeImplementation {
			impls = append(impls, t)
		}
	}

	for _, t := range tasks {
		if t.Type != models.TaskTypeTesting || reachesType(g, t.ID, models.TaskTypeImplementation) {
			continue
		}
		errs = append(errs, ValidationError{
			Code:         CodeMissingImplementation,
			TaskIDs:      []string{t.ID},
			Message:      fmt.Sprintf("testing task %s has no implementation task among its dependencies", t.ID),
			SuggestedFix: suggestImplementation(t, impls),
		})
	}

	for _, cycle := range g.DetectCycles() {
		closing := cycle[len(cycle)-1]
		errs = append(errs, ValidationError{
			Code:         CodeCircularDependency,
			TaskIDs:      cycle,
			Message:      fmt.Sprintf("circular dependency: %s -> %s", strings.Join(cycle, " -> "), cycle[0]),
			SuggestedFix: fmt.Sprintf("remove the dependency %s -> %s", closing, cycle[0]),
		})
	}

	for _, t := range tasks {
		rank := Rank(t.Type)
		if rank == 0 {
			continue
		}
		for _, depID := range g.Dependencies(t.ID) {
			dep, _ := g.Task(depID)
			depRank := Rank(dep.Type)
			if depRank == 0 || depRank <= rank {
				continue
			}
			errs = append(errs, ValidationError{
				Code:    CodePhaseOrder,
				TaskIDs: []string{t.ID, dep.ID},
				Message: fmt.Sprintf("%s task %s depends on later-phase %s task %s",
					t.Type, t.ID, dep.Type, dep.ID),
				SuggestedFix: fmt.Sprintf("remove the dependency %s -> %s or reverse it", t.ID, dep.ID),
			})
		}
	}
	return errs
}

func reachesType(g *graph.Graph, from string, want models.TaskType) bool {
	seen := map[string]bool{from: true}
	queue := g.Dependencies(from)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		if t, ok := g.Task(id); ok && t.Type == want {
			return true
		}
		queue = append(queue, g.Dependencies(id)...)
	}
	return false
}

func suggestImplementation(test *models.Task, impls []*models.Task) string {
	feature := FeatureOf(test)
	for _, impl := range impls {
		if FeatureOf(impl) == feature {
			return fmt.Sprintf("add a dependency %s -> %s", test.ID, impl.ID)
		}
	}
	if len(impls) > 0 {
		return fmt.Sprintf("add a dependency %s -> %s", test.ID, impls[0].ID)
	}
	return fmt.Sprintf("create an implementation task for %s and make it depend on that task", test.ID)
}
