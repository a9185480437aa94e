package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fentz26/taskgrid/internal/graph"
	"github.com/fentz26/taskgrid/internal/models"
	"github.com/fentz26/taskgrid/internal/phase"
	"github.com/google/uuid"
)

// SubmitResult reports the ids created by a submission and any dependency
// problems that were accepted because strict phase checking is off.
type SubmitResult struct {
	TaskIDs  []string                `json:"task_ids"`
	Warnings phase.ValidationErrors `json:"warnings,omitempty"`
}

// SubmitTasks ingests drafts and explicit edges as one unit. Phase edges are
// derived across the whole board, then the result is validated. Nothing is
// committed unless every step succeeds.
func (s *Scheduler) SubmitTasks(drafts []models.TaskDraft, edges []models.Edge) (*SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.graph.Clone()
	now := s.now()

	created := make(map[string]bool, len(drafts))
	ids := make([]string, 0, len(drafts))
	explicit := append([]models.Edge(nil), edges...)

	for i, d := range drafts {
		t, err := s.taskFromDraft(d)
		if err != nil {
			return nil, fmt.Errorf("draft %d: %w", i, err)
		}
		t.CreatedAt = now
		t.UpdatedAt = now
		if err := g.AddTask(t); err != nil {
			return nil, err
		}
		created[t.ID] = true
		ids = append(ids, t.ID)
		for _, dep := range d.Dependencies {
			explicit = append(explicit, models.Edge{TaskID: t.ID, DependsOn: dep})
		}
	}

	// Problems on any task this submission touches are reported; problems
	// already on the board elsewhere are not.
	touched := make(map[string]bool, len(created)+2*len(explicit))
	for id := range created {
		touched[id] = true
	}
	changed := make(map[string]bool)
	var unknown phase.ValidationErrors
	for _, e := range explicit {
		err := g.AddDependency(e.TaskID, e.DependsOn)
		switch {
		case err == nil:
			touched[e.TaskID] = true
			touched[e.DependsOn] = true
			if !created[e.TaskID] {
				changed[e.TaskID] = true
			}
		case errors.Is(err, graph.ErrUnknownTask):
			unknown = append(unknown, unknownDependency(e, g))
		default:
			return nil, err
		}
	}
	if len(unknown) > 0 {
		return nil, unknown
	}

	var problems phase.ValidationErrors
	for _, e := range phase.EnforcePhaseOrder(g.Tasks()) {
		err := g.AddDependency(e.TaskID, e.DependsOn)
		var cycleErr *graph.CycleError
		switch {
		case err == nil:
			if !created[e.TaskID] {
				changed[e.TaskID] = true
			}
		case errors.As(err, &cycleErr):
			problems = append(problems, phase.ValidationError{
				Code:    phase.CodeCircularDependency,
				TaskIDs: []string{e.TaskID, e.DependsOn},
				Message: fmt.Sprintf("phase ordering needs %s -> %s but %s",
					e.TaskID, e.DependsOn, cycleErr.Error()),
				SuggestedFix: fmt.Sprintf("remove the dependency %s -> %s", e.DependsOn, e.TaskID),
			})
		default:
			return nil, err
		}
	}

	for _, ve := range phase.ValidateDependencies(g) {
		if touches(ve.TaskIDs, touched) {
			problems = append(problems, ve)
		}
	}

	if len(problems) > 0 && s.config.StrictPhases {
		return nil, problems
	}

	s.graph = g
	for _, id := range ids {
		t, _ := g.Task(id)
		s.emit(models.EventTaskSubmitted, t, "", "")
	}
	for _, id := range sortedSet(changed) {
		t, _ := g.Task(id)
		s.emit(models.EventTaskUpdated, t, "", "phase dependencies added")
	}
	for _, p := range problems {
		s.logger.Printf("Accepted submission with warning: %s", p.Message)
	}
	s.logger.Printf("Submitted %d task(s), %d explicit edge(s)", len(ids), len(explicit))

	return &SubmitResult{TaskIDs: ids, Warnings: problems}, nil
}

// taskFromDraft fills in id, type, skills and feature for a draft.
func (s *Scheduler) taskFromDraft(d models.TaskDraft) (*models.Task, error) {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidDraft)
	}
	if d.EstimatedHours < 0 {
		return nil, fmt.Errorf("%w: estimated hours cannot be negative", ErrInvalidDraft)
	}

	t := &models.Task{
		ID:             strings.TrimSpace(d.ID),
		Name:           name,
		Description:    d.Description,
		Status:         models.TaskStatusTodo,
		Labels:         append([]string(nil), d.Labels...),
		EstimatedHours: d.EstimatedHours,
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}

	if d.Type != "" {
		typ, ok := models.ParseTaskType(string(d.Type))
		if !ok {
			return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidDraft, d.Type)
		}
		t.Type = typ
	} else {
		t.Type, _ = s.classifier.ClassifyType(t)
	}

	skills := d.RequiredSkills
	if len(skills) == 0 {
		for _, l := range d.Labels {
			if skill, ok := strings.CutPrefix(strings.ToLower(l), "skill:"); ok {
				skills = append(skills, skill)
			}
		}
	}
	t.RequiredSkills = models.NormalizeSkills(skills)

	t.Feature = strings.TrimSpace(d.Feature)
	if t.Feature == "" {
		t.Feature = phase.FeatureOf(t)
	}
	if t.Feature == "" {
		t.Feature = s.config.DefaultFeature
	}
	return t, nil
}

// unknownDependency describes an edge that names a task the board does not
// have.
func unknownDependency(e models.Edge, g *graph.Graph) phase.ValidationError {
	missing := e.DependsOn
	if _, ok := g.Task(e.TaskID); !ok {
		missing = e.TaskID
	}
	return phase.ValidationError{
		Code:         phase.CodeUnknownTask,
		TaskIDs:      []string{e.TaskID, e.DependsOn},
		Message:      fmt.Sprintf("dependency %s -> %s names unknown task %s", e.TaskID, e.DependsOn, missing),
		SuggestedFix: fmt.Sprintf("submit task %s first or remove the dependency %s -> %s", missing, e.TaskID, e.DependsOn),
	}
}

func touches(ids []string, set map[string]bool) bool {
	for _, id := range ids {
		if set[id] {
			return true
		}
	}
	return false
}

func sortedSet(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
