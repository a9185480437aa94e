// Package graph maintains the task dependency DAG: edge bookkeeping, cycle
// detection and eligibility queries.
//
// A Graph is not safe for concurrent use. The scheduler owns the only
// instance and serialises access to it.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fentz26/taskgrid/internal/models"
)

var (
	// ErrDuplicateTask is returned when a task id is already present.
	ErrDuplicateTask = errors.New("duplicate task id")
	// ErrUnknownTask is returned when an operation names a task that does not exist.
	ErrUnknownTask = errors.New("unknown task id")
	// ErrInvalidTask is returned for tasks without an id.
	ErrInvalidTask = errors.New("invalid task")
)

// CycleError rejects a dependency that would close a cycle. Path lists the
// existing chain from DependsOn back to TaskID.
type CycleError struct {
	TaskID    string
	DependsOn string
	Path      []string
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("dependency %s -> %s would create a cycle", e.TaskID, e.DependsOn)
	}
	return fmt.Sprintf("dependency %s -> %s would create a cycle: %s -> %s",
		e.TaskID, e.DependsOn, e.TaskID, strings.Join(e.Path, " -> "))
}

// Graph is an in-memory DAG of tasks keyed by id. Edges point from a task to
// the tasks it depends on.
type Graph struct {
	tasks map[string]*models.Task
	deps  map[string]map[string]bool // task -> tasks it depends on
	rdeps map[string]map[string]bool // task -> tasks that depend on it
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		tasks: make(map[string]*models.Task),
		deps:  make(map[string]map[string]bool),
		rdeps: make(map[string]map[string]bool),
	}
}

// Load builds a graph from previously persisted tasks, trusting their
// dependency lists. Dependencies on unknown ids are dropped. Unlike
// AddDependency, Load performs no cycle check: an imported board may already
// contain a cycle, which DetectCycles will report.
func Load(tasks []*models.Task) (*Graph, error) {
	g := New()
	for _, t := range tasks {
		if t == nil || t.ID == "" {
			return nil, ErrInvalidTask
		}
		if _, ok := g.tasks[t.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
		}
		g.insert(t)
	}
	for _, t := range tasks {
		declared := t.Dependencies
		g.tasks[t.ID].Dependencies = nil
		for _, dep := range declared {
			if _, ok := g.tasks[dep]; !ok || dep == t.ID {
				continue
			}
			g.link(t.ID, dep)
		}
	}
	return g, nil
}

func (g *Graph) insert(t *models.Task) {
	g.tasks[t.ID] = t
	g.deps[t.ID] = make(map[string]bool)
	g.rdeps[t.ID] = make(map[string]bool)
}

func (g *Graph) link(taskID, dependsOn string) {
	g.deps[taskID][dependsOn] = true
	g.rdeps[dependsOn][taskID] = true
	g.tasks[taskID].Dependencies = sortedKeys(g.deps[taskID])
}

// AddTask inserts a task. Any dependencies listed on the task are ignored;
// edges are added with AddDependency so every one of them is cycle-checked.
func (g *Graph) AddTask(t *models.Task) error {
	if t == nil || t.ID == "" {
		return ErrInvalidTask
	}
	if _, ok := g.tasks[t.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
	}
	t.Dependencies = nil
	g.insert(t)
	return nil
}

// AddDependency records that taskID depends on dependsOn. It fails with a
// *CycleError if dependsOn already depends, directly or transitively, on
// taskID. Adding an existing edge is a no-op.
func (g *Graph) AddDependency(taskID, dependsOn string) error {
	if _, ok := g.tasks[taskID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	if _, ok := g.tasks[dependsOn]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, dependsOn)
	}
	if taskID == dependsOn {
		return &CycleError{TaskID: taskID, DependsOn: dependsOn}
	}
	if g.deps[taskID][dependsOn] {
		return nil
	}
	if path := g.path(dependsOn, taskID); path != nil {
		return &CycleError{TaskID: taskID, DependsOn: dependsOn, Path: path}
	}
	g.link(taskID, dependsOn)
	return nil
}

// path returns the dependency chain from -> ... -> to, or nil if to is not
// reachable from from.
func (g *Graph) path(from, to string) []string {
	parent := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			var out []string
			for n := to; n != ""; n = parent[n] {
				out = append(out, n)
			}
			for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
				out[i], out[j] = out[j], out[i]
			}
			return out
		}
		for _, next := range sortedKeys(g.deps[cur]) {
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = cur
			queue = append(queue, next)
		}
	}
	return nil
}

// Task returns the graph's own task record. The caller must hold whatever
// lock guards the graph while reading or mutating it.
func (g *Graph) Task(id string) (*models.Task, bool) {
	t, ok := g.tasks[id]
	return t, ok
}

// Tasks returns every task sorted by id.
func (g *Graph) Tasks() []*models.Task {
	out := make([]*models.Task, 0, len(g.tasks))
	for _, id := range g.ids() {
		out = append(out, g.tasks[id])
	}
	return out
}

// Len returns the number of tasks.
func (g *Graph) Len() int {
	return len(g.tasks)
}

func (g *Graph) ids() []string {
	ids := make([]string, 0, len(g.tasks))
	for id := range g.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dependencies returns the ids taskID depends on directly.
func (g *Graph) Dependencies(taskID string) []string {
	return sortedKeys(g.deps[taskID])
}

// Dependents returns the ids that depend directly on taskID.
func (g *Graph) Dependents(taskID string) []string {
	return sortedKeys(g.rdeps[taskID])
}

// CompletedSet returns the ids of every Done task.
func (g *Graph) CompletedSet() map[string]bool {
	done := make(map[string]bool)
	for id, t := range g.tasks {
		if t.Status == models.TaskStatusDone {
			done[id] = true
		}
	}
	return done
}

// IsEligible reports whether the task is Todo, unassigned, and every one of
// its dependencies is in completed.
func (g *Graph) IsEligible(taskID string, completed map[string]bool) bool {
	t, ok := g.tasks[taskID]
	if !ok {
		return false
	}
	if t.Status != models.TaskStatusTodo || t.AssignedAgent != "" {
		return false
	}
	for dep := range g.deps[taskID] {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// EligibleTasks returns every eligible task ranked for an agent with the
// given skills: higher skill overlap first, then lower estimate, then id.
func (g *Graph) EligibleTasks(agentSkills []string) []*models.Task {
	completed := g.CompletedSet()
	have := skillSet(agentSkills)

	var out []*models.Task
	for _, id := range g.ids() {
		if g.IsEligible(id, completed) {
			out = append(out, g.tasks[id])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		oi, oj := overlap(out[i].RequiredSkills, have), overlap(out[j].RequiredSkills, have)
		if oi != oj {
			return oi > oj
		}
		if out[i].EstimatedHours != out[j].EstimatedHours {
			return out[i].EstimatedHours < out[j].EstimatedHours
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// HasSkills reports whether every required skill is present in have.
// An empty requirement is satisfied by anyone.
func HasSkills(required, have []string) bool {
	set := skillSet(have)
	for _, s := range required {
		if !set[strings.ToLower(strings.TrimSpace(s))] {
			return false
		}
	}
	return true
}

// MissingSkills returns the required skills absent from have.
func MissingSkills(required, have []string) []string {
	set := skillSet(have)
	var missing []string
	for _, s := range models.NormalizeSkills(required) {
		if !set[s] {
			missing = append(missing, s)
		}
	}
	return missing
}

func skillSet(skills []string) map[string]bool {
	set := make(map[string]bool, len(skills))
	for _, s := range skills {
		set[strings.ToLower(strings.TrimSpace(s))] = true
	}
	return set
}

func overlap(required []string, have map[string]bool) int {
	n := 0
	for _, s := range required {
		if have[strings.ToLower(strings.TrimSpace(s))] {
			n++
		}
	}
	return n
}

// DetectCycles returns every distinct cycle reachable by a DFS with a
// recursion stack. Each cycle is listed in dependency order starting from its
// smallest id. AddDependency keeps this empty; it exists for boards imported
// with Load.
func (g *Graph) DetectCycles() [][]string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.tasks))
	var stack []string
	seen := make(map[string]bool)
	var cycles [][]string

	var dfs func(id string)
	dfs = func(id string) {
		color[id] = gray
		stack = append(stack, id)
		for _, next := range sortedKeys(g.deps[id]) {
			switch color[next] {
			case gray:
				start := 0
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == next {
						start = i
						break
					}
				}
				cycle := canonical(stack[start:])
				key := strings.Join(cycle, "\x00")
				if !seen[key] {
					seen[key] = true
					cycles = append(cycles, cycle)
				}
			case white:
				dfs(next)
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for _, id := range g.ids() {
		if color[id] == white {
			dfs(id)
		}
	}
	return cycles
}

// canonical rotates a cycle so it starts at its smallest id.
func canonical(cycle []string) []string {
	min := 0
	for i, id := range cycle {
		if id < cycle[min] {
			min = i
		}
	}
	out := make([]string, 0, len(cycle))
	out = append(out, cycle[min:]...)
	out = append(out, cycle[:min]...)
	return out
}

// OnCycle reports whether taskID can reach itself through its dependencies.
func (g *Graph) OnCycle(taskID string) bool {
	for dep := range g.deps[taskID] {
		if g.path(dep, taskID) != nil {
			return true
		}
	}
	return false
}

// LongestChain returns the longest dependency chain ending at taskID,
// ordered from the deepest dependency to taskID itself. Only tasks accepted by
// include take part; a nil include accepts everything. Cycles are cut where
// they are detected.
func (g *Graph) LongestChain(taskID string, include func(*models.Task) bool) []string {
	if _, ok := g.tasks[taskID]; !ok {
		return nil
	}
	memo := make(map[string][]string)
	onStack := make(map[string]bool)

	var walk func(id string) []string
	walk = func(id string) []string {
		if chain, ok := memo[id]; ok {
			return chain
		}
		onStack[id] = true
		var best []string
		for _, dep := range sortedKeys(g.deps[id]) {
			if onStack[dep] {
				continue
			}
			if include != nil && !include(g.tasks[dep]) {
				continue
			}
			if chain := walk(dep); len(chain) > len(best) {
				best = chain
			}
		}
		onStack[id] = false
		chain := make([]string, 0, len(best)+1)
		chain = append(chain, best...)
		chain = append(chain, id)
		memo[id] = chain
		return chain
	}
	return walk(taskID)
}

// Depth returns the number of dependency hops on the longest chain below
// taskID. A task without dependencies has depth 0.
func (g *Graph) Depth(taskID string) int {
	chain := g.LongestChain(taskID, nil)
	if len(chain) == 0 {
		return 0
	}
	return len(chain) - 1
}

// Clone returns a deep copy of the graph and its tasks.
func (g *Graph) Clone() *Graph {
	c := New()
	for id, t := range g.tasks {
		c.tasks[id] = t.Clone()
		c.deps[id] = make(map[string]bool, len(g.deps[id]))
		for dep := range g.deps[id] {
			c.deps[id][dep] = true
		}
		c.rdeps[id] = make(map[string]bool, len(g.rdeps[id]))
		for dep := range g.rdeps[id] {
			c.rdeps[id][dep] = true
		}
	}
	return c
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
