package scheduler

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/fentz26/taskgrid/internal/graph"
	"github.com/fentz26/taskgrid/internal/lease"
	"github.com/fentz26/taskgrid/internal/models"
	"github.com/fentz26/taskgrid/internal/phase"
	"github.com/fentz26/taskgrid/internal/registry"
	"github.com/google/uuid"
)

// Observer receives scheduler events in the order they happened. It is
// called from a single goroutine and never while the scheduler lock is held.
type Observer interface {
	HandleEvent(ev models.Event)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger sets the logger used for recovery and dispatch messages.
func WithLogger(l *log.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithObserver registers the event observer.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

// WithClassifier replaces the default task type classifier.
func WithClassifier(c *phase.Classifier) Option {
	return func(s *Scheduler) { s.classifier = c }
}

// Scheduler serialises every mutation of the graph, the lease table and the
// agent registry. Reads that only need a consistent view take the read lock.
type Scheduler struct {
	mu         sync.RWMutex
	graph      *graph.Graph
	leases     *lease.Manager
	agents     *registry.Registry
	classifier *phase.Classifier
	config     *Config
	now        func() time.Time
	logger     *log.Logger

	observer Observer
	outMu    sync.Mutex
	outbox   []models.Event
	notify   chan struct{}
	// deliverMu keeps the dispatch loop and Flush from interleaving batches.
	deliverMu sync.Mutex

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates a scheduler with an empty board.
func New(cfg *Config, opts ...Option) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		graph:  graph.New(),
		config: cfg,
		now:    time.Now,
		logger: log.New(io.Discard, "", 0),
		notify: make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.classifier == nil {
		s.classifier = phase.MustDefaultClassifier()
	}
	s.leases = lease.NewManager(cfg.Lease, s.now)
	s.agents = registry.New(s.now)
	return s
}

// Start begins the sweep and event dispatch loops.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(2)
	go s.sweepLoop()
	go s.dispatchLoop()
	s.logger.Printf("Scheduler started (sweep every %s)", s.config.SweepInterval)
}

// Stop gracefully stops the loops and delivers any events still queued.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	s.Flush()
	s.logger.Println("Scheduler stopped")
}

// sweepLoop recovers expired leases and orphaned tasks on a fixed interval.
func (s *Scheduler) sweepLoop() {
	defer s.wg.Done()

	interval := s.config.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if recovered := s.ScanExpired(); len(recovered) > 0 {
				s.logger.Printf("Sweep recovered %d task(s): %v", len(recovered), recovered)
			}
		}
	}
}

// dispatchLoop hands queued events to the observer.
func (s *Scheduler) dispatchLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.notify:
			s.Flush()
		}
	}
}

// Flush synchronously delivers every queued event to the observer.
func (s *Scheduler) Flush() {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	for {
		s.outMu.Lock()
		batch := s.outbox
		s.outbox = nil
		s.outMu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, ev := range batch {
			s.observer.HandleEvent(ev)
		}
	}
}

// emit queues an event. Callers hold s.mu, which fixes the event order.
func (s *Scheduler) emit(kind models.EventKind, t *models.Task, agentID, message string) {
	if s.observer == nil {
		return
	}
	ev := models.Event{
		ID:      uuid.New().String(),
		Kind:    kind,
		AgentID: agentID,
		Message: message,
		At:      s.now(),
	}
	if t != nil {
		ev.TaskID = t.ID
		ev.Task = t.Clone()
	}
	if agentID != "" {
		if a, ok := s.agents.Get(agentID); ok {
			ev.Agent = a
		}
	}

	s.outMu.Lock()
	s.outbox = append(s.outbox, ev)
	s.outMu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// RegisterAgent adds an agent or updates the name and skills of an existing one.
func (s *Scheduler) RegisterAgent(id, name string, skills []string) (*models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.agents.Register(id, name, skills)
	if err != nil {
		return nil, err
	}
	s.emit(models.EventAgentChanged, nil, a.ID, "registered")
	s.logger.Printf("Registered agent %s (skills: %v)", a.ID, a.Skills)
	return a, nil
}

// RequestNextTask assigns the best eligible task to the agent. A nil task
// with a nil error means nothing is available right now; callers poll.
func (s *Scheduler) RequestNextTask(agentID string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	skills, err := s.agents.Skills(agentID)
	if err != nil {
		return nil, err
	}

	for _, t := range s.graph.EligibleTasks(skills) {
		if !graph.HasSkills(t.RequiredSkills, skills) {
			continue
		}
		l, err := s.leases.Grant(t.ID, agentID, t.EstimatedHours)
		if err != nil {
			// A stale lease on a Todo task; the sweep will clear it.
			s.logger.Printf("Skipping task %s: %v", t.ID, err)
			continue
		}

		t.Status = models.TaskStatusInProgress
		t.AssignedAgent = agentID
		t.Lease = l
		t.UpdatedAt = s.now()
		if err := s.agents.Assign(agentID, t.ID); err != nil {
			return nil, err
		}

		s.emit(models.EventTaskAssigned, t, agentID, "")
		s.logger.Printf("Assigned task %s (%s) to agent %s until %s",
			t.ID, t.Name, agentID, l.ExpiresAt.Format(time.RFC3339))
		return t.Clone(), nil
	}
	return nil, nil
}

// ownedTask looks up a task and checks that agentID holds it.
func (s *Scheduler) ownedTask(agentID, taskID string) (*models.Task, error) {
	if _, ok := s.agents.Get(agentID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	t, ok := s.graph.Task(taskID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if t.Status == models.TaskStatusDone {
		return nil, fmt.Errorf("%w: %s", ErrTaskDone, taskID)
	}
	if t.AssignedAgent != agentID {
		return nil, fmt.Errorf("%w: %s is not assigned to %s", ErrNotOwner, taskID, agentID)
	}
	return t, nil
}

// ReportProgress renews the agent's lease and applies the reported status.
func (s *Scheduler) ReportProgress(agentID, taskID string, percent float64, status models.ProgressStatus, message string) (*models.Task, error) {
	if !(percent >= 0 && percent <= 100) {
		return nil, ErrInvalidProgress
	}
	if status == "" {
		status = models.ProgressInProgress
	}
	switch status {
	case models.ProgressInProgress, models.ProgressCompleted, models.ProgressBlocked:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.ownedTask(agentID, taskID)
	if err != nil {
		return nil, err
	}
	l, err := s.leases.Renew(taskID, percent)
	if err != nil {
		return nil, err
	}
	t.Lease = l
	t.UpdatedAt = s.now()

	switch status {
	case models.ProgressCompleted:
		s.complete(t, agentID, message)
	case models.ProgressBlocked:
		s.block(t, agentID, message)
	default:
		if t.Status == models.TaskStatusBlocked {
			s.unblock(t, message)
		}
		s.emit(models.EventTaskProgress, t, agentID, message)
	}
	return t.Clone(), nil
}

func (s *Scheduler) complete(t *models.Task, agentID, message string) {
	s.leases.Release(t.ID)
	t.Status = models.TaskStatusDone
	t.Lease = nil
	s.agents.Release(agentID, t.ID, s.otherOwnedTask(agentID, t.ID))
	s.emit(models.EventTaskCompleted, t, agentID, message)
	s.logger.Printf("Task %s completed by agent %s", t.ID, agentID)
}

func (s *Scheduler) block(t *models.Task, agentID, description string) {
	t.Status = models.TaskStatusBlocked
	if a, ok := s.agents.Get(agentID); ok && a.CurrentTaskID == t.ID {
		_ = s.agents.SetStatus(agentID, models.AgentStatusBlocked)
	}
	s.emit(models.EventTaskBlocked, t, agentID, description)
	s.logger.Printf("Task %s blocked by agent %s: %s", t.ID, agentID, description)
}

func (s *Scheduler) unblock(t *models.Task, message string) {
	agentID := t.AssignedAgent
	if agentID != "" && t.Lease != nil {
		t.Status = models.TaskStatusInProgress
		if a, ok := s.agents.Get(agentID); ok && a.CurrentTaskID == t.ID {
			_ = s.agents.SetStatus(agentID, models.AgentStatusWorking)
		}
	} else {
		s.requeue(t)
	}
	t.UpdatedAt = s.now()
	s.emit(models.EventTaskUnblocked, t, agentID, message)
}

// otherOwnedTask returns another task the agent still holds, or "".
func (s *Scheduler) otherOwnedTask(agentID, except string) string {
	for _, t := range s.graph.Tasks() {
		if t.ID == except || t.AssignedAgent != agentID {
			continue
		}
		if t.Status == models.TaskStatusInProgress || t.Status == models.TaskStatusBlocked {
			return t.ID
		}
	}
	return ""
}

// ReportBlocker marks the task blocked. The agent keeps its lease.
func (s *Scheduler) ReportBlocker(agentID, taskID, description string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.ownedTask(agentID, taskID)
	if err != nil {
		return nil, err
	}
	t.UpdatedAt = s.now()
	s.block(t, agentID, description)
	return t.Clone(), nil
}

// UnblockTask resumes a blocked task. A task still held by its agent goes
// back to in progress; one without a holder returns to the board.
func (s *Scheduler) UnblockTask(taskID, note string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.graph.Task(taskID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if t.Status != models.TaskStatusBlocked {
		return nil, fmt.Errorf("%w: %s", ErrNotBlocked, taskID)
	}
	s.unblock(t, note)
	return t.Clone(), nil
}

// ReleaseTask gives the task back to the board immediately, as if its lease
// had expired.
func (s *Scheduler) ReleaseTask(agentID, taskID string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.ownedTask(agentID, taskID)
	if err != nil {
		return nil, err
	}
	s.requeue(t)
	s.emit(models.EventTaskReleased, t, agentID, "released by agent")
	s.logger.Printf("Agent %s released task %s", agentID, taskID)
	return t.Clone(), nil
}

// requeue returns a task to Todo and detaches it from its lease and agent.
func (s *Scheduler) requeue(t *models.Task) {
	agentID := t.AssignedAgent
	s.leases.Release(t.ID)
	t.Status = models.TaskStatusTodo
	t.AssignedAgent = ""
	t.Lease = nil
	t.UpdatedAt = s.now()
	if agentID != "" {
		s.agents.Release(agentID, t.ID, s.otherOwnedTask(agentID, t.ID))
	}
}
