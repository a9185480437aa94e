// Package controlplane provides the HTTP API and service layer for taskgrid.
package controlplane

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/fentz26/taskgrid/internal/audit"
	"github.com/fentz26/taskgrid/internal/health"
	"github.com/fentz26/taskgrid/internal/models"
	"github.com/fentz26/taskgrid/internal/scheduler"
	"github.com/fentz26/taskgrid/internal/store"
)

// Service provides the control plane business logic. The scheduler owns the
// live board; the store is its durable mirror, kept current from scheduler
// events.
type Service struct {
	sched  *scheduler.Scheduler
	store  *store.Store
	pdr    *audit.PDRWriter
	logger *log.Logger
}

// NewService creates the scheduler and the service that mirrors it into the
// store. The service is registered as the scheduler's observer.
func NewService(cfg *scheduler.Config, st *store.Store, pdr *audit.PDRWriter, logger *log.Logger, opts ...scheduler.Option) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	svc := &Service{
		store:  st,
		pdr:    pdr,
		logger: logger,
	}
	opts = append([]scheduler.Option{scheduler.WithLogger(logger)}, opts...)
	opts = append(opts, scheduler.WithObserver(svc))
	svc.sched = scheduler.New(cfg, opts...)
	return svc
}

// Scheduler returns the scheduler behind the service.
func (s *Service) Scheduler() *scheduler.Scheduler {
	return s.sched
}

// HandleEvent persists the state carried by a scheduler event.
func (s *Service) HandleEvent(ev models.Event) {
	if ev.Task != nil {
		if err := s.store.PersistTask(ev.Task); err != nil {
			s.logger.Printf("Persist task %s: %v", ev.TaskID, err)
		}
		var err error
		if ev.Task.Lease != nil {
			err = s.store.SaveLease(ev.Task.Lease)
		} else {
			err = s.store.DeleteLease(ev.TaskID)
		}
		if err != nil {
			s.logger.Printf("Persist lease for %s: %v", ev.TaskID, err)
		}
	}
	if ev.Agent != nil {
		if err := s.store.SaveAgent(ev.Agent); err != nil {
			s.logger.Printf("Persist agent %s: %v", ev.AgentID, err)
		}
	}

	switch ev.Kind {
	case models.EventTaskBlocked:
		s.comment(ev, "blocker")
	case models.EventTaskUnblocked, models.EventTaskProgress, models.EventTaskCompleted:
		s.comment(ev, "progress")
	}

	// Progress is frequent and already captured by the lease mirror.
	if ev.Kind != models.EventTaskProgress {
		if _, err := s.pdr.RecordEvent(ev); err != nil {
			s.logger.Printf("Record PDR for %s: %v", ev.Kind, err)
		}
	}
}

func (s *Service) comment(ev models.Event, kind string) {
	if ev.Message == "" || ev.TaskID == "" {
		return
	}
	if _, err := s.store.AddComment(ev.TaskID, ev.AgentID, kind, ev.Message); err != nil {
		s.logger.Printf("Store comment on %s: %v", ev.TaskID, err)
	}
}

// Restore loads the persisted board into the scheduler and immediately
// recovers anything that expired or was orphaned while the daemon was down.
func (s *Service) Restore() error {
	tasks, err := s.store.LoadTasks()
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	agents, err := s.store.LoadAgents()
	if err != nil {
		return fmt.Errorf("load agents: %w", err)
	}
	leases, err := s.store.LoadLeases()
	if err != nil {
		return fmt.Errorf("load leases: %w", err)
	}

	if err := s.sched.Restore(tasks, agents, leases); err != nil {
		return err
	}
	recovered := s.sched.ScanExpired()
	s.sched.Flush()

	s.pdr.Record("board.restore", map[string]int{
		"tasks":  len(tasks),
		"agents": len(agents),
		"leases": len(leases),
	}, "success", "", fmt.Sprintf("recovered %d task(s)", len(recovered)))
	return nil
}

// Shutdown writes the full board to the store. Call it after the scheduler
// has stopped.
func (s *Service) Shutdown() error {
	s.sched.Flush()

	if err := s.store.PersistTasks(s.sched.ListTasks(scheduler.TaskFilter{})); err != nil {
		return fmt.Errorf("persist tasks: %w", err)
	}
	if err := s.store.SaveLeases(s.sched.Leases()); err != nil {
		return fmt.Errorf("persist leases: %w", err)
	}
	for _, a := range s.sched.ListAgents() {
		if err := s.store.SaveAgent(a); err != nil {
			return fmt.Errorf("persist agents: %w", err)
		}
	}
	return nil
}

// --- Agent Operations ---

// RegisterAgent adds or updates an agent.
func (s *Service) RegisterAgent(id, name string, skills []string) (*models.Agent, error) {
	return s.sched.RegisterAgent(id, name, skills)
}

// GetAgent returns one agent.
func (s *Service) GetAgent(id string) (*models.Agent, error) {
	return s.sched.Agent(id)
}

// ListAgents returns every agent.
func (s *Service) ListAgents() []*models.Agent {
	return s.sched.ListAgents()
}

// --- Task Operations ---

// SubmitTasks ingests drafts and explicit edges.
func (s *Service) SubmitTasks(drafts []models.TaskDraft, edges []models.Edge) (*scheduler.SubmitResult, error) {
	res, err := s.sched.SubmitTasks(drafts, edges)
	if err != nil {
		s.pdr.Record("task.submit", drafts, "rejected", "", err.Error())
		return nil, err
	}
	return res, nil
}

// GetTask retrieves a task by ID from the live board, falling back to the
// store for tasks the board no longer carries.
func (s *Service) GetTask(id string) (*models.Task, error) {
	t, err := s.sched.Task(id)
	if !errors.Is(err, scheduler.ErrTaskNotFound) {
		return t, err
	}
	stored, err := s.store.GetTask(id)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	return stored, nil
}

// ListTasks returns filtered tasks.
func (s *Service) ListTasks(f scheduler.TaskFilter) []*models.Task {
	return s.sched.ListTasks(f)
}

// TaskDependencies describes a task's place in the dependency graph.
func (s *Service) TaskDependencies(id string) (*scheduler.TaskDependencies, error) {
	return s.sched.GetTaskDependencies(id)
}

// RequestNextTask assigns the next eligible task to the agent, or returns
// nil when nothing is available.
func (s *Service) RequestNextTask(agentID string) (*models.Task, error) {
	return s.sched.RequestNextTask(agentID)
}

// ReportProgress renews the agent's lease and applies the reported status.
func (s *Service) ReportProgress(agentID, taskID string, percent float64, status models.ProgressStatus, message string) (*models.Task, error) {
	return s.sched.ReportProgress(agentID, taskID, percent, status, message)
}

// ReportBlocker marks a task blocked.
func (s *Service) ReportBlocker(agentID, taskID, description string) (*models.Task, error) {
	return s.sched.ReportBlocker(agentID, taskID, description)
}

// UnblockTask resumes a blocked task.
func (s *Service) UnblockTask(taskID, note string) (*models.Task, error) {
	return s.sched.UnblockTask(taskID, note)
}

// ReleaseTask returns a task to the board.
func (s *Service) ReleaseTask(agentID, taskID string) (*models.Task, error) {
	return s.sched.ReleaseTask(agentID, taskID)
}

// --- Board Operations ---

// BoardHealth analyses the current board.
func (s *Service) BoardHealth() *health.Report {
	return s.sched.GetBoardHealth()
}

// Blocker is a blocked task with the comments explaining it.
type Blocker struct {
	Task     *models.Task     `json:"task"`
	Comments []models.Comment `json:"comments"`
}

// Blockers lists blocked tasks with their blocker descriptions.
func (s *Service) Blockers() ([]Blocker, error) {
	// Events may still be queued; make sure their comments are stored.
	s.sched.Flush()

	out := []Blocker{}
	for _, t := range s.sched.Blockers() {
		comments, err := s.store.GetCommentsForTask(t.ID)
		if err != nil {
			return nil, err
		}
		blockers := []models.Comment{}
		for _, c := range comments {
			if c.Kind == "blocker" {
				blockers = append(blockers, c)
			}
		}
		out = append(out, Blocker{Task: t, Comments: blockers})
	}
	return out, nil
}

// Comments returns the comments on a task.
func (s *Service) Comments(taskID string) ([]models.Comment, error) {
	if _, err := s.GetTask(taskID); err != nil {
		return nil, err
	}
	s.sched.Flush()
	return s.store.GetCommentsForTask(taskID)
}

// SearchComments finds comments whose content contains query.
func (s *Service) SearchComments(query string) ([]models.Comment, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: search query is required", ErrInvalidRequest)
	}
	s.sched.Flush()
	return s.store.QueryComments(query)
}

// AuditLog returns the most recent decision records, newest first,
// optionally for one task.
func (s *Service) AuditLog(taskID string, limit int) ([]models.PDREntry, error) {
	s.sched.Flush()
	return s.store.ListPDR(taskID, limit)
}

// Stats returns scheduler statistics.
func (s *Service) Stats() scheduler.Stats {
	return s.sched.GetStats()
}
