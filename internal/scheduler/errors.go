package scheduler

import (
	"errors"

	"github.com/fentz26/taskgrid/internal/graph"
	"github.com/fentz26/taskgrid/internal/registry"
)

var (
	// ErrAgentNotFound is returned when the calling agent is not registered.
	ErrAgentNotFound = registry.ErrAgentNotFound
	// ErrTaskNotFound is returned when a task id is unknown.
	ErrTaskNotFound = graph.ErrUnknownTask
	// ErrNotOwner is returned when an agent reports on a task it does not hold.
	ErrNotOwner = errors.New("agent does not hold this task")
	// ErrInvalidProgress is returned for progress outside 0-100.
	ErrInvalidProgress = errors.New("progress must be between 0 and 100")
	// ErrInvalidStatus is returned for an unknown progress status.
	ErrInvalidStatus = errors.New("invalid progress status")
	// ErrTaskDone is returned when reporting on a completed task.
	ErrTaskDone = errors.New("task is already done")
	// ErrNotBlocked is returned when unblocking a task that is not blocked.
	ErrNotBlocked = errors.New("task is not blocked")
	// ErrInvalidDraft is returned for a task draft that cannot be ingested.
	ErrInvalidDraft = errors.New("invalid task draft")
)
