package controlplane

import (
	"errors"
	"net/http"

	"github.com/fentz26/taskgrid/internal/graph"
	"github.com/fentz26/taskgrid/internal/lease"
	"github.com/fentz26/taskgrid/internal/phase"
	"github.com/fentz26/taskgrid/internal/registry"
	"github.com/fentz26/taskgrid/internal/scheduler"
)

// Sentinel errors for control plane operations.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("resource not found")
)

// statusFor maps a service error onto an HTTP status code.
func statusFor(err error) int {
	var cycle *graph.CycleError
	var verr phase.ValidationError
	var verrs phase.ValidationErrors

	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, scheduler.ErrInvalidProgress),
		errors.Is(err, scheduler.ErrInvalidStatus),
		errors.Is(err, scheduler.ErrInvalidDraft),
		errors.Is(err, graph.ErrInvalidTask),
		errors.Is(err, registry.ErrInvalidAgent):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound),
		errors.Is(err, scheduler.ErrTaskNotFound),
		errors.Is(err, scheduler.ErrAgentNotFound):
		return http.StatusNotFound
	case errors.Is(err, scheduler.ErrNotOwner),
		errors.Is(err, lease.ErrNoLease):
		return http.StatusForbidden
	case errors.As(err, &cycle),
		errors.Is(err, graph.ErrDuplicateTask),
		errors.Is(err, lease.ErrAlreadyLeased),
		errors.Is(err, scheduler.ErrTaskDone),
		errors.Is(err, scheduler.ErrNotBlocked):
		return http.StatusConflict
	case errors.As(err, &verrs), errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
