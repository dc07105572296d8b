package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gurkanbulca/taskflow/internal/models"
	"github.com/gurkanbulca/taskflow/internal/repository"
)

// DefaultMaxRetries bounds how many times a transition is re-attempted
// after losing a compare-and-swap race.
const DefaultMaxRetries = 3

// Request is one transition attempt.
type Request struct {
	TaskID  string
	To      models.Status
	ActorID string
	Role    Role
	// Remarks replaces the task's remarks when non-nil.
	Remarks *string
	// ClosedBy records the external identity that closed the task.
	ClosedBy *string
}

// Executor validates and commits transitions. Validation and the write are
// tied together by the task version, so a transition is only ever applied
// to the state it was validated against.
type Executor struct {
	store      repository.TaskStore
	gate       *PermissionGate
	maxRetries int
	now        func() time.Time
	logger     *logrus.Logger
}

type ExecutorOption func(*Executor)

func WithMaxRetries(n int) ExecutorOption {
	return func(e *Executor) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		e.now = now
	}
}

func NewExecutor(store repository.TaskStore, gate *PermissionGate, logger *logrus.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:      store,
		gate:       gate,
		maxRetries: DefaultMaxRetries,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute applies req. A lost compare-and-swap is retried against fresh
// state while the task still has the status the request was validated
// against. Once another writer has moved it, the request fails with
// ConcurrencyConflict.
func (e *Executor) Execute(ctx context.Context, req Request) (*models.Task, error) {
	if req.TaskID == "" {
		return nil, newError(KindValidation, "task id is required")
	}
	if req.Role != RoleWebhook && req.ActorID == "" {
		return nil, newError(KindNotFound, "actor is required")
	}

	var validated models.Status
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		task, err := e.store.Get(ctx, req.TaskID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, newError(KindNotFound, "task %s not found", req.TaskID)
			}
			return nil, internalError(err, "failed to load task %s", req.TaskID)
		}

		if attempt > 0 && task.Status != validated {
			e.conflict(task.ID, attempt)
			return nil, newError(KindConcurrencyConflict,
				"task %s moved from %q to %q concurrently", task.ID, validated, task.Status)
		}

		var rel Relation
		if req.Role != RoleWebhook {
			rel = e.gate.ResolveRelation(ctx, req.ActorID, task)
		}
		if err := LegalTransition(task.Status, req.To, req.Role, rel); err != nil {
			return nil, err
		}
		validated = task.Status

		var updatedBy *string
		if req.ActorID != "" {
			actor := req.ActorID
			updatedBy = &actor
		}
		update := repository.StatusUpdate{
			Status:   req.To,
			Remarks:  req.Remarks,
			ClosedBy: req.ClosedBy,
			Entry: models.HistoryEntry{
				UpdatedBy: updatedBy,
				UpdatedAt: e.now(),
				OldStatus: task.Status,
				NewStatus: req.To,
			},
		}

		updated, err := e.store.CompareAndSwapStatus(ctx, task.ID, task.Version, update)
		switch {
		case err == nil:
			e.logger.WithFields(logrus.Fields{
				"task_id": updated.ID,
				"from":    task.Status,
				"to":      updated.Status,
				"actor":   req.ActorID,
				"role":    req.Role.String(),
				"version": updated.Version,
			}).Info("task transitioned")
			return updated, nil
		case errors.Is(err, repository.ErrVersionConflict):
			e.logger.WithFields(logrus.Fields{
				"task_id": task.ID,
				"version": task.Version,
				"attempt": attempt + 1,
			}).Debug("lost compare-and-swap, reloading")
		case errors.Is(err, repository.ErrNotFound):
			return nil, newError(KindNotFound, "task %s not found", req.TaskID)
		default:
			return nil, internalError(err, "failed to update task %s", req.TaskID)
		}
	}

	e.conflict(req.TaskID, e.maxRetries+1)
	return nil, newError(KindConcurrencyConflict,
		"task %s kept changing, gave up after %d retries", req.TaskID, e.maxRetries)
}

func (e *Executor) conflict(taskID string, attempts int) {
	e.logger.WithFields(logrus.Fields{
		"task_id":  taskID,
		"attempts": attempts,
	}).Warn("transition lost to a concurrent update")
}
