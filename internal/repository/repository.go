package repository

import (
	"context"
	"errors"

	"github.com/gurkanbulca/taskflow/internal/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned by CompareAndSwapStatus when the stored
	// version no longer matches the expected one.
	ErrVersionConflict = errors.New("version conflict")
)

// StatusUpdate is the write half of a validated transition.
type StatusUpdate struct {
	Status models.Status
	// Remarks replaces the stored remarks when non-nil.
	Remarks *string
	// ClosedBy is set only by the webhook close path.
	ClosedBy *string
	Entry    models.HistoryEntry
}

// TaskStore persists tasks and their history.
//
// CompareAndSwapStatus must apply the status change, the optional field
// updates and the history append atomically, and only if the stored version
// equals expectedVersion. On success the stored version becomes
// expectedVersion+1.
type TaskStore interface {
	Create(ctx context.Context, task *models.Task) error
	Get(ctx context.Context, id string) (*models.Task, error)
	ListByProject(ctx context.Context, projectID string) ([]*models.Task, error)
	CompareAndSwapStatus(ctx context.Context, id string, expectedVersion int64, update StatusUpdate) (*models.Task, error)
	Delete(ctx context.Context, id string) error
}

// Directory answers the read-only Project/Team/Profile questions the
// permission gate needs.
type Directory interface {
	// ProjectManager returns the manager of the project or ErrNotFound.
	ProjectManager(ctx context.Context, projectID string) (string, error)
	// TeamLeads returns the leads of every team in the project that has
	// memberID as a member.
	TeamLeads(ctx context.Context, projectID, memberID string) ([]string, error)
	// UserIDByExternalLogin resolves a source-control login or ErrNotFound.
	UserIDByExternalLogin(ctx context.Context, login string) (string, error)
}
