package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/gurkanbulca/taskflow/internal/models"
)

// MemoryTaskStore implements TaskStore in memory.
type MemoryTaskStore struct {
	mu    sync.Mutex
	tasks map[string]*models.Task
}

func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{
		tasks: make(map[string]*models.Task),
	}
}

func (m *MemoryTaskStore) Create(ctx context.Context, task *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[task.ID]; ok {
		return errors.Errorf("task %s already exists", task.ID)
	}
	m.tasks[task.ID] = task.Clone()
	return nil
}

func (m *MemoryTaskStore) Get(ctx context.Context, id string) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "task %s", id)
	}
	return t.Clone(), nil
}

func (m *MemoryTaskStore) ListByProject(ctx context.Context, projectID string) ([]*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.Task
	for _, t := range m.tasks {
		if t.ProjectID == projectID {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryTaskStore) CompareAndSwapStatus(ctx context.Context, id string, expectedVersion int64, update StatusUpdate) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "task %s", id)
	}
	if t.Version != expectedVersion {
		return nil, errors.Wrapf(ErrVersionConflict, "task %s at version %d, expected %d", id, t.Version, expectedVersion)
	}

	t.Status = update.Status
	if update.Remarks != nil {
		t.Remarks = *update.Remarks
	}
	if update.ClosedBy != nil {
		closedBy := *update.ClosedBy
		t.ClosedBy = &closedBy
	}
	entry := update.Entry
	if entry.UpdatedBy != nil {
		by := *entry.UpdatedBy
		entry.UpdatedBy = &by
	}
	t.History = append(t.History, entry)
	t.Version++
	t.UpdatedAt = update.Entry.UpdatedAt

	return t.Clone(), nil
}

func (m *MemoryTaskStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[id]; !ok {
		return errors.Wrapf(ErrNotFound, "task %s", id)
	}
	delete(m.tasks, id)
	return nil
}
