package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gurkanbulca/taskflow/internal/database"
	"github.com/gurkanbulca/taskflow/internal/models"
)

// Test helpers
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Driver: dialect.SQLite,
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", uuid.NewString()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(context.Background(), db.Driver))
	// shared-cache sqlite locks whole tables across connections
	db.X.SetMaxOpenConns(1)
	return db
}

func newTestTask(projectID string, createdAt time.Time) *models.Task {
	return &models.Task{
		ID:          uuid.NewString(),
		Title:       "Implement login page",
		Description: "Form, validation and error states",
		ProjectID:   projectID,
		CreatedBy:   "manager-1",
		AssignedTo:  "member-1",
		Status:      models.StatusToDo,
		Priority:    models.PriorityHigh,
		Version:     1,
		History:     []models.HistoryEntry{},
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func transitionUpdate(from, to models.Status, actor *string, at time.Time) StatusUpdate {
	return StatusUpdate{
		Status: to,
		Entry: models.HistoryEntry{
			UpdatedBy: actor,
			UpdatedAt: at,
			OldStatus: from,
			NewStatus: to,
		},
	}
}

func runTaskStoreContract(t *testing.T, newStore func(t *testing.T) TaskStore) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("create and get", func(t *testing.T) {
		store := newStore(t)
		due := now.Add(48 * time.Hour)
		task := newTestTask("project-1", now)
		task.DueDate = &due
		require.NoError(t, store.Create(ctx, task))

		got, err := store.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, task.Title, got.Title)
		assert.Equal(t, task.Description, got.Description)
		assert.Equal(t, models.StatusToDo, got.Status)
		assert.Equal(t, models.PriorityHigh, got.Priority)
		assert.Equal(t, int64(1), got.Version)
		assert.Empty(t, got.History)
		assert.Nil(t, got.ClosedBy)
		require.NotNil(t, got.DueDate)
		assert.WithinDuration(t, due, *got.DueDate, time.Second)
	})

	t.Run("get missing task", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("compare and swap appends history", func(t *testing.T) {
		store := newStore(t)
		task := newTestTask("project-1", now)
		require.NoError(t, store.Create(ctx, task))

		actor := "member-1"
		updated, err := store.CompareAndSwapStatus(ctx, task.ID, 1,
			transitionUpdate(models.StatusToDo, models.StatusInProgress, &actor, now.Add(time.Minute)))
		require.NoError(t, err)
		assert.Equal(t, models.StatusInProgress, updated.Status)
		assert.Equal(t, int64(2), updated.Version)
		require.Len(t, updated.History, 1)
		require.NotNil(t, updated.History[0].UpdatedBy)
		assert.Equal(t, actor, *updated.History[0].UpdatedBy)

		remarks := "fix styling"
		closedBy := "octocat"
		upd := transitionUpdate(models.StatusInProgress, models.StatusCompleted, nil, now.Add(2*time.Minute))
		upd.Remarks = &remarks
		upd.ClosedBy = &closedBy
		updated, err = store.CompareAndSwapStatus(ctx, task.ID, 2, upd)
		require.NoError(t, err)
		assert.Equal(t, "fix styling", updated.Remarks)
		require.NotNil(t, updated.ClosedBy)
		assert.Equal(t, "octocat", *updated.ClosedBy)

		got, err := store.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), got.Version)
		require.Len(t, got.History, 2)
		assert.Nil(t, got.History[1].UpdatedBy)
		assert.NoError(t, got.VerifyHistory())
	})

	t.Run("compare and swap with stale version", func(t *testing.T) {
		store := newStore(t)
		task := newTestTask("project-1", now)
		require.NoError(t, store.Create(ctx, task))

		_, err := store.CompareAndSwapStatus(ctx, task.ID, 1,
			transitionUpdate(models.StatusToDo, models.StatusInProgress, nil, now))
		require.NoError(t, err)

		_, err = store.CompareAndSwapStatus(ctx, task.ID, 1,
			transitionUpdate(models.StatusToDo, models.StatusInProgress, nil, now))
		assert.ErrorIs(t, err, ErrVersionConflict)

		got, err := store.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.Len(t, got.History, 1)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("compare and swap on missing task", func(t *testing.T) {
		store := newStore(t)
		_, err := store.CompareAndSwapStatus(ctx, uuid.NewString(), 1,
			transitionUpdate(models.StatusToDo, models.StatusInProgress, nil, now))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list by project", func(t *testing.T) {
		store := newStore(t)
		first := newTestTask("project-2", now.Add(-time.Hour))
		second := newTestTask("project-2", now)
		other := newTestTask("project-3", now)
		for _, task := range []*models.Task{second, other, first} {
			require.NoError(t, store.Create(ctx, task))
		}
		_, err := store.CompareAndSwapStatus(ctx, second.ID, 1,
			transitionUpdate(models.StatusToDo, models.StatusInProgress, nil, now))
		require.NoError(t, err)

		tasks, err := store.ListByProject(ctx, "project-2")
		require.NoError(t, err)
		require.Len(t, tasks, 2)
		assert.Equal(t, first.ID, tasks[0].ID)
		assert.Equal(t, second.ID, tasks[1].ID)
		assert.Empty(t, tasks[0].History)
		assert.Len(t, tasks[1].History, 1)

		tasks, err = store.ListByProject(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, tasks)
	})

	t.Run("delete", func(t *testing.T) {
		store := newStore(t)
		task := newTestTask("project-1", now)
		require.NoError(t, store.Create(ctx, task))
		_, err := store.CompareAndSwapStatus(ctx, task.ID, 1,
			transitionUpdate(models.StatusToDo, models.StatusInProgress, nil, now))
		require.NoError(t, err)

		require.NoError(t, store.Delete(ctx, task.ID))
		_, err = store.Get(ctx, task.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, store.Delete(ctx, task.ID), ErrNotFound)
	})
}

func TestMemoryTaskStore(t *testing.T) {
	runTaskStoreContract(t, func(t *testing.T) TaskStore {
		return NewMemoryTaskStore()
	})
}

func TestSQLTaskStore(t *testing.T) {
	runTaskStoreContract(t, func(t *testing.T) TaskStore {
		return NewSQLTaskStore(setupTestDB(t))
	})
}

func TestSQLTaskStore_HistorySequenceIsUnique(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewSQLTaskStore(db)

	task := newTestTask("project-1", time.Now().UTC())
	require.NoError(t, store.Create(ctx, task))
	_, err := store.CompareAndSwapStatus(ctx, task.ID, 1,
		transitionUpdate(models.StatusToDo, models.StatusInProgress, nil, time.Now().UTC()))
	require.NoError(t, err)

	_, err = db.X.ExecContext(ctx,
		"INSERT INTO task_history (task_id, seq, updated_at, old_status, new_status) VALUES (?, ?, ?, ?, ?)",
		task.ID, 1, time.Now().UTC(), "To Do", "In Progress")
	assert.Error(t, err)
}

func TestMongoTaskStore(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}

	runTaskStoreContract(t, func(t *testing.T) TaskStore {
		ctx := context.Background()
		db, err := database.NewMongoDatabase(ctx, uri, "taskflow_test_"+uuid.NewString()[:8])
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = db.Drop(context.Background())
			_ = db.Client().Disconnect(context.Background())
		})

		store := NewMongoTaskStore(db)
		require.NoError(t, store.EnsureIndexes(ctx))
		return store
	})
}
