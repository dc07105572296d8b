package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gurkanbulca/taskflow/internal/models"
	"github.com/gurkanbulca/taskflow/internal/repository"
)

type countingDirectory struct {
	repository.Directory
	managerCalls atomic.Int32
	loginCalls   atomic.Int32
	fail         atomic.Bool
	release      chan struct{}
}

func (d *countingDirectory) ProjectManager(ctx context.Context, projectID string) (string, error) {
	d.managerCalls.Add(1)
	if d.release != nil {
		<-d.release
	}
	if d.fail.Load() {
		return "", errors.New("directory unavailable")
	}
	return d.Directory.ProjectManager(ctx, projectID)
}

func (d *countingDirectory) UserIDByExternalLogin(ctx context.Context, login string) (string, error) {
	d.loginCalls.Add(1)
	return d.Directory.UserIDByExternalLogin(ctx, login)
}

func TestCachedDirectory_ServesFromCacheUntilExpiry(t *testing.T) {
	ctx := context.Background()
	next := &countingDirectory{Directory: seedDirectory()}
	cache := NewCachedDirectory(next, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		got, err := cache.ProjectManager(ctx, projectID)
		require.NoError(t, err)
		assert.Equal(t, manager, got)
	}
	assert.Equal(t, int32(1), next.managerCalls.Load())

	now = now.Add(2 * time.Minute)
	_, err := cache.ProjectManager(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.managerCalls.Load())

	cache.Invalidate()
	_, err = cache.ProjectManager(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, int32(3), next.managerCalls.Load())
}

func TestCachedDirectory_CachesNotFoundButNotFailures(t *testing.T) {
	ctx := context.Background()
	next := &countingDirectory{Directory: seedDirectory()}
	cache := NewCachedDirectory(next, time.Minute)

	for i := 0; i < 2; i++ {
		_, err := cache.UserIDByExternalLogin(ctx, "ghost")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	}
	assert.Equal(t, int32(1), next.loginCalls.Load())

	next.fail.Store(true)
	for i := 0; i < 2; i++ {
		_, err := cache.ProjectManager(ctx, projectID)
		assert.Error(t, err)
	}
	assert.Equal(t, int32(2), next.managerCalls.Load())

	next.fail.Store(false)
	got, err := cache.ProjectManager(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, manager, got)
}

func TestCachedDirectory_CollapsesConcurrentMisses(t *testing.T) {
	next := &countingDirectory{Directory: seedDirectory(), release: make(chan struct{})}
	cache := NewCachedDirectory(next, time.Minute)

	const callers = 8
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := cache.ProjectManager(context.Background(), projectID)
			assert.NoError(t, err)
			assert.Equal(t, manager, got)
		}()
	}

	require.Eventually(t, func() bool { return next.managerCalls.Load() == 1 }, time.Second, time.Millisecond)
	close(next.release)
	wg.Wait()

	assert.Equal(t, int32(1), next.managerCalls.Load())
}

func TestCachedDirectory_BacksTheGate(t *testing.T) {
	store := repository.NewMemoryTaskStore()
	task := seedTask(t, store, models.StatusPendingApproval)

	f := NewFacade(store, NewCachedDirectory(seedDirectory(), time.Minute), testLogger())
	done := requireOK(t, f.Approve(context.Background(), task.ID, manager, ""))
	assert.Equal(t, models.StatusCompleted, done.Status)
}
