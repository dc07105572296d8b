package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gurkanbulca/taskflow/internal/repository"
)

type cacheEntry struct {
	value   any
	err     error
	expires time.Time
}

// CachedDirectory memoizes directory answers for a fixed TTL. Concurrent
// misses for the same key share one underlying lookup. Only successful
// answers and ErrNotFound are cached.
type CachedDirectory struct {
	next  repository.Directory
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]cacheEntry
}

func NewCachedDirectory(next repository.Directory, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *CachedDirectory) ProjectManager(ctx context.Context, projectID string) (string, error) {
	v, err := c.lookup("pm:"+projectID, func() (any, error) {
		return c.next.ProjectManager(ctx, projectID)
	})
	s, _ := v.(string)
	return s, err
}

func (c *CachedDirectory) TeamLeads(ctx context.Context, projectID, memberID string) ([]string, error) {
	v, err := c.lookup("tl:"+projectID+"/"+memberID, func() (any, error) {
		return c.next.TeamLeads(ctx, projectID, memberID)
	})
	leads, _ := v.([]string)
	return leads, err
}

func (c *CachedDirectory) UserIDByExternalLogin(ctx context.Context, login string) (string, error) {
	v, err := c.lookup("login:"+login, func() (any, error) {
		return c.next.UserIDByExternalLogin(ctx, login)
	})
	s, _ := v.(string)
	return s, err
}

// Invalidate drops every cached answer.
func (c *CachedDirectory) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

func (c *CachedDirectory) lookup(key string, fn func() (any, error)) (any, error) {
	if e, ok := c.cached(key); ok {
		return e.value, e.err
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if e, ok := c.cached(key); ok {
			return e.value, e.err
		}
		v, err := fn()
		if err == nil || errors.Is(err, repository.ErrNotFound) {
			c.mu.Lock()
			c.entries[key] = cacheEntry{value: v, err: err, expires: c.now().Add(c.ttl)}
			c.mu.Unlock()
		}
		return v, err
	})
	return v, err
}

func (c *CachedDirectory) cached(key string) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expires) {
		return cacheEntry{}, false
	}
	return e, true
}
