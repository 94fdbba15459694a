// Package settings provides the cached tunables provider. The key-value
// store is read-mostly; each process keeps a snapshot with a TTL and an
// explicit Invalidate hook for administrative writes.
package settings

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Dattelon/field-service-sub000/internal/domain"
)

// DefaultTTL bounds how stale a cached snapshot may get.
const DefaultTTL = 5 * time.Minute

// Cache wraps a SettingsRepository with TTL-based refresh.
type Cache struct {
	repo   domain.SettingsRepository
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	snapshot domain.Tunables
	loadedAt time.Time
	loaded   bool
}

// NewCache creates a cache with the default TTL.
func NewCache(repo domain.SettingsRepository, logger *slog.Logger) *Cache {
	return &Cache{
		repo:   repo,
		ttl:    DefaultTTL,
		logger: logger.With("component", "settings-cache"),
		now:    time.Now,
	}
}

// Get returns the current tunables, refreshing from the repository when the
// snapshot is older than the TTL. If a refresh fails but a previous snapshot
// exists, the stale snapshot is served: bounded staleness is an accepted
// trade-off, an aborted tick is not.
func (c *Cache) Get(ctx context.Context) (domain.Tunables, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.loaded && now.Sub(c.loadedAt) < c.ttl {
		return c.snapshot, nil
	}

	tun, err := c.repo.Load(ctx)
	if err != nil {
		if c.loaded {
			c.logger.Warn("settings refresh failed, serving stale snapshot", "error", err)
			return c.snapshot, nil
		}
		return domain.Tunables{}, err
	}

	c.snapshot = tun
	c.loadedAt = now
	c.loaded = true
	return c.snapshot, nil
}

// Invalidate drops the snapshot so the next Get hits the repository.
// Administrative writes call this, locally and via the invalidation bus.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.mu.Unlock()
	c.logger.Info("settings cache invalidated")
}
