// Package registry keeps a process-wide snapshot of installed extensions.
// The snapshot is always replaced wholesale from the browser's own list so
// it can never drift through incremental updates.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/reglet-dev/finguard/host"
)

// Cache holds the most recent snapshot of installed extensions.
type Cache struct {
	lister host.ExtensionLister
	logger *slog.Logger

	mu       sync.RWMutex
	snapshot []host.ExtensionInfo
	// issued counts started refreshes; applied is the sequence number of
	// the refresh whose result is in snapshot.
	issued  uint64
	applied uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for refresh diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates an empty cache reading from lister.
func New(lister host.ExtensionLister, opts ...Option) *Cache {
	c := &Cache{lister: lister}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Refresh re-reads the full extension list and replaces the snapshot.
// When refreshes overlap, a slower older one never overwrites the result
// of a newer one.
func (c *Cache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.issued++
	seq := c.issued
	c.mu.Unlock()

	list, err := c.lister.ListExtensions(ctx)
	if err != nil {
		return fmt.Errorf("listing installed extensions: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq < c.applied {
		c.logger.Debug("discarding stale extension list", "sequence", seq, "applied", c.applied)
		return nil
	}
	c.snapshot = slices.Clone(list)
	c.applied = seq
	c.logger.Debug("extension registry refreshed", "extensions", len(list))
	return nil
}

// Current returns a copy of the latest snapshot. It may lag behind
// in-flight enable/disable calls.
func (c *Cache) Current() []host.ExtensionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.snapshot)
}

// Lookup returns the cached record for id.
func (c *Cache) Lookup(id string) (host.ExtensionInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ext := range c.snapshot {
		if ext.ID == id {
			return ext, true
		}
	}
	return host.ExtensionInfo{}, false
}
