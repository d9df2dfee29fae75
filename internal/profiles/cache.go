package profiles

import (
	"context"
	"sync"
	"time"

	"github.com/clipverse/backend/internal/apperr"
	"github.com/clipverse/backend/internal/models"
)

// ErrLookupUnavailable indicates no backing lookup is configured.
var ErrLookupUnavailable = apperr.E(apperr.KindTransient, "profile lookup unavailable", nil)

// Lookup resolves creator enrichment for a set of profile ids. Ids that could
// not be resolved are absent from the result.
type Lookup interface {
	Profiles(ctx context.Context, ids []string) (map[string]models.Creator, error)
}

type cacheEntry struct {
	creator models.Creator
	expires time.Time
}

// CachingLookup wraps another Lookup with a TTL-based in-memory cache. Only
// ids missing from the cache (or expired) are forwarded to the base lookup.
type CachingLookup struct {
	base Lookup
	ttl  time.Duration
	now  func() time.Time

	mu    sync.RWMutex
	items map[string]cacheEntry
}

// NewCachingLookup returns a Lookup that caches resolved creators for ttl.
func NewCachingLookup(base Lookup, ttl time.Duration) *CachingLookup {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachingLookup{
		base:  base,
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]cacheEntry),
	}
}

// Profiles serves cached creators and fetches the rest in one call.
func (c *CachingLookup) Profiles(ctx context.Context, ids []string) (map[string]models.Creator, error) {
	if c == nil || c.base == nil {
		return nil, ErrLookupUnavailable
	}

	now := c.now()
	out := make(map[string]models.Creator, len(ids))
	var missing []string

	c.mu.RLock()
	for _, id := range ids {
		if _, seen := out[id]; seen {
			continue
		}
		entry, ok := c.items[id]
		if ok && now.Before(entry.expires) {
			out[id] = entry.creator
			continue
		}
		missing = append(missing, id)
	}
	c.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := c.base.Profiles(ctx, missing)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	for id, creator := range fetched {
		c.items[id] = cacheEntry{creator: creator, expires: now.Add(c.ttl)}
		out[id] = creator
	}
	c.mu.Unlock()

	return out, nil
}

// Invalidate drops id from the cache, for example after a profile edit.
func (c *CachingLookup) Invalidate(id string) {
	c.mu.Lock()
	delete(c.items, id)
	c.mu.Unlock()
}
