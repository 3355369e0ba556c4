package verificationcache

import (
	"sync"
	"time"

	"github.com/radlab-io/authgate/claims"
)

const (
	DEFAULT_TTL            = 5 * time.Minute
	DEFAULT_UNVERIFIED_TTL = 1 * time.Minute
	DEFAULT_SWEEP_INTERVAL = 10 * time.Minute
)

type Entry struct {
	Claims     claims.Claims
	Trust      claims.TrustLevel
	ObservedAt time.Time
}

// Cache maps raw credential strings to their last verification result so
// rapid successive requests carrying the same credential skip the signature
// check. Entries from the unverified fallback path expire sooner.
//
// A cache hit can serve a credential revoked after it was cached; the stale
// window is bounded by the TTL. That trade-off is deliberate: the edge runs
// without identity-store access, and the authoritative execution context
// re-checks revocation on its own.
type Cache struct {
	mu            sync.RWMutex
	entries       map[string]*Entry
	ttl           time.Duration
	unverifiedTTL time.Duration
	sweepInterval time.Duration
	stop          chan struct{}
	stopOnce      sync.Once
}

func NewCache(ttl, unverifiedTTL, sweepInterval time.Duration) *Cache {
	if ttl == 0 {
		ttl = DEFAULT_TTL
	}

	if unverifiedTTL == 0 {
		unverifiedTTL = DEFAULT_UNVERIFIED_TTL
	}

	if sweepInterval == 0 {
		sweepInterval = DEFAULT_SWEEP_INTERVAL
	}

	c := &Cache{
		entries:       make(map[string]*Entry),
		ttl:           ttl,
		unverifiedTTL: unverifiedTTL,
		sweepInterval: sweepInterval,
		stop:          make(chan struct{}),
	}

	go c.sweepLoop()

	return c
}

func (c *Cache) Get(credential string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, found := c.entries[credential]
	if !found || c.expired(entry, time.Now()) {
		return nil, false
	}

	return entry, true
}

func (c *Cache) Put(credential string, cl claims.Claims, trust claims.TrustLevel) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[credential] = &Entry{
		Claims:     cl,
		Trust:      trust,
		ObservedAt: time.Now(),
	}
}

// Invalidate drops a single entry so the next request re-verifies, e.g.
// after an identity self-check forces fresh claims.
func (c *Cache) Invalidate(credential string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, credential)
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

func (c *Cache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Cache) expired(entry *Entry, now time.Time) bool {
	ttl := c.ttl
	if entry.Trust == claims.TrustUnverified {
		ttl = c.unverifiedTTL
	}

	return now.Sub(entry.ObservedAt) > ttl
}

// Sweep collects expired keys under the read lock first, then deletes them
// under the write lock, so concurrent lookups are not blocked for the full
// traversal.
func (c *Cache) Sweep() {
	now := time.Now()

	c.mu.RLock()

	var stale []string

	for credential, entry := range c.entries {
		if c.expired(entry, now) {
			stale = append(stale, credential)
		}
	}

	c.mu.RUnlock()

	if len(stale) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, credential := range stale {
		if entry, found := c.entries[credential]; found && c.expired(entry, now) {
			delete(c.entries, credential)
		}
	}
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.stop:
			return
		}
	}
}
