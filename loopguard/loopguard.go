package loopguard

import (
	"sync"
	"time"

	"github.com/radlab-io/authgate/claims"
)

const (
	DEFAULT_THRESHOLD = 3
	DEFAULT_COOLDOWN  = 30 * time.Second
)

type attempt struct {
	count  int
	lastAt time.Time
}

// Guard bounds how many consecutive conditional-allow decisions a single
// request identity may receive while verification is inconclusive. Without
// it an inconclusive verification either traps the user in a login redirect
// loop or holds the door open indefinitely.
type Guard struct {
	mu        sync.Mutex
	attempts  map[string]*attempt
	threshold int
	cooldown  time.Duration
	stop      chan struct{}
	stopOnce  sync.Once
}

func NewGuard(threshold int, cooldown time.Duration) *Guard {
	if threshold == 0 {
		threshold = DEFAULT_THRESHOLD
	}

	if cooldown == 0 {
		cooldown = DEFAULT_COOLDOWN
	}

	g := &Guard{
		attempts:  make(map[string]*attempt),
		threshold: threshold,
		cooldown:  cooldown,
		stop:      make(chan struct{}),
	}

	go g.pruneLoop()

	return g
}

// Allow records one conditional-allow attempt for the identity and reports
// whether the request may still pass. The first threshold attempts pass;
// later ones are denied until the cooldown elapses.
func (g *Guard) Allow(identity claims.Identity) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	key := identity.Key()

	a, found := g.attempts[key]
	if !found || now.Sub(a.lastAt) > g.cooldown {
		a = &attempt{}
		g.attempts[key] = a
	}

	a.count++
	a.lastAt = now

	return a.count <= g.threshold
}

// Reset clears the counter after a fully successful verification.
func (g *Guard) Reset(identity claims.Identity) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.attempts, identity.Key())
}

// Prune drops counters idle past the cooldown so the map does not grow
// with one-off anonymous identities. Runs on the prune loop cadence.
func (g *Guard) Prune() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()

	for key, a := range g.attempts {
		if now.Sub(a.lastAt) > g.cooldown {
			delete(g.attempts, key)
		}
	}
}

func (g *Guard) Stop() {
	g.stopOnce.Do(func() {
		close(g.stop)
	})
}

func (g *Guard) pruneLoop() {
	ticker := time.NewTicker(g.cooldown)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.Prune()
		case <-g.stop:
			return
		}
	}
}
