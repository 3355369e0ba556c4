package loopguard

import (
	"sync"
	"testing"
	"time"

	"github.com/radlab-io/authgate/claims"
	"github.com/stretchr/testify/assert"
)

func testIdentity() claims.Identity {
	return claims.Identity{Host: "radlab.example", Path: "/dashboard"}
}

func TestGuard_AllowsUpToThreshold(t *testing.T) {
	guard := NewGuard(3, time.Minute)
	identity := testIdentity()

	for i := 0; i < 3; i++ {
		assert.True(t, guard.Allow(identity), "attempt %d should pass", i+1)
	}

	assert.False(t, guard.Allow(identity), "attempt past threshold must be denied")
	assert.False(t, guard.Allow(identity))
}

func TestGuard_SeparateIdentities(t *testing.T) {
	guard := NewGuard(1, time.Minute)

	assert.True(t, guard.Allow(claims.Identity{Host: "a", Path: "/x"}))
	assert.False(t, guard.Allow(claims.Identity{Host: "a", Path: "/x"}))

	assert.True(t, guard.Allow(claims.Identity{Host: "a", Path: "/y"}))
	assert.True(t, guard.Allow(claims.Identity{Host: "b", Path: "/x"}))
	assert.True(t, guard.Allow(claims.Identity{Host: "a", Path: "/x", Subject: "user-1"}))
}

func TestGuard_CooldownResetsCounter(t *testing.T) {
	guard := NewGuard(1, 20*time.Millisecond)
	identity := testIdentity()

	assert.True(t, guard.Allow(identity))
	assert.False(t, guard.Allow(identity))

	time.Sleep(40 * time.Millisecond)

	assert.True(t, guard.Allow(identity))
}

func TestGuard_ResetOnSuccessfulVerification(t *testing.T) {
	guard := NewGuard(1, time.Minute)
	identity := testIdentity()

	assert.True(t, guard.Allow(identity))
	assert.False(t, guard.Allow(identity))

	guard.Reset(identity)

	assert.True(t, guard.Allow(identity))
}

func TestGuard_PruneDropsIdleCounters(t *testing.T) {
	guard := NewGuard(1, 10*time.Millisecond)

	guard.Allow(testIdentity())

	time.Sleep(30 * time.Millisecond)

	guard.Prune()

	guard.mu.Lock()
	defer guard.mu.Unlock()
	assert.Empty(t, guard.attempts)
}

func TestGuard_ConcurrentAllow(t *testing.T) {
	guard := NewGuard(100, time.Minute)

	var wg sync.WaitGroup

	allowed := make(chan bool, 200)

	for i := 0; i < 200; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			allowed <- guard.Allow(testIdentity())
		}()
	}

	wg.Wait()
	close(allowed)

	var passes int

	for ok := range allowed {
		if ok {
			passes++
		}
	}

	assert.Equal(t, 100, passes)
}

func TestGuard_PruneLoopForgetsIdleIdentities(t *testing.T) {
	guard := NewGuard(1, 20*time.Millisecond)
	t.Cleanup(guard.Stop)

	guard.Allow(testIdentity())

	assert.Eventually(t, func() bool {
		guard.mu.Lock()
		defer guard.mu.Unlock()

		return len(guard.attempts) == 0
	}, time.Second, 10*time.Millisecond)
}
