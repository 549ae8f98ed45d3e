package signal

import (
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Second)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow(1) || !rl.Allow(1) {
		t.Fatal("first two attempts should pass")
	}
	if rl.Allow(1) {
		t.Fatal("third attempt inside the window should be blocked")
	}
	if !rl.Allow(2) {
		t.Fatal("limits are per user")
	}

	now = now.Add(1100 * time.Millisecond)
	if !rl.Allow(1) {
		t.Fatal("attempt after the window should pass")
	}

	now = now.Add(2 * time.Second)
	rl.Prune()
	rl.mu.Lock()
	left := len(rl.history)
	rl.mu.Unlock()
	if left != 0 {
		t.Fatalf("%d idle users kept after Prune", left)
	}
}
