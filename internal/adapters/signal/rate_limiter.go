package signal

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window limiter keyed by an arbitrary string.
type RateLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
	calls    int
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	fresh := prune(rl.history[key], windowStart)
	if len(fresh) >= rl.limit {
		rl.history[key] = fresh
		return false
	}
	rl.history[key] = append(fresh, now)

	rl.calls++
	if rl.calls%1024 == 0 {
		rl.sweep(windowStart)
	}
	return true
}

// sweep drops idle keys so the map does not grow with every user ever seen.
func (rl *RateLimiter) sweep(windowStart time.Time) {
	for k, attempts := range rl.history {
		if len(prune(attempts, windowStart)) == 0 {
			delete(rl.history, k)
		}
	}
}

func prune(attempts []time.Time, windowStart time.Time) []time.Time {
	i := 0
	for i < len(attempts) && !attempts[i].After(windowStart) {
		i++
	}
	return attempts[i:]
}
