package invoker

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// hostLimiter throttles outbound calls per target host using token buckets.
// Disabled by default; armed only when TargetRatePerMinute is configured.
type hostLimiter struct {
	limiters sync.Map // host → *limiterEntry
	r        rate.Limit
	burst    int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newHostLimiter(rpm, burst int) *hostLimiter {
	if burst <= 0 {
		burst = 5
	}
	hl := &hostLimiter{r: rate.Limit(float64(rpm) / 60.0), burst: burst}
	go hl.cleanupLoop()
	return hl
}

// Wait blocks until a token is available for the host or ctx is done.
func (hl *hostLimiter) Wait(ctx context.Context, host string) error {
	entry := hl.getOrCreate(host)
	entry.lastSeen = time.Now()
	return entry.limiter.Wait(ctx)
}

func (hl *hostLimiter) getOrCreate(host string) *limiterEntry {
	if v, ok := hl.limiters.Load(host); ok {
		return v.(*limiterEntry)
	}
	entry := &limiterEntry{
		limiter:  rate.NewLimiter(hl.r, hl.burst),
		lastSeen: time.Now(),
	}
	actual, _ := hl.limiters.LoadOrStore(host, entry)
	return actual.(*limiterEntry)
}

// cleanupLoop drops limiters for hosts idle longer than 10 minutes.
func (hl *hostLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-10 * time.Minute)
		hl.limiters.Range(func(key, value any) bool {
			if value.(*limiterEntry).lastSeen.Before(cutoff) {
				hl.limiters.Delete(key)
			}
			return true
		})
	}
}
