// Package limiter holds the shared pacing state of the crawler: the adaptive
// inter-batch delay and the per-domain throttle. One instance of each is
// constructed in main and passed by handle into the orchestrator.
package limiter

import (
	"sync"
	"time"

	"github.com/mealdex/recipe-crawler/config"
)

// AdaptiveRateLimiter derives the inter-batch delay from a rolling
// success/failure window. Counters are halved once their sum crosses the
// ceiling so the limiter tracks recent behaviour, not all-time totals.
type AdaptiveRateLimiter struct {
	mu           sync.Mutex
	successCount int
	failureCount int
	baseDelay    time.Duration
	minDelay     time.Duration
	maxDelay     time.Duration
	resetCeiling int
}

func NewAdaptiveRateLimiter(cfg *config.RateLimiterConf) *AdaptiveRateLimiter {
	return &AdaptiveRateLimiter{
		baseDelay:    cfg.BaseDelay,
		minDelay:     cfg.MinDelay,
		maxDelay:     cfg.MaxDelay,
		resetCeiling: cfg.ResetCeiling,
	}
}

func (l *AdaptiveRateLimiter) RecordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.successCount++
	l.maybeReset()
}

func (l *AdaptiveRateLimiter) RecordFailure() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failureCount++
	l.maybeReset()
}

// Delay returns the inter-batch delay: shrunk when the success ratio is above
// 0.8, grown when it drops below 0.5, the base delay otherwise.
func (l *AdaptiveRateLimiter) Delay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := l.successCount + l.failureCount
	if total == 0 {
		return l.baseDelay
	}
	ratio := float64(l.successCount) / float64(total)
	switch {
	case ratio > 0.8:
		d := time.Duration(float64(l.baseDelay) * 0.7)
		if d < l.minDelay {
			d = l.minDelay
		}
		return d
	case ratio < 0.5:
		d := time.Duration(float64(l.baseDelay) * 1.5)
		if d > l.maxDelay {
			d = l.maxDelay
		}
		return d
	default:
		return l.baseDelay
	}
}

// Counts returns the current rolling window, mainly for status reporting.
func (l *AdaptiveRateLimiter) Counts() (successes, failures int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.successCount, l.failureCount
}

// maybeReset halves both counters once their sum crosses the ceiling.
// Caller holds the lock.
func (l *AdaptiveRateLimiter) maybeReset() {
	if l.successCount+l.failureCount > l.resetCeiling {
		l.successCount /= 2
		l.failureCount /= 2
	}
}
