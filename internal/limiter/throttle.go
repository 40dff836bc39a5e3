package limiter

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/mealdex/recipe-crawler/config"
)

type domainState struct {
	nextFree   time.Time
	interval   time.Duration
	goodStreak int
}

// DomainThrottle serializes requests to protected hosts, keeping a minimum
// spacing that backs off on 403/429 and relaxes on sustained 200s.
type DomainThrottle struct {
	mu          sync.Mutex
	domains     map[string]*domainState
	protected   map[string]bool
	defaultIntv time.Duration
	minIntv     time.Duration
	maxIntv     time.Duration
	maxJitter   time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewDomainThrottle(cfg *config.ThrottleConfig) *DomainThrottle {
	protected := make(map[string]bool, len(cfg.Domains))
	for _, d := range cfg.Domains {
		protected[strings.ToLower(d)] = true
	}
	return &DomainThrottle{
		domains:     make(map[string]*domainState),
		protected:   protected,
		defaultIntv: cfg.DefaultInterval,
		minIntv:     cfg.MinInterval,
		maxIntv:     cfg.MaxInterval,
		maxJitter:   cfg.MaxJitter,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

// IsProtected reports whether the domain is on the configured throttle list.
// An empty list protects every domain.
func (t *DomainThrottle) IsProtected(domain string) bool {
	if len(t.protected) == 0 {
		return true
	}
	return t.protected[strings.ToLower(domain)]
}

// Wait reserves the next request slot for the domain and blocks until it
// arrives. The reservation advances under the lock, so concurrent callers
// for the same host are released one interval (plus jitter) apart instead of
// all sleeping past the same timestamp together.
func (t *DomainThrottle) Wait(ctx context.Context, domain string) error {
	domain = strings.ToLower(domain)

	t.mu.Lock()
	st := t.state(domain)
	now := t.now()
	start := st.nextFree
	if start.Before(now) {
		start = now
	}
	spacing := st.interval
	if t.maxJitter > 0 {
		spacing += time.Duration(rand.Int63n(int64(t.maxJitter)))
	}
	st.nextFree = start.Add(spacing)
	t.mu.Unlock()

	if wait := start.Sub(now); wait > 0 {
		return t.sleep(ctx, wait)
	}
	return nil
}

// RecordStatus feeds response codes back into the per-domain interval:
// 403/429 grow it toward the cap, three consecutive 2xx shrink it toward the floor.
func (t *DomainThrottle) RecordStatus(domain string, statusCode int) {
	domain = strings.ToLower(domain)

	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.state(domain)

	switch {
	case statusCode == 403 || statusCode == 429:
		st.goodStreak = 0
		st.interval = time.Duration(float64(st.interval) * 1.5)
		if st.interval > t.maxIntv {
			st.interval = t.maxIntv
		}
	case statusCode/100 == 2:
		st.goodStreak++
		if st.goodStreak >= 3 {
			st.goodStreak = 0
			st.interval = time.Duration(float64(st.interval) * 0.9)
			if st.interval < t.minIntv {
				st.interval = t.minIntv
			}
		}
	}
}

// Interval exposes the current spacing for a domain, for tests and status.
func (t *DomainThrottle) Interval(domain string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state(strings.ToLower(domain)).interval
}

// state returns the per-domain record, creating it lazily. Caller holds the lock.
func (t *DomainThrottle) state(domain string) *domainState {
	st, ok := t.domains[domain]
	if !ok {
		st = &domainState{interval: t.defaultIntv}
		t.domains[domain] = st
	}
	return st
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
