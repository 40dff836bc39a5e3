package limiter

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/mealdex/recipe-crawler/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestThrottle(domains ...string) (*DomainThrottle, *fakeClock, *[]time.Duration) {
	th := NewDomainThrottle(&config.ThrottleConfig{
		DefaultInterval: 8 * time.Second,
		MinInterval:     5 * time.Second,
		MaxInterval:     30 * time.Second,
		MaxJitter:       0, // deterministic in tests
		Domains:         domains,
	})
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	var slept []time.Duration
	th.now = clock.Now
	th.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		clock.Advance(d)
		return nil
	}
	return th, clock, &slept
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestIsProtected(t *testing.T) {
	th, _, _ := newTestThrottle("allrecipes.com")
	assert.True(t, th.IsProtected("allrecipes.com"))
	assert.True(t, th.IsProtected("AllRecipes.com"))
	assert.False(t, th.IsProtected("example.com"))
}

func TestEmptyListProtectsEveryDomain(t *testing.T) {
	th, _, _ := newTestThrottle()
	assert.True(t, th.IsProtected("whatever.example"))
}

func TestWaitEnforcesSpacing(t *testing.T) {
	th, clock, slept := newTestThrottle()
	ctx := context.Background()

	require.NoError(t, th.Wait(ctx, "example.com"))
	assert.Empty(t, *slept, "first request should not wait")

	clock.Advance(3 * time.Second)
	require.NoError(t, th.Wait(ctx, "example.com"))
	require.Len(t, *slept, 1)
	assert.Equal(t, 5*time.Second, (*slept)[0])
}

func TestWaitSkipsWhenIntervalElapsed(t *testing.T) {
	th, clock, slept := newTestThrottle()
	ctx := context.Background()

	require.NoError(t, th.Wait(ctx, "example.com"))
	clock.Advance(10 * time.Second)
	require.NoError(t, th.Wait(ctx, "example.com"))
	assert.Empty(t, *slept)
}

func TestWaitIsPerDomain(t *testing.T) {
	th, _, slept := newTestThrottle()
	ctx := context.Background()

	require.NoError(t, th.Wait(ctx, "a.example"))
	require.NoError(t, th.Wait(ctx, "b.example"))
	assert.Empty(t, *slept, "different domains must not block each other")
}

func TestConcurrentWaitersAreSpacedApart(t *testing.T) {
	th, _, _ := newTestThrottle()
	var mu sync.Mutex
	var waits []time.Duration
	// clock stays frozen: the recorded waits are exactly the reserved offsets
	th.sleep = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		waits = append(waits, d)
		mu.Unlock()
		return nil
	}
	ctx := context.Background()
	require.NoError(t, th.Wait(ctx, "example.com"))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, th.Wait(ctx, "example.com"))
		}()
	}
	wg.Wait()

	sort.Slice(waits, func(i, j int) bool { return waits[i] < waits[j] })
	assert.Equal(t, []time.Duration{
		8 * time.Second, 16 * time.Second, 24 * time.Second, 32 * time.Second,
	}, waits, "each caller must be released a full interval after the previous one")
}

func TestQueuedWaitersAdvanceTheSlot(t *testing.T) {
	th, _, slept := newTestThrottle()
	ctx := context.Background()

	require.NoError(t, th.Wait(ctx, "example.com"))
	// fake sleep advances the clock, so every call lands one interval later
	require.NoError(t, th.Wait(ctx, "example.com"))
	require.NoError(t, th.Wait(ctx, "example.com"))

	assert.Equal(t, []time.Duration{8 * time.Second, 8 * time.Second}, *slept)
}

func TestWaitHonorsContext(t *testing.T) {
	th, _, _ := newTestThrottle()
	th.sleep = sleepCtx
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, th.Wait(ctx, "example.com"))
	cancel()
	err := th.Wait(ctx, "example.com")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBlockedResponsesGrowInterval(t *testing.T) {
	th, _, _ := newTestThrottle()

	th.RecordStatus("example.com", 429)
	assert.Equal(t, 12*time.Second, th.Interval("example.com"))

	th.RecordStatus("example.com", 403)
	assert.Equal(t, 18*time.Second, th.Interval("example.com"))
}

func TestIntervalNeverExceedsCap(t *testing.T) {
	th, _, _ := newTestThrottle()
	for i := 0; i < 10; i++ {
		th.RecordStatus("example.com", 429)
	}
	assert.Equal(t, 30*time.Second, th.Interval("example.com"))
}

func TestSuccessStreakShrinksInterval(t *testing.T) {
	th, _, _ := newTestThrottle()

	th.RecordStatus("example.com", 200)
	th.RecordStatus("example.com", 200)
	assert.Equal(t, 8*time.Second, th.Interval("example.com"),
		"two successes are not enough")

	th.RecordStatus("example.com", 200)
	assert.Equal(t, time.Duration(float64(8*time.Second)*0.9), th.Interval("example.com"))
}

func TestIntervalNeverDropsBelowFloor(t *testing.T) {
	th, _, _ := newTestThrottle()
	for i := 0; i < 60; i++ {
		th.RecordStatus("example.com", 200)
	}
	assert.Equal(t, 5*time.Second, th.Interval("example.com"))
}

func TestBlockedResetsGoodStreak(t *testing.T) {
	th, _, _ := newTestThrottle()

	th.RecordStatus("example.com", 200)
	th.RecordStatus("example.com", 200)
	th.RecordStatus("example.com", 429)
	th.RecordStatus("example.com", 200)
	th.RecordStatus("example.com", 200)

	// streak restarted after the 429, so no shrink happened yet
	assert.Equal(t, 12*time.Second, th.Interval("example.com"))
}
