package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

// memCounters is an in-memory CounterStore with the same atomic
// post-increment contract as the Postgres implementation.
type memCounters struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newMemCounters() *memCounters {
	return &memCounters{counts: make(map[string]int64)}
}

func (m *memCounters) Increment(ctx context.Context, actor string, action Action, windowStart time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := actor + "|" + string(action) + "|" + windowStart.Format(time.RFC3339)
	m.counts[key]++
	return m.counts[key], nil
}

func TestLimiterGenerateDailyCap(t *testing.T) {
	counters := newMemCounters()
	lim := NewLimiter(counters)

	now := time.Date(2026, time.March, 5, 14, 30, 0, 0, time.UTC)
	lim.SetClock(func() time.Time { return now })

	for i := int64(1); i <= DefaultGeneratePolicy.Limit; i++ {
		dec, err := lim.Allow(context.Background(), "creator-1", DefaultGeneratePolicy)
		if err != nil {
			t.Fatalf("Allow #%d: %v", i, err)
		}
		if !dec.Allowed {
			t.Fatalf("Allow #%d denied, want allowed", i)
		}
		if want := DefaultGeneratePolicy.Limit - i; dec.Remaining != want {
			t.Fatalf("Allow #%d remaining = %d, want %d", i, dec.Remaining, want)
		}
	}

	dec, err := lim.Allow(context.Background(), "creator-1", DefaultGeneratePolicy)
	if err != nil {
		t.Fatalf("Allow over cap: %v", err)
	}
	if dec.Allowed {
		t.Fatal("6th generation in the same day allowed, want denied")
	}
	if want := 9*time.Hour + 30*time.Minute; dec.RetryAfter != want {
		t.Fatalf("RetryAfter = %v, want %v (until next UTC midnight)", dec.RetryAfter, want)
	}
}

func TestLimiterCalendarDayRollover(t *testing.T) {
	counters := newMemCounters()
	lim := NewLimiter(counters)

	now := time.Date(2026, time.March, 5, 23, 59, 0, 0, time.UTC)
	lim.SetClock(func() time.Time { return now })

	for i := int64(0); i < DefaultGeneratePolicy.Limit; i++ {
		if dec, _ := lim.Allow(context.Background(), "creator-1", DefaultGeneratePolicy); !dec.Allowed {
			t.Fatalf("warm-up Allow #%d denied", i)
		}
	}
	if dec, _ := lim.Allow(context.Background(), "creator-1", DefaultGeneratePolicy); dec.Allowed {
		t.Fatal("over-cap request allowed before rollover")
	}

	// Two minutes later a fresh calendar day opens a new window.
	now = now.Add(2 * time.Minute)
	dec, err := lim.Allow(context.Background(), "creator-1", DefaultGeneratePolicy)
	if err != nil {
		t.Fatalf("Allow after rollover: %v", err)
	}
	if !dec.Allowed {
		t.Fatal("request denied after window rollover, want allowed")
	}
}

func TestLimiterRedeemHourlyCap(t *testing.T) {
	counters := newMemCounters()
	lim := NewLimiter(counters)

	now := time.Date(2026, time.March, 5, 10, 15, 0, 0, time.UTC)
	lim.SetClock(func() time.Time { return now })

	for i := int64(0); i < DefaultRedeemPolicy.Limit; i++ {
		if dec, _ := lim.Allow(context.Background(), "device-9", DefaultRedeemPolicy); !dec.Allowed {
			t.Fatalf("Allow #%d denied", i)
		}
	}
	dec, _ := lim.Allow(context.Background(), "device-9", DefaultRedeemPolicy)
	if dec.Allowed {
		t.Fatal("redemption attempt over hourly cap allowed")
	}
	if want := 45 * time.Minute; dec.RetryAfter != want {
		t.Fatalf("RetryAfter = %v, want %v", dec.RetryAfter, want)
	}

	// A different actor is unaffected.
	if dec, _ := lim.Allow(context.Background(), "device-10", DefaultRedeemPolicy); !dec.Allowed {
		t.Fatal("distinct actor denied")
	}
}

func TestLimiterConcurrentIncrements(t *testing.T) {
	counters := newMemCounters()
	lim := NewLimiter(counters)

	const attempts = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int64
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dec, err := lim.Allow(context.Background(), "creator-1", DefaultGeneratePolicy)
			if err != nil {
				t.Errorf("Allow: %v", err)
				return
			}
			if dec.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != DefaultGeneratePolicy.Limit {
		t.Fatalf("%d of %d concurrent attempts allowed, want exactly %d",
			allowed, attempts, DefaultGeneratePolicy.Limit)
	}
}

func TestAdvisoryPacing(t *testing.T) {
	adv := NewAdvisory(10*time.Second, 1)

	if !adv.Allow("1.2.3.4") {
		t.Fatal("first action denied")
	}
	if adv.Allow("1.2.3.4") {
		t.Fatal("second immediate action allowed, want paced")
	}
	// Another key has its own bucket.
	if !adv.Allow("5.6.7.8") {
		t.Fatal("distinct key denied")
	}
}
