package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const bucketTTL = 5 * time.Minute

// Advisory enforces a minimum inter-action interval per key (client IP or
// device identity) with in-process token buckets. It exists to reduce
// chatter and give immediate feedback; it is trivially bypassable and must
// never be relied upon for correctness. The Limiter remains authoritative.
type Advisory struct {
	mu       sync.Mutex
	buckets  map[string]*advisoryBucket
	interval time.Duration
	burst    int
	lastGC   time.Time
}

type advisoryBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewAdvisory constructs an Advisory allowing one action per interval with
// the given burst.
func NewAdvisory(interval time.Duration, burst int) *Advisory {
	if burst < 1 {
		burst = 1
	}
	return &Advisory{
		buckets:  make(map[string]*advisoryBucket),
		interval: interval,
		burst:    burst,
		lastGC:   time.Now(),
	}
}

// Allow reports whether the keyed client may act now.
func (a *Advisory) Allow(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	if now.Sub(a.lastGC) > time.Minute {
		for k, b := range a.buckets {
			if now.Sub(b.seen) > bucketTTL {
				delete(a.buckets, k)
			}
		}
		a.lastGC = now
	}

	b, ok := a.buckets[key]
	if !ok {
		b = &advisoryBucket{lim: rate.NewLimiter(rate.Every(a.interval), a.burst)}
		a.buckets[key] = b
	}
	b.seen = now
	return b.lim.Allow()
}

// Interval reports the configured minimum inter-action interval.
func (a *Advisory) Interval() time.Duration {
	return a.interval
}
