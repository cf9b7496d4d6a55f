// Package ratelimit bounds the rate of invite generation and redemption
// attempts. The authoritative layer counts actions in fixed windows backed
// by durable counters; the advisory layer paces clients in-process and is
// explicitly not a security boundary.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Action names a throttled operation.
type Action string

const (
	ActionGenerate Action = "generate"
	ActionRedeem   Action = "redeem"
)

// Policy describes the limit for one action. When Calendar is set the window
// is a UTC calendar day; otherwise the window is a fixed bucket of Window
// duration starting at a truncated boundary.
type Policy struct {
	Action   Action
	Limit    int64
	Window   time.Duration
	Calendar bool
}

// Default policies. Generation uses a UTC calendar-day bucket; redemption
// attempts use hourly buckets keyed by actor or device identity.
var (
	DefaultGeneratePolicy = Policy{Action: ActionGenerate, Limit: 5, Window: 24 * time.Hour, Calendar: true}
	DefaultRedeemPolicy   = Policy{Action: ActionRedeem, Limit: 5, Window: time.Hour}
)

// windowStart maps an instant to its bucket boundary.
func (p Policy) windowStart(now time.Time) time.Time {
	now = now.UTC()
	if p.Calendar {
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	return now.Truncate(p.Window)
}

// Decision reports whether an action may proceed. RetryAfter is the duration
// until the current window rolls over, meaningful only when denied.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// CounterStore persists windowed counters keyed by (actor, action,
// windowStart). Increment must be a single atomic conditional increment
// returning the post-increment count: two concurrent requests from the same
// actor must never both observe the same pre-increment value.
type CounterStore interface {
	Increment(ctx context.Context, actor string, action Action, windowStart time.Time) (int64, error)
}

// Limiter is the authoritative, server-side layer. A denial here means the
// action must not touch the code store at all.
type Limiter struct {
	counters CounterStore
	now      func() time.Time
}

// NewLimiter constructs a Limiter over a counter store.
func NewLimiter(counters CounterStore) *Limiter {
	return &Limiter{counters: counters, now: time.Now}
}

// SetClock overrides the time source (useful for tests).
func (l *Limiter) SetClock(fn func() time.Time) {
	if fn != nil {
		l.now = fn
	}
}

// Allow atomically charges one action against the actor's current window and
// compares the post-increment count to the policy limit. Counters are
// created on first action in a window and reset logically at rollover.
func (l *Limiter) Allow(ctx context.Context, actor string, p Policy) (Decision, error) {
	now := l.now().UTC()
	start := p.windowStart(now)

	count, err := l.counters.Increment(ctx, actor, p.Action, start)
	if err != nil {
		return Decision{}, fmt.Errorf("incrementing %s counter: %w", p.Action, err)
	}

	if count > p.Limit {
		return Decision{
			Allowed:    false,
			RetryAfter: start.Add(p.Window).Sub(now),
		}, nil
	}
	return Decision{
		Allowed:   true,
		Remaining: p.Limit - count,
	}, nil
}
