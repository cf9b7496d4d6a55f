package invitecode

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCodeExists is returned by Create when the code collides with one
	// already issued. Generation retries on it.
	ErrCodeExists = errors.New("invitecode: code already exists")

	// ErrNotFound is returned by Lookup. It is internal only and must never
	// be used for user-facing existence disclosure.
	ErrNotFound = errors.New("invitecode: code not found")
)

// ConsumeOutcome is the result of an atomic consume attempt.
type ConsumeOutcome int

const (
	// OutcomeConsumed means this call won the race and the caller's account
	// is now the consumer.
	OutcomeConsumed ConsumeOutcome = iota

	// OutcomeAlreadyUsedOrNotFound means the code never existed or was
	// consumed by a concurrent call a moment earlier. The store deliberately
	// does not distinguish the two.
	OutcomeAlreadyUsedOrNotFound
)

// Store is the durable, concurrency-safe record of invite codes. It is the
// sole authority for consumption transitions. ConsumeIfAvailable must be a
// single conditional update at the storage layer; a read-then-write sequence
// reopens the double-redemption race.
type Store interface {
	// Create persists a fresh code in Available state, returning
	// ErrCodeExists if the code value is already taken. Uniqueness is
	// enforced by a storage-layer constraint, not an application-level
	// existence check.
	Create(ctx context.Context, code *InviteCode) error

	// Lookup fetches a code by canonical value. Internal use only.
	Lookup(ctx context.Context, code string) (*InviteCode, error)

	// ConsumeIfAvailable sets the consumer if and only if none is set yet.
	// Re-invoking for a consumer that already holds the code reports
	// OutcomeConsumed, so the caller may retry the consume step safely.
	ConsumeIfAvailable(ctx context.Context, code, consumerID string) (ConsumeOutcome, error)

	// CountCreatedSince counts codes a creator generated at or after the
	// given instant. Supports the daily generation quota.
	CountCreatedSince(ctx context.Context, creatorID string, since time.Time) (int64, error)

	// ListByCreator returns a creator's codes, newest first.
	ListByCreator(ctx context.Context, creatorID string) ([]InviteCode, error)
}
