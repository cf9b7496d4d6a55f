package invitecode

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests and local development. It
// honors the same atomicity contract as the Postgres store: consumption is
// decided under a single lock, so concurrent consume attempts resolve to
// exactly one winner.
type MemoryStore struct {
	mu    sync.Mutex
	codes map[string]*InviteCode
	now   func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		codes: make(map[string]*InviteCode),
		now:   time.Now,
	}
}

// SetClock overrides the consumption timestamp source (useful for tests).
func (m *MemoryStore) SetClock(fn func() time.Time) {
	if fn != nil {
		m.now = fn
	}
}

func (m *MemoryStore) Create(ctx context.Context, code *InviteCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.codes[code.Code]; ok {
		return ErrCodeExists
	}
	cp := *code
	m.codes[code.Code] = &cp
	return nil
}

func (m *MemoryStore) Lookup(ctx context.Context, code string) (*InviteCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ic, ok := m.codes[code]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ic
	return &cp, nil
}

func (m *MemoryStore) ConsumeIfAvailable(ctx context.Context, code, consumerID string) (ConsumeOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ic, ok := m.codes[code]
	if !ok {
		return OutcomeAlreadyUsedOrNotFound, nil
	}
	if holder, _, consumed := ic.Consumption.Consumed(); consumed {
		// Idempotent re-check for the consumer that already holds the code.
		if holder == consumerID {
			return OutcomeConsumed, nil
		}
		return OutcomeAlreadyUsedOrNotFound, nil
	}
	if ic.CreatorID == consumerID {
		return OutcomeAlreadyUsedOrNotFound, nil
	}
	ic.Consumption = ConsumedBy(consumerID, m.now().UTC())
	return OutcomeConsumed, nil
}

func (m *MemoryStore) CountCreatedSince(ctx context.Context, creatorID string, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, ic := range m.codes {
		if ic.CreatorID == creatorID && !ic.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ListByCreator(ctx context.Context, creatorID string) ([]InviteCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []InviteCode
	for _, ic := range m.codes {
		if ic.CreatorID == creatorID {
			out = append(out, *ic)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
