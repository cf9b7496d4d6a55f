package invitecode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	randomSymbols = 8

	// maxAttempts bounds collision retries. At 31^8 possible codes a
	// collision under correct randomness is negligible, so exhausting the
	// retries is an operational alarm, not a user-facing condition.
	maxAttempts = 5
)

// ErrGenerationExhausted signals repeated uniqueness collisions, implying
// either a randomness defect or an attack. Surfaced as a generic failure and
// reported to the audit sink.
var ErrGenerationExhausted = errors.New("invitecode: generation attempts exhausted")

// Generator produces fresh, collision-free invite codes for a creator.
type Generator struct {
	store Store
	rand  io.Reader
	now   func() time.Time
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithRand overrides the randomness source (useful for tests). Production
// code must keep the default crypto/rand reader: the code space exists to
// resist brute-force guessing, and weak randomness undermines it.
func WithRand(r io.Reader) GeneratorOption {
	return func(g *Generator) {
		if r != nil {
			g.rand = r
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) GeneratorOption {
	return func(g *Generator) {
		if fn != nil {
			g.now = fn
		}
	}
}

// NewGenerator constructs a Generator over the given store.
func NewGenerator(store Store, opts ...GeneratorOption) *Generator {
	g := &Generator{
		store: store,
		rand:  rand.Reader,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate draws a random code and persists it, retrying on uniqueness
// collisions up to maxAttempts before surfacing ErrGenerationExhausted.
// The returned code is in Available state.
func (g *Generator) Generate(ctx context.Context, creatorID string) (*InviteCode, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		code, err := g.draw()
		if err != nil {
			return nil, fmt.Errorf("drawing code: %w", err)
		}
		ic := &InviteCode{
			ID:        ulid.Make().String(),
			Code:      code,
			CreatorID: creatorID,
			CreatedAt: g.now().UTC(),
		}
		err = g.store.Create(ctx, ic)
		if errors.Is(err, ErrCodeExists) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("persisting code: %w", err)
		}
		return ic, nil
	}
	return nil, ErrGenerationExhausted
}

// draw samples randomSymbols symbols uniformly from Alphabet. 31 does not
// divide 256, so a plain modulo would favor the first symbols; bytes at or
// above the largest multiple of len(Alphabet) are rejected and redrawn.
func (g *Generator) draw() (string, error) {
	const limit = 256 - 256%len(Alphabet)

	out := make([]byte, 0, CodeLength)
	out = append(out, Prefix...)
	buf := make([]byte, randomSymbols)
	for len(out) < CodeLength {
		if _, err := io.ReadFull(g.rand, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == CodeLength {
				break
			}
		}
	}
	return string(out), nil
}
