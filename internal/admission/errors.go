package admission

import (
	"errors"
	"time"
)

// The closed set of redemption/generation error kinds. SelfUse and
// NotFoundOrUsed are distinct internally (the audit sink needs to tell them
// apart) but the API layer renders both with the same generic "invalid
// invite code" message so ownership and existence never leak.
var (
	// ErrBadFormat: the submitted code fails the format grammar. Locally
	// recoverable; the user retypes.
	ErrBadFormat = errors.New("admission: malformed invite code")

	// ErrNotFoundOrUsed: the union of "never existed" and "already
	// consumed", deliberately not distinguished. Terminal for that code.
	ErrNotFoundOrUsed = errors.New("admission: invite code not found or already used")

	// ErrSelfUse: a creator attempted to redeem their own code. Terminal for
	// that code; rendered externally exactly like ErrNotFoundOrUsed.
	ErrSelfUse = errors.New("admission: invite code belongs to the redeemer")

	// ErrRateLimited: the authoritative limiter denied the action before any
	// store access. Recoverable after the stated delay.
	ErrRateLimited = errors.New("admission: rate limited")

	// ErrEmailTaken: the signup email already belongs to a member.
	ErrEmailTaken = errors.New("admission: email already in use")
)

// RateLimitError carries the retry-after duration alongside ErrRateLimited
// semantics; match with errors.Is(err, ErrRateLimited) and extract the delay
// with errors.As.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return ErrRateLimited.Error()
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
