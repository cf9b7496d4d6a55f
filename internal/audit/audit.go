// Package audit reports security-relevant admission events to a sink so
// abuse patterns (enumeration attempts, self-use, generation exhaustion)
// can be detected downstream.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Event names for admission outcomes.
const (
	EventInvalidCode         = "invite.invalid_code"
	EventSelfUse             = "invite.self_use"
	EventRateLimited         = "invite.rate_limited"
	EventGenerationExhausted = "invite.generation_exhausted"
	EventCodeGenerated       = "invite.generated"
	EventCodeRedeemed        = "invite.redeemed"
)

// Event is one security-relevant occurrence. CodeDigest carries a SHA-256
// digest of the guessed or affected code; the raw code value never reaches
// logs at elevated verbosity.
type Event struct {
	Time       time.Time `json:"time"`
	Event      string    `json:"event"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	CodeDigest string    `json:"code_digest,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
}

// Sink receives events. Implementations must not block the request path
// beyond their own delivery timeout; delivery failures are reported to the
// caller, who logs and proceeds.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// CodeDigest hashes a code value for audit records.
func CodeDigest(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// LogSink writes events as structured JSON log lines.
type LogSink struct {
	log *slog.Logger
}

// NewLogSink constructs a LogSink over the given logger.
func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Record(ctx context.Context, e Event) error {
	s.log.InfoContext(ctx, "audit event",
		slog.String("event", e.Event),
		slog.String("actor", e.Actor),
		slog.String("action", e.Action),
		slog.String("code_digest", e.CodeDigest),
		slog.String("request_id", e.RequestID),
		slog.Time("event_time", e.Time),
	)
	return nil
}

var _ Sink = (*LogSink)(nil)
