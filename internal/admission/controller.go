// Package admission orchestrates the invite redemption/signup sequence as an
// effectively-atomic unit, combining format validation, rate limiting,
// account provisioning, and atomic code consumption into one outcome.
package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/naarscars/admission/internal/accounts"
	"github.com/naarscars/admission/internal/audit"
	"github.com/naarscars/admission/internal/invitecode"
	"github.com/naarscars/admission/internal/ratelimit"
)

// Controller owns neither codes nor counters; it coordinates the code store,
// the rate limiter, and the external account directory. All collaborators
// are injected so tests can substitute in-memory fakes without process-wide
// state.
type Controller struct {
	codes     invitecode.Store
	generator *invitecode.Generator
	limiter   *ratelimit.Limiter
	directory accounts.Directory
	sink      audit.Sink
	log       *slog.Logger

	generatePolicy ratelimit.Policy
	redeemPolicy   ratelimit.Policy

	now func() time.Time
}

// Config wires a Controller.
type Config struct {
	Codes     invitecode.Store
	Generator *invitecode.Generator
	Limiter   *ratelimit.Limiter
	Directory accounts.Directory
	Sink      audit.Sink
	Log       *slog.Logger

	// Optional policy overrides; defaults apply when zero.
	GeneratePolicy ratelimit.Policy
	RedeemPolicy   ratelimit.Policy
}

// NewController constructs a Controller.
func NewController(cfg Config) *Controller {
	c := &Controller{
		codes:          cfg.Codes,
		generator:      cfg.Generator,
		limiter:        cfg.Limiter,
		directory:      cfg.Directory,
		sink:           cfg.Sink,
		log:            cfg.Log,
		generatePolicy: cfg.GeneratePolicy,
		redeemPolicy:   cfg.RedeemPolicy,
		now:            time.Now,
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.generatePolicy.Limit == 0 {
		c.generatePolicy = ratelimit.DefaultGeneratePolicy
	}
	if c.redeemPolicy.Limit == 0 {
		c.redeemPolicy = ratelimit.DefaultRedeemPolicy
	}
	return c
}

// SetClock overrides the time source (useful for tests).
func (c *Controller) SetClock(fn func() time.Time) {
	if fn != nil {
		c.now = fn
	}
}

// RedeemRequest is a signup attempt with an invite code.
type RedeemRequest struct {
	// Code is the raw user-submitted invite code, not yet normalized.
	Code string

	// Actor keys the redemption rate limit: a device identity when the
	// client supplies one, otherwise the client IP.
	Actor string

	// ActorAccountID is the authenticated account attempting redemption, if
	// a session is present. Members normally have no reason to redeem, so
	// this mostly serves the self-use check.
	ActorAccountID string

	// RequestID correlates audit events with request logs.
	RequestID string

	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
}

// Redeem runs the full admission sequence: normalize -> rate limit ->
// self-use check -> provision account -> consume code. The code is consumed
// only after the new account is durably created; if consumption then fails,
// the provisional account is deleted and a redemption failure surfaced.
func (c *Controller) Redeem(ctx context.Context, req RedeemRequest) (accounts.Account, error) {
	code, err := invitecode.Normalize(req.Code)
	if err != nil {
		return accounts.Account{}, fmt.Errorf("%w: %w", ErrBadFormat, err)
	}

	// Authoritative rate limit. A denial must not touch the code store.
	dec, err := c.limiter.Allow(ctx, req.Actor, c.redeemPolicy)
	if err != nil {
		return accounts.Account{}, fmt.Errorf("redeem rate limit: %w", err)
	}
	if !dec.Allowed {
		c.record(ctx, audit.Event{
			Time:       c.now().UTC(),
			Event:      audit.EventRateLimited,
			Actor:      req.Actor,
			Action:     string(ratelimit.ActionRedeem),
			CodeDigest: audit.CodeDigest(code),
			RequestID:  req.RequestID,
		})
		return accounts.Account{}, &RateLimitError{RetryAfter: dec.RetryAfter}
	}

	ic, err := c.codes.Lookup(ctx, code)
	if errors.Is(err, invitecode.ErrNotFound) {
		c.auditInvalidCode(ctx, req, code)
		return accounts.Account{}, ErrNotFoundOrUsed
	}
	if err != nil {
		return accounts.Account{}, fmt.Errorf("looking up code: %w", err)
	}

	if c.isSelfUse(ctx, ic, req) {
		c.record(ctx, audit.Event{
			Time:       c.now().UTC(),
			Event:      audit.EventSelfUse,
			Actor:      req.Actor,
			Action:     string(ratelimit.ActionRedeem),
			CodeDigest: audit.CodeDigest(code),
			RequestID:  req.RequestID,
		})
		return accounts.Account{}, ErrSelfUse
	}

	if ic.Consumption.IsConsumed() {
		// Cheap pre-check; the atomic consume below still decides races.
		c.auditInvalidCode(ctx, req, code)
		return accounts.Account{}, ErrNotFoundOrUsed
	}

	// Provision the account before consuming the code, so a consumed code
	// always references a durable account.
	acct, err := c.directory.Create(ctx, accounts.NewAccount{
		Email:        normalizeEmail(req.Email),
		PasswordHash: req.PasswordHash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
	})
	if errors.Is(err, accounts.ErrEmailTaken) {
		return accounts.Account{}, ErrEmailTaken
	}
	if err != nil {
		return accounts.Account{}, fmt.Errorf("provisioning account: %w", err)
	}

	outcome, err := c.codes.ConsumeIfAvailable(ctx, code, acct.ID)
	if err != nil {
		c.compensate(ctx, acct.ID)
		return accounts.Account{}, fmt.Errorf("consuming code: %w", err)
	}
	if outcome != invitecode.OutcomeConsumed {
		// Lost the race to a concurrent redemption. Remove the provisional
		// account and report the uniform terminal outcome.
		c.compensate(ctx, acct.ID)
		c.auditInvalidCode(ctx, req, code)
		return accounts.Account{}, ErrNotFoundOrUsed
	}

	c.record(ctx, audit.Event{
		Time:       c.now().UTC(),
		Event:      audit.EventCodeRedeemed,
		Actor:      acct.ID,
		Action:     string(ratelimit.ActionRedeem),
		CodeDigest: audit.CodeDigest(code),
		RequestID:  req.RequestID,
	})
	return acct, nil
}

// Generate issues a fresh invite code for an authenticated creator, charging
// the daily generation quota first.
func (c *Controller) Generate(ctx context.Context, creatorID, requestID string) (*invitecode.InviteCode, error) {
	dec, err := c.limiter.Allow(ctx, creatorID, c.generatePolicy)
	if err != nil {
		return nil, fmt.Errorf("generate rate limit: %w", err)
	}
	if !dec.Allowed {
		c.record(ctx, audit.Event{
			Time:      c.now().UTC(),
			Event:     audit.EventRateLimited,
			Actor:     creatorID,
			Action:    string(ratelimit.ActionGenerate),
			RequestID: requestID,
		})
		return nil, &RateLimitError{RetryAfter: dec.RetryAfter}
	}

	ic, err := c.generator.Generate(ctx, creatorID)
	if errors.Is(err, invitecode.ErrGenerationExhausted) {
		c.record(ctx, audit.Event{
			Time:      c.now().UTC(),
			Event:     audit.EventGenerationExhausted,
			Actor:     creatorID,
			Action:    string(ratelimit.ActionGenerate),
			RequestID: requestID,
		})
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	c.record(ctx, audit.Event{
		Time:       c.now().UTC(),
		Event:      audit.EventCodeGenerated,
		Actor:      creatorID,
		Action:     string(ratelimit.ActionGenerate),
		CodeDigest: audit.CodeDigest(ic.Code),
		RequestID:  requestID,
	})
	return ic, nil
}

// RemainingToday reports how many codes the creator may still generate in
// the current UTC calendar day, derived from the store's created-since count.
func (c *Controller) RemainingToday(ctx context.Context, creatorID string) (int64, error) {
	now := c.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	created, err := c.codes.CountCreatedSince(ctx, creatorID, midnight)
	if err != nil {
		return 0, fmt.Errorf("counting created codes: %w", err)
	}
	remaining := c.generatePolicy.Limit - created
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// ListByCreator returns the creator's codes, newest first.
func (c *Controller) ListByCreator(ctx context.Context, creatorID string) ([]invitecode.InviteCode, error) {
	codes, err := c.codes.ListByCreator(ctx, creatorID)
	if err != nil {
		return nil, fmt.Errorf("listing codes: %w", err)
	}
	return codes, nil
}

// isSelfUse reports whether the redemption attempt comes from the code's own
// creator, matched by authenticated account or by signup email.
func (c *Controller) isSelfUse(ctx context.Context, ic *invitecode.InviteCode, req RedeemRequest) bool {
	if req.ActorAccountID != "" && req.ActorAccountID == ic.CreatorID {
		return true
	}
	creator, err := c.directory.Get(ctx, ic.CreatorID)
	if err != nil {
		return false
	}
	return normalizeEmail(creator.Email) == normalizeEmail(req.Email)
}

func (c *Controller) auditInvalidCode(ctx context.Context, req RedeemRequest, code string) {
	c.record(ctx, audit.Event{
		Time:       c.now().UTC(),
		Event:      audit.EventInvalidCode,
		Actor:      req.Actor,
		Action:     string(ratelimit.ActionRedeem),
		CodeDigest: audit.CodeDigest(code),
		RequestID:  req.RequestID,
	})
}

// compensate deletes a provisional account after a failed consume.
func (c *Controller) compensate(ctx context.Context, accountID string) {
	if err := c.directory.Delete(ctx, accountID); err != nil {
		c.log.ErrorContext(ctx, "compensating account deletion failed",
			slog.String("account_id", accountID), slog.Any("error", err))
	}
}

func (c *Controller) record(ctx context.Context, e audit.Event) {
	if c.sink == nil {
		return
	}
	if err := c.sink.Record(ctx, e); err != nil {
		c.log.ErrorContext(ctx, "audit delivery failed",
			slog.String("event", e.Event), slog.Any("error", err))
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
