package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/naarscars/admission/internal/invitecode"
)

// Create inserts a fresh invite code. Global uniqueness across all codes
// ever issued, consumed ones included, is the table's primary key; a
// colliding draw surfaces invitecode.ErrCodeExists and the generator
// retries with a new draw.
func (d *Database) Create(ctx context.Context, ic *invitecode.InviteCode) error {
	_, err := d.db.ExecContext(ctx, `
		insert into invite_codes (code, id, creator_id, created_at)
		values ($1, $2, $3, $4)
	`, ic.Code, ic.ID, ic.CreatorID, ic.CreatedAt)
	if isUniqueViolation(err, "invite_codes_pkey") {
		return invitecode.ErrCodeExists
	}
	if err != nil {
		return fmt.Errorf("inserting invite code: %w", err)
	}
	return nil
}

// Lookup fetches a code by canonical value. Internal use only; user-facing
// responses must never disclose existence.
func (d *Database) Lookup(ctx context.Context, code string) (*invitecode.InviteCode, error) {
	var (
		ic         invitecode.InviteCode
		consumerID sql.NullString
		consumedAt sql.NullTime
	)
	err := d.db.QueryRowContext(ctx, `
		select code, id, creator_id, consumer_id, created_at, consumed_at
		from invite_codes
		where code = $1
	`, code).Scan(&ic.Code, &ic.ID, &ic.CreatorID, &consumerID, &ic.CreatedAt, &consumedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, invitecode.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up invite code: %w", err)
	}
	if consumerID.Valid {
		ic.Consumption = invitecode.ConsumedBy(consumerID.String, consumedAt.Time)
	}
	return &ic, nil
}

// ConsumeIfAvailable performs the one-time Available -> Consumed transition
// as a single conditional update: the row is claimed only if no consumer is
// set and the claimant is not the creator. Exactly-once semantics under
// concurrent redemption follow from the statement's atomicity; the fallback
// query only re-confirms a consumer that already holds the code, which can
// no longer change.
func (d *Database) ConsumeIfAvailable(ctx context.Context, code, consumerID string) (invitecode.ConsumeOutcome, error) {
	res, err := d.db.ExecContext(ctx, `
		update invite_codes
		set consumer_id = $2, consumed_at = now()
		where code = $1
		  and consumer_id is null
		  and creator_id <> $2
	`, code, consumerID)
	if err != nil {
		return 0, fmt.Errorf("consuming invite code: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("consuming invite code: %w", err)
	}
	if affected == 1 {
		return invitecode.OutcomeConsumed, nil
	}

	// Idempotent re-check: a retry by the consumer that already holds the
	// code is a no-op success, not a failure.
	var held bool
	err = d.db.QueryRowContext(ctx, `
		select exists (
			select 1 from invite_codes where code = $1 and consumer_id = $2
		)
	`, code, consumerID).Scan(&held)
	if err != nil {
		return 0, fmt.Errorf("re-checking invite code: %w", err)
	}
	if held {
		return invitecode.OutcomeConsumed, nil
	}
	return invitecode.OutcomeAlreadyUsedOrNotFound, nil
}

// CountCreatedSince counts a creator's codes created at or after the given
// instant, supporting the daily generation quota.
func (d *Database) CountCreatedSince(ctx context.Context, creatorID string, since time.Time) (int64, error) {
	var n int64
	err := d.db.QueryRowContext(ctx, `
		select count(*) from invite_codes
		where creator_id = $1 and created_at >= $2
	`, creatorID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting invite codes: %w", err)
	}
	return n, nil
}

// ListByCreator returns a creator's codes, newest first.
func (d *Database) ListByCreator(ctx context.Context, creatorID string) ([]invitecode.InviteCode, error) {
	rows, err := d.db.QueryContext(ctx, `
		select code, id, creator_id, consumer_id, created_at, consumed_at
		from invite_codes
		where creator_id = $1
		order by created_at desc
	`, creatorID)
	if err != nil {
		return nil, fmt.Errorf("listing invite codes: %w", err)
	}
	defer rows.Close()

	var out []invitecode.InviteCode
	for rows.Next() {
		var (
			ic         invitecode.InviteCode
			consumerID sql.NullString
			consumedAt sql.NullTime
		)
		if err := rows.Scan(&ic.Code, &ic.ID, &ic.CreatorID, &consumerID, &ic.CreatedAt, &consumedAt); err != nil {
			return nil, fmt.Errorf("scanning invite code: %w", err)
		}
		if consumerID.Valid {
			ic.Consumption = invitecode.ConsumedBy(consumerID.String, consumedAt.Time)
		}
		out = append(out, ic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing invite codes: %w", err)
	}
	return out, nil
}

// ListConsumedWithoutAccount returns consumed codes whose recorded consumer
// has no account row. Such orphans appear when a compensating account
// deletion ran after the code was already claimed; they are surfaced to the
// operator for manual follow-up because consumption is permanent.
func (d *Database) ListConsumedWithoutAccount(ctx context.Context) ([]invitecode.InviteCode, error) {
	rows, err := d.db.QueryContext(ctx, `
		select i.code, i.id, i.creator_id, i.consumer_id, i.created_at, i.consumed_at
		from invite_codes i
		left join accounts a on a.id = i.consumer_id
		where i.consumer_id is not null and a.id is null
		order by i.consumed_at
	`)
	if err != nil {
		return nil, fmt.Errorf("listing orphaned invite codes: %w", err)
	}
	defer rows.Close()

	var out []invitecode.InviteCode
	for rows.Next() {
		var (
			ic         invitecode.InviteCode
			consumerID sql.NullString
			consumedAt sql.NullTime
		)
		if err := rows.Scan(&ic.Code, &ic.ID, &ic.CreatorID, &consumerID, &ic.CreatedAt, &consumedAt); err != nil {
			return nil, fmt.Errorf("scanning invite code: %w", err)
		}
		if consumerID.Valid {
			ic.Consumption = invitecode.ConsumedBy(consumerID.String, consumedAt.Time)
		}
		out = append(out, ic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing orphaned invite codes: %w", err)
	}
	return out, nil
}

var _ invitecode.Store = (*Database)(nil)
