package database

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/naarscars/admission/internal/accounts"
	"github.com/naarscars/admission/internal/invitecode"
	"github.com/naarscars/admission/internal/ratelimit"
)

func newMock(t *testing.T) (*Database, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestConsumeIfAvailableClaimsRow(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectExec(`update invite_codes`).
		WithArgs("NC7X9K2ABQ", "acct-b").
		WillReturnResult(sqlmock.NewResult(0, 1))

	outcome, err := d.ConsumeIfAvailable(context.Background(), "NC7X9K2ABQ", "acct-b")
	if err != nil {
		t.Fatalf("ConsumeIfAvailable: %v", err)
	}
	if outcome != invitecode.OutcomeConsumed {
		t.Fatalf("outcome = %v, want OutcomeConsumed", outcome)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestConsumeIfAvailableLostRace(t *testing.T) {
	d, mock := newMock(t)

	// The conditional update matches nothing when another consumer already
	// holds the row, and the re-check confirms the claimant is not that
	// consumer.
	mock.ExpectExec(`update invite_codes`).
		WithArgs("NC7X9K2ABQ", "acct-c").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`select exists`).
		WithArgs("NC7X9K2ABQ", "acct-c").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	outcome, err := d.ConsumeIfAvailable(context.Background(), "NC7X9K2ABQ", "acct-c")
	if err != nil {
		t.Fatalf("ConsumeIfAvailable: %v", err)
	}
	if outcome != invitecode.OutcomeAlreadyUsedOrNotFound {
		t.Fatalf("outcome = %v, want OutcomeAlreadyUsedOrNotFound", outcome)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestConsumeIfAvailableIdempotentRetry(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectExec(`update invite_codes`).
		WithArgs("NC7X9K2ABQ", "acct-b").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`select exists`).
		WithArgs("NC7X9K2ABQ", "acct-b").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	outcome, err := d.ConsumeIfAvailable(context.Background(), "NC7X9K2ABQ", "acct-b")
	if err != nil {
		t.Fatalf("ConsumeIfAvailable: %v", err)
	}
	if outcome != invitecode.OutcomeConsumed {
		t.Fatalf("outcome = %v, want OutcomeConsumed for the holder's retry", outcome)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreateInviteCollision(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectExec(`insert into invite_codes`).
		WithArgs("NC7X9K2ABQ", "id-1", "acct-a", sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "invite_codes_pkey"})

	err := d.Create(context.Background(), &invitecode.InviteCode{
		Code:      "NC7X9K2ABQ",
		ID:        "id-1",
		CreatorID: "acct-a",
		CreatedAt: time.Now().UTC(),
	})
	if !errors.Is(err, invitecode.ErrCodeExists) {
		t.Fatalf("err = %v, want ErrCodeExists", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLookupNotFound(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectQuery(`select code, id, creator_id`).
		WithArgs("NCZZZZZZZZ").
		WillReturnRows(sqlmock.NewRows([]string{"code", "id", "creator_id", "consumer_id", "created_at", "consumed_at"}))

	_, err := d.Lookup(context.Background(), "NCZZZZZZZZ")
	if !errors.Is(err, invitecode.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLookupConsumedCode(t *testing.T) {
	d, mock := newMock(t)

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	consumed := created.Add(2 * time.Hour)
	mock.ExpectQuery(`select code, id, creator_id`).
		WithArgs("NC7X9K2ABQ").
		WillReturnRows(sqlmock.NewRows([]string{"code", "id", "creator_id", "consumer_id", "created_at", "consumed_at"}).
			AddRow("NC7X9K2ABQ", "id-1", "acct-a", "acct-b", created, consumed))

	ic, err := d.Lookup(context.Background(), "NC7X9K2ABQ")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	consumerID, at, ok := ic.Consumption.Consumed()
	if !ok || consumerID != "acct-b" || !at.Equal(consumed) {
		t.Fatalf("Consumption = (%q, %v, %v), want (acct-b, %v, true)", consumerID, at, ok, consumed)
	}
}

func TestIncrementReturnsPostIncrementCount(t *testing.T) {
	d, mock := newMock(t)

	window := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`insert into rate_limit_counters`).
		WithArgs("acct-a", "generate", window).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := d.Increment(context.Background(), "acct-a", ratelimit.ActionGenerate, window)
	if err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreateAccountEmailConflict(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectExec(`insert into accounts`).
		WithArgs(sqlmock.AnyArg(), "b@example.com", "hash", "Bee", "Member", sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "accounts_email_key"})

	_, err := d.CreateAccount(context.Background(), accounts.NewAccount{
		Email:        "b@example.com",
		PasswordHash: "hash",
		FirstName:    "Bee",
		LastName:     "Member",
	})
	if !errors.Is(err, accounts.ErrEmailTaken) {
		t.Fatalf("err = %v, want ErrEmailTaken", err)
	}
}

func TestDeleteAccountMissing(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectExec(`delete from accounts`).
		WithArgs("nope").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := d.DeleteAccount(context.Background(), "nope"); !errors.Is(err, accounts.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSchemaKeepsOrphanedClaimsRepresentable(t *testing.T) {
	// A consumed code must outlive its consumer account, so consumer_id
	// cannot reference accounts(id); otherwise ListConsumedWithoutAccount
	// could never match and the compensating account delete would be
	// rejected by the constraint.
	for _, line := range strings.Split(schema, "\n") {
		if strings.Contains(line, "consumer_id") && strings.Contains(line, "references") {
			t.Fatalf("consumer_id carries a foreign key: %s", strings.TrimSpace(line))
		}
	}
}

func TestListConsumedWithoutAccount(t *testing.T) {
	d, mock := newMock(t)

	consumedAt := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	createdAt := consumedAt.Add(-48 * time.Hour)
	mock.ExpectQuery(`left join accounts`).
		WillReturnRows(sqlmock.NewRows(
			[]string{"code", "id", "creator_id", "consumer_id", "created_at", "consumed_at"},
		).AddRow("NC7X9K2ABQ", "inv-1", "acct-a", "acct-gone", createdAt, consumedAt))

	orphans, err := d.ListConsumedWithoutAccount(context.Background())
	if err != nil {
		t.Fatalf("ListConsumedWithoutAccount: %v", err)
	}
	if len(orphans) != 1 {
		t.Fatalf("len(orphans) = %d, want 1", len(orphans))
	}
	consumer, at, ok := orphans[0].Consumption.Consumed()
	if !ok || consumer != "acct-gone" || !at.Equal(consumedAt) {
		t.Fatalf("orphan consumption = (%q, %v, %v)", consumer, at, ok)
	}
}

func TestCountCreatedSince(t *testing.T) {
	d, mock := newMock(t)

	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`select count`).
		WithArgs("acct-a", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	n, err := d.CountCreatedSince(context.Background(), "acct-a", since)
	if err != nil {
		t.Fatalf("CountCreatedSince: %v", err)
	}
	if n != 5 {
		t.Fatalf("n = %d, want 5", n)
	}
}
