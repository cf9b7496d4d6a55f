package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/naarscars/admission/internal/accounts"
)

// Create provisions a member account.
func (d *Database) CreateAccount(ctx context.Context, acct accounts.NewAccount) (accounts.Account, error) {
	a := accounts.Account{
		ID:           ulid.Make().String(),
		Email:        acct.Email,
		PasswordHash: acct.PasswordHash,
		FirstName:    acct.FirstName,
		LastName:     acct.LastName,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := d.db.ExecContext(ctx, `
		insert into accounts (id, email, password_hash, first_name, last_name, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.Email, a.PasswordHash, a.FirstName, a.LastName, a.CreatedAt)
	if isUniqueViolation(err, "accounts_email_key") {
		return accounts.Account{}, accounts.ErrEmailTaken
	}
	if err != nil {
		return accounts.Account{}, fmt.Errorf("inserting account: %w", err)
	}
	return a, nil
}

func (d *Database) GetAccount(ctx context.Context, id string) (accounts.Account, error) {
	return d.scanAccount(d.db.QueryRowContext(ctx, `
		select id, email, password_hash, first_name, last_name, created_at
		from accounts where id = $1
	`, id))
}

func (d *Database) GetAccountByEmail(ctx context.Context, email string) (accounts.Account, error) {
	return d.scanAccount(d.db.QueryRowContext(ctx, `
		select id, email, password_hash, first_name, last_name, created_at
		from accounts where email = $1
	`, email))
}

// DeleteAccount removes a provisional account during compensation.
func (d *Database) DeleteAccount(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `delete from accounts where id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	if affected == 0 {
		return accounts.ErrNotFound
	}
	return nil
}

func (d *Database) scanAccount(row *sql.Row) (accounts.Account, error) {
	var a accounts.Account
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.FirstName, &a.LastName, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return accounts.Account{}, accounts.ErrNotFound
	}
	if err != nil {
		return accounts.Account{}, fmt.Errorf("scanning account: %w", err)
	}
	return a, nil
}

// AccountDirectory adapts the Database to the accounts.Directory interface.
type AccountDirectory struct {
	*Database
}

func (d AccountDirectory) Create(ctx context.Context, acct accounts.NewAccount) (accounts.Account, error) {
	return d.CreateAccount(ctx, acct)
}

func (d AccountDirectory) Get(ctx context.Context, id string) (accounts.Account, error) {
	return d.GetAccount(ctx, id)
}

func (d AccountDirectory) GetByEmail(ctx context.Context, email string) (accounts.Account, error) {
	return d.GetAccountByEmail(ctx, email)
}

func (d AccountDirectory) Delete(ctx context.Context, id string) error {
	return d.DeleteAccount(ctx, id)
}

var _ accounts.Directory = AccountDirectory{}
