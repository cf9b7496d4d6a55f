// Package accounts defines the Account Directory contract: the external
// collaborator that creates and looks up member accounts. The admission
// controller consumes this interface; persistence lives elsewhere.
package accounts

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("accounts: account not found")
	ErrEmailTaken = errors.New("accounts: email already in use")
)

// Account is a member of the community.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	CreatedAt    time.Time
}

// NewAccount carries the fields needed to provision a member.
type NewAccount struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
}

// Directory creates, looks up, and deletes member accounts. Delete exists to
// support compensating removal of a provisional account when code
// consumption fails after provisioning.
type Directory interface {
	Create(ctx context.Context, acct NewAccount) (Account, error)
	Get(ctx context.Context, id string) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)
	Delete(ctx context.Context, id string) error
}
