// Package identity is the boundary to the identity provider that owns login
// accounts, plus the services built on it: provisioning an account for an
// email, dispatching invites, and reconciling accounts with profiles.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAccountExists is returned by CreateAccount when the email is taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountNotFound is returned for an unknown account id.
	ErrAccountNotFound = errors.New("account not found")
)

// Account is a login account held by the identity provider.
type Account struct {
	ID             string
	Email          string
	EmailConfirmed bool
	CreatedAt      time.Time
}

// Provider is the identity provider's admin surface.
type Provider interface {
	// CreateAccount creates an unconfirmed account for email.
	CreateAccount(ctx context.Context, email string, metadata map[string]any) (*Account, error)
	// ListAccounts returns one page of accounts. page is 1-based.
	ListAccounts(ctx context.Context, page, perPage int) ([]Account, error)
	GetAccount(ctx context.Context, id string) (*Account, error)
	DeleteAccount(ctx context.Context, id string) error
}
