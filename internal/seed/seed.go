// Package seed creates a default administrator on first boot when no
// profile has administrator standing.
package seed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/d9705996/protestpro/internal/identity"
	"github.com/d9705996/protestpro/internal/model"
	"gorm.io/gorm"
)

// AdminOptions configures the seed administrator.
type AdminOptions struct {
	Email        string
	SeedPassword string // if empty, a random password is generated
}

// Accounts is the local account store. identity.LocalProvider satisfies it.
type Accounts interface {
	CreateAccount(ctx context.Context, email string, metadata map[string]any) (*identity.Account, error)
	FindByEmail(ctx context.Context, email string) (*identity.Account, error)
	SetPassword(ctx context.Context, id, password string) error
}

// EnsureAdmin creates a seed administrator if no profile carries the
// administrator permission. It prints a generated password to stdout once.
// The function is idempotent: it is safe to call on every startup.
func EnsureAdmin(ctx context.Context, db *gorm.DB, accounts Accounts, opts AdminOptions, log *slog.Logger) error {
	var count int64
	if err := db.WithContext(ctx).Model(&model.Profile{}).
		Where("LOWER(TRIM(permissions)) IN ?", []string{"admin", "administrator"}).
		Count(&count).Error; err != nil {
		return fmt.Errorf("count administrators: %w", err)
	}
	if count > 0 {
		log.Info("seed admin already exists")
		return nil
	}
	if opts.Email == "" {
		return errors.New("seed admin email is required")
	}

	password := opts.SeedPassword
	if password == "" {
		var err error
		password, err = generatePassword()
		if err != nil {
			return fmt.Errorf("generate seed password: %w", err)
		}
		// Print the generated password to stdout exactly once.
		fmt.Printf("[protestpro] seed admin password: %s\n", password)
	}

	acct, err := accounts.FindByEmail(ctx, opts.Email)
	if errors.Is(err, identity.ErrAccountNotFound) {
		acct, err = accounts.CreateAccount(ctx, opts.Email, nil)
	}
	if err != nil {
		return fmt.Errorf("seed admin account: %w", err)
	}
	if err := accounts.SetPassword(ctx, acct.ID, password); err != nil {
		return fmt.Errorf("seed admin password: %w", err)
	}

	perm := "admin"
	var profile model.Profile
	err = db.WithContext(ctx).
		Where(model.Profile{UserID: acct.ID}).
		Attrs(model.Profile{Email: acct.Email, FirstName: "Seed", LastName: "Admin", IsAuthenticated: true}).
		Assign(model.Profile{Permissions: &perm}).
		FirstOrCreate(&profile).Error
	if err != nil {
		return fmt.Errorf("insert seed admin profile: %w", err)
	}

	log.Info("seed admin created", "email", acct.Email, "user_id", acct.ID)
	return nil
}

func generatePassword() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
