package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/d9705996/protestpro/internal/model"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ErrInvalidCredentials is returned by Authenticate for a wrong email or
// password, and for accounts that have not set a password yet.
var ErrInvalidCredentials = errors.New("email or password is incorrect")

// LocalProvider keeps accounts in the accounts table.
type LocalProvider struct {
	db *gorm.DB
}

// NewLocalProvider creates a LocalProvider.
func NewLocalProvider(db *gorm.DB) *LocalProvider {
	return &LocalProvider{db: db}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func toAccount(a *model.Account) *Account {
	return &Account{
		ID:             a.ID,
		Email:          a.Email,
		EmailConfirmed: a.EmailConfirmedAt != nil,
		CreatedAt:      a.CreatedAt,
	}
}

func (p *LocalProvider) CreateAccount(ctx context.Context, email string, _ map[string]any) (*Account, error) {
	a := &model.Account{Email: normalizeEmail(email)}
	if err := p.db.WithContext(ctx).Create(a).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return toAccount(a), nil
}

func (p *LocalProvider) ListAccounts(ctx context.Context, page, perPage int) ([]Account, error) {
	if page < 1 {
		page = 1
	}
	var rows []model.Account
	err := p.db.WithContext(ctx).
		Order("created_at, id").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	out := make([]Account, 0, len(rows))
	for i := range rows {
		out = append(out, *toAccount(&rows[i]))
	}
	return out, nil
}

func (p *LocalProvider) GetAccount(ctx context.Context, id string) (*Account, error) {
	var a model.Account
	if err := p.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return toAccount(&a), nil
}

// FindByEmail looks an account up by email, case-insensitively.
func (p *LocalProvider) FindByEmail(ctx context.Context, email string) (*Account, error) {
	var a model.Account
	if err := p.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return toAccount(&a), nil
}

// DeleteAccount removes the account and its refresh tokens.
func (p *LocalProvider) DeleteAccount(ctx context.Context, id string) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", id).Delete(&model.RefreshToken{}).Error; err != nil {
			return fmt.Errorf("delete refresh tokens: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&model.Account{})
		if res.Error != nil {
			return fmt.Errorf("delete account: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrAccountNotFound
		}
		return nil
	})
}

// SetPassword sets the account password and confirms its email; following
// an invite or recovery link proves ownership of the address.
func (p *LocalProvider) SetPassword(ctx context.Context, id, password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	res := p.db.WithContext(ctx).Model(&model.Account{}).Where("id = ?", id).Updates(map[string]any{
		"password_hash":      string(hash),
		"email_confirmed_at": gorm.Expr("COALESCE(email_confirmed_at, ?)", now),
	})
	if res.Error != nil {
		return fmt.Errorf("set password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Authenticate checks an email/password pair.
func (p *LocalProvider) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	var a model.Account
	if err := p.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	if a.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return toAccount(&a), nil
}
