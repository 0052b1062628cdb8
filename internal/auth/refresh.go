package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/d9705996/protestpro/internal/model"
	"gorm.io/gorm"
)

// ErrInvalidRefreshToken is returned for unknown, revoked or expired tokens.
var ErrInvalidRefreshToken = errors.New("refresh token is invalid or expired")

// RefreshStore manages refresh token persistence via GORM.
type RefreshStore struct {
	db *gorm.DB
}

// NewRefreshStore creates a RefreshStore backed by the given GORM DB.
func NewRefreshStore(db *gorm.DB) *RefreshStore {
	return &RefreshStore{db: db}
}

// IssueRefreshToken generates a secure random token, stores its SHA-256 hash,
// and returns the plaintext token to the caller (stored nowhere).
func (s *RefreshStore) IssueRefreshToken(ctx context.Context, accountID string, ttl time.Duration) (string, error) {
	raw, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	rt := &model.RefreshToken{
		AccountID: accountID,
		TokenHash: hashToken(raw),
		ExpiresAt: time.Now().Add(ttl),
	}
	if err := s.db.WithContext(ctx).Create(rt).Error; err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}
	return raw, nil
}

// RotateRefreshToken validates the given token, revokes it, and issues a new
// one valid for ttl. Returns the new refresh token and the account ID.
func (s *RefreshStore) RotateRefreshToken(ctx context.Context, rawToken string, ttl time.Duration) (token string, accountID string, err error) {
	db := s.db.WithContext(ctx)

	var rt model.RefreshToken
	if err := db.Where("token_hash = ?", hashToken(rawToken)).First(&rt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", ErrInvalidRefreshToken
		}
		return "", "", fmt.Errorf("find refresh token: %w", err)
	}
	if rt.RevokedAt != nil || time.Now().After(rt.ExpiresAt) {
		return "", "", ErrInvalidRefreshToken
	}

	// Revoke only if still active so a concurrent rotation of the same
	// token cannot succeed twice.
	res := db.Model(&model.RefreshToken{}).
		Where("id = ? AND revoked_at IS NULL", rt.ID).
		Update("revoked_at", time.Now())
	if res.Error != nil {
		return "", "", fmt.Errorf("revoke old refresh token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return "", "", ErrInvalidRefreshToken
	}

	newRaw, err := s.IssueRefreshToken(ctx, rt.AccountID, ttl)
	if err != nil {
		return "", "", err
	}
	return newRaw, rt.AccountID, nil
}

// RevokeRefreshToken marks the given token as revoked.
func (s *RefreshStore) RevokeRefreshToken(ctx context.Context, rawToken string) error {
	return s.db.WithContext(ctx).Model(&model.RefreshToken{}).
		Where("token_hash = ?", hashToken(rawToken)).
		Update("revoked_at", time.Now()).Error
}

// RevokeAll revokes every active token of an account.
func (s *RefreshStore) RevokeAll(ctx context.Context, accountID string) error {
	return s.db.WithContext(ctx).Model(&model.RefreshToken{}).
		Where("account_id = ? AND revoked_at IS NULL", accountID).
		Update("revoked_at", time.Now()).Error
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
