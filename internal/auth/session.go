package auth

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Session is an access/refresh token pair.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// Sessions issues and rotates sessions for local accounts.
type Sessions struct {
	refresh    *RefreshStore
	secret     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewSessions creates a Sessions issuer.
func NewSessions(db *gorm.DB, secret string, accessTTL, refreshTTL time.Duration) *Sessions {
	return &Sessions{
		refresh:    NewRefreshStore(db),
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Refresh exposes the underlying refresh token store.
func (s *Sessions) Refresh() *RefreshStore { return s.refresh }

// Issue starts a new session for the account.
func (s *Sessions) Issue(ctx context.Context, accountID, email string) (*Session, error) {
	access, err := IssueAccessToken(accountID, email, s.secret, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.refresh.IssueRefreshToken(ctx, accountID, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &Session{AccessToken: access, RefreshToken: refresh, ExpiresIn: int(s.accessTTL.Seconds())}, nil
}

// Rotate exchanges a refresh token for a new session. email resolves the
// account's current address.
func (s *Sessions) Rotate(ctx context.Context, refreshToken string, email func(ctx context.Context, accountID string) (string, error)) (*Session, string, error) {
	newRefresh, accountID, err := s.refresh.RotateRefreshToken(ctx, refreshToken, s.refreshTTL)
	if err != nil {
		return nil, "", err
	}
	addr, err := email(ctx, accountID)
	if err != nil {
		return nil, "", fmt.Errorf("resolve account: %w", err)
	}
	access, err := IssueAccessToken(accountID, addr, s.secret, s.accessTTL)
	if err != nil {
		return nil, "", fmt.Errorf("issue access token: %w", err)
	}
	return &Session{AccessToken: access, RefreshToken: newRefresh, ExpiresIn: int(s.accessTTL.Seconds())}, accountID, nil
}
