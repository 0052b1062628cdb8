package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/d9705996/protestpro/internal/auth"
	"github.com/d9705996/protestpro/internal/db/dbtest"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-at-least-32-bytes-long"

func TestIssueAndParseAccessToken(t *testing.T) {
	token, err := auth.IssueAccessToken("user-1", "user@example.com", testSecret, 15*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := auth.ParseAccessToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID())
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "authenticated", claims.Role)
}

func TestParseAccessToken_ExpiredToken(t *testing.T) {
	// Issue a token with a -1 minute TTL so it is already expired.
	token, err := auth.IssueAccessToken("user-1", "user@example.com", testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = auth.ParseAccessToken(token, testSecret)
	require.Error(t, err)
}

func TestParseAccessToken_WrongSecret(t *testing.T) {
	token, err := auth.IssueAccessToken("user-1", "user@example.com", testSecret, 15*time.Minute)
	require.NoError(t, err)

	_, err = auth.ParseAccessToken(token, "wrong-secret")
	require.Error(t, err)
}

func TestParseAccessToken_Garbage(t *testing.T) {
	_, err := auth.ParseAccessToken("not.a.jwt", testSecret)
	require.Error(t, err)
}

func TestParseAccessToken_ExternalGoTrueShape(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "6f1c",
		"email": "jane@example.com",
		"role":  "authenticated",
		"aud":   "authenticated",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	raw, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)

	claims, err := auth.ParseAccessToken(raw, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "6f1c", claims.UserID())
	assert.Equal(t, "jane@example.com", claims.Email)
}

func TestParseAccessToken_RequiresSubject(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": "jane@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	raw, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = auth.ParseAccessToken(raw, testSecret)
	require.Error(t, err)
}

func TestRefreshToken_RotateOnce(t *testing.T) {
	ctx := context.Background()
	store := auth.NewRefreshStore(dbtest.New(t))

	raw, err := store.IssueRefreshToken(ctx, "acct-1", time.Hour)
	require.NoError(t, err)

	next, acct, err := store.RotateRefreshToken(ctx, raw, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", acct)
	assert.NotEqual(t, raw, next)

	_, _, err = store.RotateRefreshToken(ctx, raw, time.Hour)
	assert.ErrorIs(t, err, auth.ErrInvalidRefreshToken)
}

func TestRefreshToken_ExpiredAndRevoked(t *testing.T) {
	ctx := context.Background()
	store := auth.NewRefreshStore(dbtest.New(t))

	expired, err := store.IssueRefreshToken(ctx, "acct-1", -time.Minute)
	require.NoError(t, err)
	_, _, err = store.RotateRefreshToken(ctx, expired, time.Hour)
	assert.ErrorIs(t, err, auth.ErrInvalidRefreshToken)

	live, err := store.IssueRefreshToken(ctx, "acct-1", time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.RevokeAll(ctx, "acct-1"))
	_, _, err = store.RotateRefreshToken(ctx, live, time.Hour)
	assert.ErrorIs(t, err, auth.ErrInvalidRefreshToken)

	_, _, err = store.RotateRefreshToken(ctx, "unknown", time.Hour)
	assert.ErrorIs(t, err, auth.ErrInvalidRefreshToken)
}

func TestSessions_IssueAndRotate(t *testing.T) {
	ctx := context.Background()
	s := auth.NewSessions(dbtest.New(t), testSecret, 15*time.Minute, time.Hour)

	sess, err := s.Issue(ctx, "acct-1", "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, 900, sess.ExpiresIn)

	next, acct, err := s.Rotate(ctx, sess.RefreshToken, func(context.Context, string) (string, error) {
		return "jane@example.com", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "acct-1", acct)

	claims, err := auth.ParseAccessToken(next.AccessToken, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", claims.UserID())
}
