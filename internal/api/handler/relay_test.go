package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/d9705996/protestpro/internal/api/handler"
	"github.com/d9705996/protestpro/internal/api/middleware"
	"github.com/d9705996/protestpro/internal/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type standing map[string]bool

func (s standing) IsAdmin(_ context.Context, userID string) (bool, error) {
	v, ok := s[userID]
	if !ok {
		return false, errors.New("profile not found")
	}
	return v, nil
}

func newRelayHandler() http.Handler {
	r := relay.New(standing{"boss": true, "cust": false}, relay.Destinations{
		CustomerApp: "https://portal.example.com",
		AdminApp:    "https://admin.example.com",
		SetPassword: "https://api.example.com/auth/set-password",
		SignIn:      "https://portal.example.com/login",
	}, discard(), time.Second)
	h := handler.NewRelayHandler(relay.NewCoordinator(r, time.Second), secret)
	return middleware.OptionalAuth(secret)(http.HandlerFunc(h.Relay))
}

func postRelay(t *testing.T, h http.Handler, body, token string) relay.Decision {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/relay", strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var d relay.Decision
	attributes(t, w, &d)
	return d
}

func TestRelay_FragmentSession(t *testing.T) {
	h := newRelayHandler()
	frag := "#access_token=" + bearer(t, "boss") + "&refresh_token=r1"

	d := postRelay(t, h, `{"fragment":"`+frag+`"}`, "")
	assert.Equal(t, relay.ActionRedirect, d.Action)
	assert.Equal(t, "https://admin.example.com"+frag, d.URL)
}

func TestRelay_BearerSessionUsesQueryTokens(t *testing.T) {
	h := newRelayHandler()
	tok := bearer(t, "cust")

	d := postRelay(t, h, `{"fragment":"","query":""}`, tok)
	assert.Equal(t, relay.ActionRedirect, d.Action)
	assert.Equal(t, "https://portal.example.com?access_token="+tok, d.URL)
}

func TestRelay_BearerSessionForwardsRefreshToken(t *testing.T) {
	h := newRelayHandler()
	tok := bearer(t, "boss")

	d := postRelay(t, h, `{"fragment":"","query":"","refreshToken":"r-123"}`, tok)
	assert.Equal(t, relay.ActionRedirect, d.Action)

	u, err := url.Parse(d.URL)
	require.NoError(t, err)
	assert.Equal(t, "admin.example.com", u.Host)
	assert.Equal(t, tok, u.Query().Get("access_token"))
	assert.Equal(t, "r-123", u.Query().Get("refresh_token"))
}

func TestRelay_RefreshTokenIgnoredWithoutBearer(t *testing.T) {
	h := newRelayHandler()
	d := postRelay(t, h, `{"fragment":"","query":"","refreshToken":"r-123"}`, "")
	assert.Equal(t, relay.ActionSignIn, d.Action)
	assert.NotContains(t, d.URL, "r-123")
}

func TestRelay_RecoveryLink(t *testing.T) {
	h := newRelayHandler()
	frag := "#access_token=" + bearer(t, "boss") + "&type=recovery"

	d := postRelay(t, h, `{"fragment":"`+frag+`"}`, bearer(t, "boss"))
	assert.Equal(t, relay.ActionSetPassword, d.Action)
	assert.True(t, d.Recovery)
}

func TestRelay_NoSession(t *testing.T) {
	h := newRelayHandler()
	d := postRelay(t, h, `{"fragment":"#access_token=forged"}`, "")
	assert.Equal(t, relay.ActionSignIn, d.Action)
	assert.Equal(t, "https://portal.example.com/login", d.URL)
}
