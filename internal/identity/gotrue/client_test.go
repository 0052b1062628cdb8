package gotrue_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/d9705996/protestpro/internal/identity"
	"github.com/d9705996/protestpro/internal/identity/gotrue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const serviceKey = "service-role-key"

func newClient(t *testing.T, h http.HandlerFunc) *gotrue.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+serviceKey || r.Header.Get("apikey") != serviceKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	c, err := gotrue.New(srv.URL+"/auth/v1", serviceKey, 5*time.Second)
	require.NoError(t, err)
	return c
}

func TestCreateAccount(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/v1/admin/users", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "jane@example.com", body["email"])
		assert.Equal(t, false, body["email_confirm"])
		_, _ = w.Write([]byte(`{"id":"u-1","email":"jane@example.com","created_at":"2025-03-07T15:00:00Z"}`))
	})

	a, err := c.CreateAccount(context.Background(), "jane@example.com", map[string]any{"first_name": "Jane"})
	require.NoError(t, err)
	assert.Equal(t, "u-1", a.ID)
	assert.False(t, a.EmailConfirmed)
}

func TestCreateAccount_Exists(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":422,"error_code":"email_exists","msg":"A user with this email address has already been registered"}`))
	})

	_, err := c.CreateAccount(context.Background(), "jane@example.com", nil)
	assert.ErrorIs(t, err, identity.ErrAccountExists)
}

func TestListAccounts(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "1000", r.URL.Query().Get("per_page"))
		_, _ = w.Write([]byte(`{"aud":"authenticated","users":[
			{"id":"u-1","email":"a@example.com","email_confirmed_at":"2025-01-01T00:00:00Z"},
			{"id":"u-2","email":"b@example.com"}]}`))
	})

	got, err := c.ListAccounts(context.Background(), 2, 1000)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].EmailConfirmed)
	assert.Equal(t, "b@example.com", got[1].Email)
}

func TestGetAndDeleteAccount_NotFound(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/admin/users/u-9", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":404,"error_code":"user_not_found","msg":"User not found"}`))
	})

	_, err := c.GetAccount(context.Background(), "u-9")
	assert.ErrorIs(t, err, identity.ErrAccountNotFound)
	assert.ErrorIs(t, c.DeleteAccount(context.Background(), "u-9"), identity.ErrAccountNotFound)
}

func TestDeleteAccount(t *testing.T) {
	called := false
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	})

	require.NoError(t, c.DeleteAccount(context.Background(), "u-1"))
	assert.True(t, called)
}

func TestInvite(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/invite", r.URL.Path)
		assert.Equal(t, "https://app.example.com/auth/callback", r.URL.Query().Get("redirect_to"))
		_, _ = w.Write([]byte(`{}`))
	})

	require.NoError(t, c.Invite(context.Background(), "jane@example.com", "https://app.example.com/auth/callback"))
}

func TestServerError(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
	})

	_, err := c.ListAccounts(context.Background(), 1, 10)
	var apiErr *gotrue.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "boom", apiErr.Message)
}
