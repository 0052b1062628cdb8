package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/d9705996/protestpro/internal/api/middleware"
	"github.com/d9705996/protestpro/internal/auth"
	"github.com/d9705996/protestpro/internal/authz"
	"github.com/d9705996/protestpro/internal/db/dbtest"
	"github.com/d9705996/protestpro/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret-at-least-32-bytes!!!"

func issueToken(t *testing.T, userID string) string {
	t.Helper()
	tok, err := auth.IssueAccessToken(userID, userID+"@example.com", secret, 15*time.Minute)
	require.NoError(t, err)
	return tok
}

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestRequireAuth_MissingHeader(t *testing.T) {
	handler := middleware.RequireAuth(secret)(http.HandlerFunc(ok))

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth_ValidToken(t *testing.T) {
	tok := issueToken(t, "user-1")
	handler := middleware.RequireAuth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := middleware.ClaimsFromContext(r.Context())
		require.NotNil(t, claims)
		assert.Equal(t, "user-1", claims.UserID())
		assert.Equal(t, tok, middleware.TokenFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuth_InvalidToken(t *testing.T) {
	handler := middleware.RequireAuth(secret)(http.HandlerFunc(ok))

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Authorization", "Bearer this.is.garbage")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOptionalAuth(t *testing.T) {
	var seen string
	handler := middleware.OptionalAuth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ""
		if c := middleware.ClaimsFromContext(r.Context()); c != nil {
			seen = c.UserID()
		}
		w.WriteHeader(http.StatusOK)
	}))

	for _, tc := range []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer garbage", ""},
		{"Bearer " + issueToken(t, "user-2"), "user-2"},
	} {
		req := httptest.NewRequest(http.MethodPost, "/relay", http.NoBody)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, tc.want, seen)
	}
}

func TestRequirePermission(t *testing.T) {
	gdb := dbtest.New(t)
	checker, err := authz.NewChecker(gdb)
	require.NoError(t, err)
	admin := "admin"
	require.NoError(t, gdb.Create(&model.Profile{UserID: "boss", Email: "boss@example.com", Permissions: &admin}).Error)
	require.NoError(t, gdb.Create(&model.Profile{UserID: "cust", Email: "cust@example.com"}).Error)

	chain := middleware.RequireAuth(secret)(
		middleware.RequirePermission(checker, authz.ObjUsers, authz.ActDelete)(http.HandlerFunc(ok)),
	)

	cases := []struct {
		user string
		want int
	}{
		{"boss", http.StatusOK},
		{"cust", http.StatusForbidden},
		{"ghost", http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/users/delete", http.NoBody)
		req.Header.Set("Authorization", "Bearer "+issueToken(t, tc.user))
		w := httptest.NewRecorder()
		chain.ServeHTTP(w, req)
		assert.Equal(t, tc.want, w.Code, tc.user)
	}
}

func TestRequirePermission_DemotionTakesEffect(t *testing.T) {
	gdb := dbtest.New(t)
	checker, err := authz.NewChecker(gdb)
	require.NoError(t, err)
	admin := "administrator"
	require.NoError(t, gdb.Create(&model.Profile{UserID: "boss", Email: "boss@example.com", Permissions: &admin}).Error)

	chain := middleware.RequireAuth(secret)(
		middleware.RequirePermission(checker, authz.ObjDocuments, authz.ActExport)(http.HandlerFunc(ok)),
	)
	tok := issueToken(t, "boss")
	serve := func() int {
		req := httptest.NewRequest(http.MethodPost, "/x", http.NoBody)
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		chain.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, serve())
	require.NoError(t, gdb.Model(&model.Profile{}).Where("user_id = ?", "boss").Update("permissions", "user").Error)
	assert.Equal(t, http.StatusForbidden, serve(), "same token, fresh lookup")
}
