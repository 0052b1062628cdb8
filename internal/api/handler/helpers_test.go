package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/d9705996/protestpro/internal/api/jsonapi"
	"github.com/d9705996/protestpro/internal/api/middleware"
	"github.com/d9705996/protestpro/internal/auth"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret-at-least-32-bytes!!!"

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func bearer(t *testing.T, userID string) string {
	t.Helper()
	tok, err := auth.IssueAccessToken(userID, userID+"@example.com", secret, 15*time.Minute)
	require.NoError(t, err)
	return tok
}

// serve runs h behind RequireAuth when userID is set.
func serve(t *testing.T, h http.HandlerFunc, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	var next http.Handler = h
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+bearer(t, userID))
		next = middleware.RequireAuth(secret)(h)
	}
	w := httptest.NewRecorder()
	next.ServeHTTP(w, req)
	return w
}

// attributes decodes a single-resource document's attributes into v.
func attributes(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	var doc struct {
		Data struct {
			Type       string          `json:"type"`
			ID         string          `json:"id"`
			Attributes json.RawMessage `json:"attributes"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	require.NoError(t, json.Unmarshal(doc.Data.Attributes, v))
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var doc jsonapi.ErrorDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	require.NotEmpty(t, doc.Errors)
	return doc.Errors[0].Code
}
