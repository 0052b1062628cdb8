package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/d9705996/protestpro/internal/api/handler"
	"github.com/d9705996/protestpro/internal/db/dbtest"
	"github.com/d9705996/protestpro/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedDownload(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewDBStore(dbtest.New(t), "http://localhost:8080", secret)
	require.NoError(t, err)
	require.NoError(t, store.Upload(ctx, storage.BucketDocuments, "exports/documents_1.zip", []byte("PK\x03\x04"), "application/zip"))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /storage/v1/object/sign/{bucket}/{path...}", handler.NewStorageHandler(store, discard()).Signed)

	link, err := store.SignedURL(ctx, storage.BucketDocuments, "exports/documents_1.zip", time.Minute)
	require.NoError(t, err)
	get := func(target string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, http.NoBody))
		return w
	}

	w := get(strings.TrimPrefix(link, "http://localhost:8080"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Equal(t, "PK\x03\x04", w.Body.String())

	other, err := store.SignedURL(ctx, storage.BucketDocuments, "exports/other.zip", time.Minute)
	require.NoError(t, err)
	token := other[strings.Index(other, "?token="):]
	w = get("/storage/v1/object/sign/" + storage.BucketDocuments + "/exports/documents_1.zip" + token)
	assert.Equal(t, http.StatusForbidden, w.Code, "token for another object")

	w = get(strings.TrimPrefix(other, "http://localhost:8080"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
