package storage_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/d9705996/protestpro/internal/db/dbtest"
	"github.com/d9705996/protestpro/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret-at-least-32-bytes-long"

func newStore(t *testing.T) *storage.DBStore {
	t.Helper()
	s, err := storage.NewDBStore(dbtest.New(t), "https://api.example.com", secret)
	require.NoError(t, err)
	return s
}

func TestDBStore_UploadDownload(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Upload(ctx, storage.BucketDocuments, "a/b.pdf", []byte("%PDF"), "application/pdf"))

	got, err := s.Download(ctx, storage.BucketDocuments, "a/b.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), got)
}

func TestDBStore_UploadNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Upload(ctx, storage.BucketDocuments, "x.pdf", []byte("first"), ""))
	err := s.Upload(ctx, storage.BucketDocuments, "x.pdf", []byte("second"), "")
	require.ErrorIs(t, err, storage.ErrObjectExists)

	got, err := s.Download(ctx, storage.BucketDocuments, "x.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)
}

func TestDBStore_SamePathDifferentBuckets(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Upload(ctx, storage.BucketDocuments, "x.pdf", []byte("a"), ""))
	require.NoError(t, s.Upload(ctx, storage.BucketEvidence, "x.pdf", []byte("b"), ""))
}

func TestDBStore_DownloadMissing(t *testing.T) {
	_, err := newStore(t).Download(context.Background(), storage.BucketDocuments, "nope.pdf")
	require.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestDBStore_Remove(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Upload(ctx, storage.BucketEvidence, "p/1.jpg", []byte("1"), ""))
	require.NoError(t, s.Upload(ctx, storage.BucketEvidence, "p/2.jpg", []byte("2"), ""))

	n, err := s.Remove(ctx, storage.BucketEvidence, []string{"p/1.jpg", "p/2.jpg", "p/missing.jpg"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Remove(ctx, storage.BucketEvidence, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDBStore_SignedURLRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	raw, err := s.SignedURL(ctx, storage.BucketDocuments, "exports/documents_1.zip", time.Hour)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/storage/v1/object/sign/customer-documents/exports/documents_1.zip", u.Path)

	token := u.Query().Get("token")
	require.NoError(t, s.VerifyToken(token, storage.BucketDocuments, "exports/documents_1.zip"))
	assert.Error(t, s.VerifyToken(token, storage.BucketDocuments, "exports/other.zip"))
}

func TestDBStore_SignedURLExpired(t *testing.T) {
	s := newStore(t)
	raw, err := s.SignedURL(context.Background(), storage.BucketDocuments, "x.pdf", -time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Error(t, s.VerifyToken(u.Query().Get("token"), storage.BucketDocuments, "x.pdf"))
}

func TestDBStore_ParseURL(t *testing.T) {
	s := newStore(t)

	cases := []struct {
		name       string
		raw        string
		wantBucket string
		wantPath   string
		wantOK     bool
	}{
		{"public", s.PublicURL(storage.BucketEvidence, "packets/jane doe.pdf"), storage.BucketEvidence, "packets/jane doe.pdf", true},
		{"sign with query", "https://api.example.com/storage/v1/object/sign/customer-documents/a/b.pdf?token=x", storage.BucketDocuments, "a/b.pdf", true},
		{"other host", "https://cdn.example.org/storage/v1/object/public/property-evidence/a.pdf", "", "", false},
		{"not an object url", "https://api.example.com/files/a.pdf", "", "", false},
		{"bucket only", "https://api.example.com/storage/v1/object/public/property-evidence", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bucket, path, ok := s.ParseURL(tc.raw)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.wantBucket, bucket)
			assert.Equal(t, tc.wantPath, path)
		})
	}
}
