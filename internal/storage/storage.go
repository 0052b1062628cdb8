// Package storage is the blob store boundary used by the document, erasure
// and export pipelines. Two implementations exist: a database-backed store
// (the default, also used in tests) and an S3-compatible store.
package storage

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

// Well-known buckets.
const (
	BucketTemplates = "pdf-templates"
	BucketDocuments = "customer-documents"
	BucketEvidence  = "property-evidence"
)

var (
	// ErrObjectExists is returned by Upload when the path is already taken.
	// Uploads never overwrite.
	ErrObjectExists = errors.New("object already exists")
	// ErrObjectNotFound is returned by Download for a missing object.
	ErrObjectNotFound = errors.New("object not found")
)

// Store reads and writes named objects in buckets.
type Store interface {
	// Upload writes data under bucket/path. It fails with ErrObjectExists
	// instead of overwriting.
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error
	Download(ctx context.Context, bucket, path string) ([]byte, error)
	// Remove deletes the given paths and reports how many were removed.
	// Missing objects are not errors. A non-nil error may accompany a
	// positive count when only some removals failed.
	Remove(ctx context.Context, bucket string, paths []string) (int, error)
	SignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error)
	PublicURL(bucket, path string) string
	// ParseURL maps a URL previously produced by this store back to its
	// bucket and path. ok is false for URLs pointing elsewhere.
	ParseURL(raw string) (bucket, path string, ok bool)
}

const objectPrefix = "/storage/v1/object/"

// escapePath escapes each segment of an object path for use in a URL.
func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

// splitBucketPath splits "bucket/some/path" into its two parts.
func splitBucketPath(rest string) (bucket, path string, ok bool) {
	bucket, path, found := strings.Cut(strings.TrimPrefix(rest, "/"), "/")
	if !found || bucket == "" || path == "" {
		return "", "", false
	}
	return bucket, path, true
}

// parseObjectURL extracts bucket and path from a URL of the form
// {base}/storage/v1/object/[public|sign|authenticated/]{bucket}/{path}.
func parseObjectURL(base *url.URL, raw string) (bucket, path string, ok bool) {
	u, err := url.Parse(raw)
	if err != nil || !strings.EqualFold(u.Host, base.Host) {
		return "", "", false
	}
	rest, found := strings.CutPrefix(u.Path, strings.TrimSuffix(base.Path, "/")+objectPrefix)
	if !found {
		return "", "", false
	}
	for _, kind := range []string{"public/", "sign/", "authenticated/"} {
		if r, cut := strings.CutPrefix(rest, kind); cut {
			rest = r
			break
		}
	}
	return splitBucketPath(rest)
}
