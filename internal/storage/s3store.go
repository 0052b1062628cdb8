package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Store keeps objects in an S3-compatible service. Buckets map one to
// one onto S3 buckets and must exist beforehand.
type S3Store struct {
	client  *minio.Client
	baseURL *url.URL
}

// S3Options configures NewS3Store.
type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string //nolint:gosec // intentional: object store secret
	UseSSL    bool
}

// NewS3Store creates an S3Store.
func NewS3Store(opts S3Options) (*S3Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	scheme := "http"
	if opts.UseSSL {
		scheme = "https"
	}
	return &S3Store{client: client, baseURL: &url.URL{Scheme: scheme, Host: opts.Endpoint}}, nil
}

func (s *S3Store) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	putOpts := minio.PutObjectOptions{ContentType: contentType}
	// If-None-Match: * makes the write conditional on the key being free.
	putOpts.SetMatchETagExcept("*")
	_, err := s.client.PutObject(ctx, bucket, path, bytes.NewReader(data), int64(len(data)), putOpts)
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.StatusCode == http.StatusPreconditionFailed || resp.Code == "PreconditionFailed" {
			return fmt.Errorf("upload %s/%s: %w", bucket, path, ErrObjectExists)
		}
		return fmt.Errorf("upload %s/%s: %w", bucket, path, err)
	}
	return nil
}

func (s *S3Store) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.readErr(bucket, path, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.readErr(bucket, path, err)
	}
	return data, nil
}

func (s *S3Store) readErr(bucket, path string, err error) error {
	if minio.ToErrorResponse(err).Code == minio.NoSuchKey {
		return fmt.Errorf("download %s/%s: %w", bucket, path, ErrObjectNotFound)
	}
	return fmt.Errorf("download %s/%s: %w", bucket, path, err)
}

func (s *S3Store) Remove(ctx context.Context, bucket string, paths []string) (int, error) {
	var (
		removed int
		errs    []error
	)
	for _, p := range paths {
		if err := s.client.RemoveObject(ctx, bucket, p, minio.RemoveObjectOptions{}); err != nil {
			errs = append(errs, fmt.Errorf("remove %s/%s: %w", bucket, p, err))
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func (s *S3Store) SignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, bucket, path, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", bucket, path, err)
	}
	return u.String(), nil
}

func (s *S3Store) PublicURL(bucket, path string) string {
	return s.baseURL.String() + "/" + url.PathEscape(bucket) + "/" + escapePath(path)
}

func (s *S3Store) ParseURL(raw string) (string, string, bool) {
	u, err := url.Parse(raw)
	if err != nil || !strings.EqualFold(u.Host, s.baseURL.Host) {
		return "", "", false
	}
	return splitBucketPath(u.Path)
}
