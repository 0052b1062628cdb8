package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/d9705996/protestpro/internal/model"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

// DBStore keeps objects in the blobs table and issues download URLs signed
// with an HS256 token that the service verifies on download.
type DBStore struct {
	db      *gorm.DB
	baseURL *url.URL
	secret  []byte
}

// NewDBStore creates a DBStore. baseURL is the public origin of the
// service; secret signs download tokens.
func NewDBStore(db *gorm.DB, baseURL, secret string) (*DBStore, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse public base url: %w", err)
	}
	return &DBStore{db: db, baseURL: u, secret: []byte(secret)}, nil
}

func (s *DBStore) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	b := &model.Blob{
		Bucket:      bucket,
		Path:        path,
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        data,
	}
	if err := s.db.WithContext(ctx).Create(b).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("upload %s/%s: %w", bucket, path, ErrObjectExists)
		}
		return fmt.Errorf("upload %s/%s: %w", bucket, path, err)
	}
	return nil
}

func (s *DBStore) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	var b model.Blob
	err := s.db.WithContext(ctx).
		Where("bucket = ? AND path = ?", bucket, path).
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("download %s/%s: %w", bucket, path, ErrObjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("download %s/%s: %w", bucket, path, err)
	}
	return b.Data, nil
}

func (s *DBStore) Remove(ctx context.Context, bucket string, paths []string) (int, error) {
	if len(paths) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("bucket = ? AND path IN ?", bucket, paths).
		Delete(&model.Blob{})
	if res.Error != nil {
		return 0, fmt.Errorf("remove from %s: %w", bucket, res.Error)
	}
	return int(res.RowsAffected), nil
}

type signedClaims struct {
	Bucket string `json:"bkt"`
	Path   string `json:"pth"`
	jwt.RegisteredClaims
}

func (s *DBStore) SignedURL(_ context.Context, bucket, path string, ttl time.Duration) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, signedClaims{
		Bucket: bucket,
		Path:   path,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign url: %w", err)
	}
	return s.objectURL("sign", bucket, path) + "?token=" + url.QueryEscape(signed), nil
}

// VerifyToken checks that token was issued by SignedURL for bucket/path
// and has not expired.
func (s *DBStore) VerifyToken(token, bucket, path string) error {
	var c signedClaims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return fmt.Errorf("verify download token: %w", err)
	}
	if c.Bucket != bucket || c.Path != path {
		return errors.New("download token does not match object")
	}
	return nil
}

func (s *DBStore) PublicURL(bucket, path string) string {
	return s.objectURL("public", bucket, path)
}

func (s *DBStore) ParseURL(raw string) (string, string, bool) {
	return parseObjectURL(s.baseURL, raw)
}

func (s *DBStore) objectURL(kind, bucket, path string) string {
	return s.baseURL.String() + objectPrefix + kind + "/" + url.PathEscape(bucket) + "/" + escapePath(path)
}
