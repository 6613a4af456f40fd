// Package storage issues short-lived signed URLs for receipt attachments.
package storage

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Myenum2412/app.client.proultima-sub003/internal/apperr"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultExpiry = 60 * time.Second

// MaxExpiry caps how long a signed URL stays valid.
const MaxExpiry = 24 * time.Hour

var ErrInvalidToken = errors.New("invalid or expired storage token")

type Claims struct {
	Bucket string `json:"bkt"`
	Path   string `json:"pth"`
	jwt.RegisteredClaims
}

type Signer struct {
	baseURL string
	key     []byte
	now     func() time.Time
}

func NewSigner(baseURL, key string) *Signer {
	return &Signer{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     []byte(key),
		now:     time.Now,
	}
}

// SignPaths returns one URL per path, in order. expiresIn <= 0 means the
// default expiry.
func (s *Signer) SignPaths(bucket string, paths []string, expiresIn time.Duration) ([]string, error) {
	bucket = strings.Trim(strings.TrimSpace(bucket), "/")
	if bucket == "" {
		return nil, apperr.Validation("bucket is required")
	}
	if len(paths) == 0 {
		return nil, apperr.Validation("paths are required")
	}
	if expiresIn <= 0 {
		expiresIn = DefaultExpiry
	}
	if expiresIn > MaxExpiry {
		expiresIn = MaxExpiry
	}

	now := s.now()
	urls := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimLeft(strings.TrimSpace(p), "/")
		if p == "" {
			return nil, apperr.Validation("paths must not be empty")
		}

		claims := Claims{
			Bucket: bucket,
			Path:   p,
			RegisteredClaims: jwt.RegisteredClaims{
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
		if err != nil {
			return nil, fmt.Errorf("sign %s/%s: %w", bucket, p, err)
		}

		urls = append(urls, fmt.Sprintf("%s/%s/%s?token=%s", s.baseURL, url.PathEscape(bucket), escapePath(p), url.QueryEscape(token)))
	}
	return urls, nil
}

// Verify checks that token was issued for bucket/path and has not expired.
func (s *Signer) Verify(bucket, path, token string) error {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return s.key, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}
	if claims.Bucket != strings.Trim(bucket, "/") || claims.Path != strings.TrimLeft(path, "/") {
		return ErrInvalidToken
	}
	return nil
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
