// Package token issues and verifies the signed session tokens handed out at
// login. Tokens are HS256 JWTs and are never stored server-side.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is how long an issued token stays valid.
const DefaultTTL = 8 * time.Hour

var (
	// ErrMissingSecret is returned by NewManager when no signing secret is set.
	ErrMissingSecret = errors.New("token: signing secret is required")

	// ErrInvalidToken covers every verification failure: malformed, tampered,
	// wrongly signed or expired tokens.
	ErrInvalidToken = errors.New("token: invalid token")
)

// Claims is the identity carried by a verified token.
type Claims struct {
	Subject  string
	Username string
}

type sessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Manager signs and verifies session tokens with a single shared secret.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Manager)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager refuses to build a Manager without a secret.
func NewManager(secret string, opts ...Option) (*Manager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	m := &Manager{
		secret: []byte(secret),
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// TTL reports the lifetime of issued tokens.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a token for the given user that expires after the TTL.
func (m *Manager) Issue(userID, username string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("token: subject is required")
	}
	now := m.now()
	claims := sessionClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify checks signature and expiry and returns the embedded identity.
// All failures wrap ErrInvalidToken.
func (m *Manager) Verify(raw string) (Claims, error) {
	claims := sessionClaims{}
	token, err := jwt.ParseWithClaims(
		raw,
		&claims,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return Claims{Subject: claims.Subject, Username: claims.Username}, nil
}
