// Package authtoken binds a CLI session to a userId, grounded on the
// teacher repository's direct dependency on github.com/golang-jwt/jwt/v5
// (its internal/auth package signs/verifies HS256 session tokens the same
// way). This is not HTTP auth — spec §1 keeps session auth out of scope —
// just enough identity plumbing for the CLI's /user and /pass surface
// (spec §6) to resolve a userId for the orchestrator.
package authtoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any unparseable or expired token.
var ErrInvalidToken = errors.New("authtoken: invalid or expired token")

// Claims is the payload of a local CLI session token.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Signer issues and verifies session tokens with a single shared secret.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

// NewSigner constructs a Signer. ttl bounds how long an issued token
// remains valid; zero defaults to 24 hours.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &Signer{secret: []byte(secret), ttl: ttl}
}

// Issue mints a token binding userID for the signer's configured ttl.
func (s *Signer) Issue(userID string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning the bound userID.
func (s *Signer) Verify(raw string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.UserID == "" {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}
