// Package auth verifies the bearer credential presented at connect time and
// resolves it to a stable user identifier.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v4"
)

// ErrInvalidToken covers every verification failure: expired, malformed and
// badly signed tokens are all rejected identically.
var ErrInvalidToken = errors.New("invalid token")

// Verifier resolves a bearer credential to the owning user id.
type Verifier interface {
	Verify(ctx context.Context, token string) (int64, error)
}

// JWT verifies HS256-signed tokens carrying the user id in the `sub` or
// `user_id` claim.
type JWT struct {
	secret []byte
}

// NewJWT creates a verifier with the given signing secret.
func NewJWT(secret []byte) *JWT {
	return &JWT{secret: secret}
}

type claims struct {
	UserID int64 `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// Verify checks the token signature and expiry and extracts the user id.
func (j *JWT) Verify(_ context.Context, token string) (int64, error) {
	if token == "" {
		return 0, fmt.Errorf("empty token: %w", ErrInvalidToken)
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("token rejected: %v: %w", err, ErrInvalidToken)
	}

	userID, err := c.userID()
	if err != nil {
		return 0, err
	}
	return userID, nil
}

func (c claims) userID() (int64, error) {
	if c.Subject != "" {
		if id, err := strconv.ParseInt(c.Subject, 10, 64); err == nil && id > 0 {
			return id, nil
		}
	}
	if c.UserID > 0 {
		return c.UserID, nil
	}
	return 0, fmt.Errorf("no user id claim: %w", ErrInvalidToken)
}
