package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/tj/assert"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	assert.NoError(t, err)
	return token
}

func TestJWTVerify(t *testing.T) {
	ctx := context.Background()
	verifier := NewJWT(testSecret)

	t.Run("sub claim", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.MapClaims{
			"sub": "42",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		userID, err := verifier.Verify(ctx, token)
		assert.NoError(t, err)
		assert.EqualValues(t, 42, userID)
	})

	t.Run("user_id claim fallback", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.MapClaims{
			"user_id": 7,
			"exp":     time.Now().Add(time.Hour).Unix(),
		})
		userID, err := verifier.Verify(ctx, token)
		assert.NoError(t, err)
		assert.EqualValues(t, 7, userID)
	})

	t.Run("expired", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.MapClaims{
			"sub": "42",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		_, err := verifier.Verify(ctx, token)
		assert.True(t, errors.Is(err, ErrInvalidToken))
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := signToken(t, []byte("other-secret"), jwt.MapClaims{"sub": "42"})
		_, err := verifier.Verify(ctx, token)
		assert.True(t, errors.Is(err, ErrInvalidToken))
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := verifier.Verify(ctx, "not-a-token")
		assert.True(t, errors.Is(err, ErrInvalidToken))
	})

	t.Run("empty", func(t *testing.T) {
		_, err := verifier.Verify(ctx, "")
		assert.True(t, errors.Is(err, ErrInvalidToken))
	})

	t.Run("no user id claim", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		_, err := verifier.Verify(ctx, token)
		assert.True(t, errors.Is(err, ErrInvalidToken))
	})
}
