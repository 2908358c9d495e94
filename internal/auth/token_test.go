// ABOUTME: Tests for admin JWT verification.
// ABOUTME: Covers round trip, expiry, scope, and wrong-secret rejection.

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.Generate("wallet-admin", time.Hour)
	require.NoError(t, err)

	sub, err := v.VerifyAdmin(token)
	require.NoError(t, err)
	assert.Equal(t, "wallet-admin", sub)
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.Generate("wallet-admin", -time.Minute)
	require.NoError(t, err)

	_, err = v.VerifyAdmin(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTVerifier_WrongSecret(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))
	other := NewJWTVerifier([]byte("other-secret"))

	token, err := other.Generate("wallet-admin", time.Hour)
	require.NoError(t, err)

	_, err = v.VerifyAdmin(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTVerifier_MissingScopeRejected(t *testing.T) {
	secret := []byte("test-secret")
	v := NewJWTVerifier(secret)

	claims := jwt.MapClaims{
		"sub": "wallet-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)

	_, err = v.VerifyAdmin(token)
	assert.ErrorIs(t, err, ErrNotAdmin)
}

func TestJWTVerifier_MissingSubject(t *testing.T) {
	secret := []byte("test-secret")
	v := NewJWTVerifier(secret)

	claims := jwt.MapClaims{
		"scope": "admin",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)

	_, err = v.VerifyAdmin(token)
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestJWTVerifier_GarbageToken(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	_, err := v.VerifyAdmin("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
