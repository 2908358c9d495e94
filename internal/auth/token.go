// ABOUTME: JWT verification for administrative gateway operations.
// ABOUTME: HS256 with a configurable secret; role assignment requires admin scope.

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Admin token errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
	ErrNotAdmin     = errors.New("token lacks admin scope")
)

// AdminVerifier gates administrative operations behind a signed token.
type AdminVerifier interface {
	VerifyAdmin(tokenString string) (subject string, err error)
}

// JWTVerifier implements AdminVerifier using HS256 signed JWTs.
type JWTVerifier struct {
	secret []byte
}

var _ AdminVerifier = (*JWTVerifier)(nil)

// NewJWTVerifier creates a verifier with the given shared secret.
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// VerifyAdmin validates the token and requires scope "admin". It returns
// the subject (the operator's wallet id) on success.
func (v *JWTVerifier) VerifyAdmin(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	scope, _ := claims["scope"].(string)
	if scope != "admin" {
		return "", ErrNotAdmin
	}

	return sub, nil
}

// Generate creates an admin-scoped token for the given subject.
func (v *JWTVerifier) Generate(subject string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   subject,
		"scope": "admin",
		"iat":   now.Unix(),
		"exp":   now.Add(expiresIn).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
