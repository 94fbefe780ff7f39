// Package authtest builds access tokens for tests.
package authtest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var signingKey = []byte("authtest-signing-key")

// Token returns a signed HS256 token whose sub claim is subject.
func Token(t testing.TB, subject string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if subject != "" {
		claims["sub"] = subject
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return token
}

// TokenWithID returns a token for subject that differs from any other token
// for the same subject, so rotations can be told apart.
func TokenWithID(t testing.TB, subject, id string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub": subject,
		"jti": id,
		"exp": time.Now().Add(time.Hour).Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return token
}
