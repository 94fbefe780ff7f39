// Package auth decodes bearer tokens issued by the expense backend.
//
// Tokens are decoded without verifying the signature: the client only needs the
// subject to know who is logged in, and the backend remains the authority on
// whether a token is still acceptable.
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	apperrors "github.com/eternisai/groupspend-sync/internal/errors"
)

// Claims represents the claims the client reads from an access token.
type Claims struct {
	Sub string `json:"sub"`
	jwt.RegisteredClaims
}

// Expiry returns the expiry time, or the zero time when the token carries none.
func (c *Claims) Expiry() time.Time {
	if c.RegisteredClaims.ExpiresAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.ExpiresAt.Time
}

var parser = jwt.NewParser()

// DecodeClaims parses token without signature verification.
// Malformed tokens and tokens without a subject return ErrInvalidToken.
func DecodeClaims(token string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: token is empty", apperrors.ErrInvalidToken)
	}

	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidToken, err)
	}

	if claims.Sub == "" {
		return nil, fmt.Errorf("%w: no subject (sub) found in token claims", apperrors.ErrInvalidToken)
	}

	return claims, nil
}

// Subject returns the token's subject and whether decoding succeeded.
func Subject(token string) (string, bool) {
	claims, err := DecodeClaims(token)
	if err != nil {
		return "", false
	}
	return claims.Sub, true
}
