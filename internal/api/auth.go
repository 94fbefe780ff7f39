package api

import (
	"context"
	"net/http"
)

// RefreshToken exchanges a refresh token for a new pair. The body is the raw token string.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (TokenPair, error) {
	dto, err := call[tokenPairDTO](ctx, c, http.MethodPost, "/auth/refresh-token", refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	return validPair(dto, "refresh token")
}

// Logout invalidates refreshToken server-side. The body is the raw token string.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.exec(ctx, http.MethodPost, "/auth/logout", refreshToken)
}
