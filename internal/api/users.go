package api

import (
	"context"
	"fmt"
	"net/http"
)

// placeholderPassword satisfies PUT /users/me, which requires a password field it ignores.
const placeholderPassword = "PLACEHOLDER_PASSWORD"

// Login exchanges email and password for a token pair.
func (c *Client) Login(ctx context.Context, req LoginRequest) (TokenPair, error) {
	dto, err := call[tokenPairDTO](ctx, c, http.MethodPost, "/users/login", req)
	if err != nil {
		return TokenPair{}, err
	}
	return validPair(dto, "login")
}

// Register creates an account and returns its token pair.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (TokenPair, error) {
	dto, err := call[tokenPairDTO](ctx, c, http.MethodPost, "/users/register", req)
	if err != nil {
		return TokenPair{}, err
	}
	return validPair(dto, "register")
}

// GetProfile returns the authenticated user's profile.
func (c *Client) GetProfile(ctx context.Context) (UserProfile, error) {
	profile, err := call[UserProfile](ctx, c, http.MethodGet, "/users/me", nil)
	if err != nil {
		return UserProfile{}, err
	}
	if profile.ID == "" {
		return UserProfile{}, fmt.Errorf("invalid profile response: missing user id")
	}
	return profile, nil
}

// UpdateProfile applies update on top of current and returns the stored profile.
func (c *Client) UpdateProfile(ctx context.Context, current UserProfile, update ProfileUpdate) (UserProfile, error) {
	body := profileUpdateDTO{
		Name:      firstNonEmpty(update.Name, current.Name),
		Email:     current.Email,
		Password:  placeholderPassword,
		AvatarURL: firstNonEmpty(update.AvatarURL, current.AvatarURL),
		Currency:  firstNonEmpty(update.Currency, current.Currency),
	}
	return call[UserProfile](ctx, c, http.MethodPut, "/users/me", body)
}

// ChangePassword updates the authenticated user's password.
func (c *Client) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	return c.exec(ctx, http.MethodPut, "/users/me/password", req)
}

func validPair(dto tokenPairDTO, op string) (TokenPair, error) {
	pair := dto.pair()
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return TokenPair{}, fmt.Errorf("invalid %s response: missing token or refreshToken", op)
	}
	return pair, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
