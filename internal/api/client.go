// Package api is the typed client for the expense backend's REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/eternisai/groupspend-sync/internal/errors"
	"github.com/eternisai/groupspend-sync/internal/logger"
)

type accessTokenKey struct{}

// WithAccessToken makes requests issued with ctx carry token explicitly.
// The session manager uses it for calls that must not go through refresh-and-retry.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessTokenFromContext returns the token set by WithAccessToken, if any.
func AccessTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenKey{}).(string)
	return token
}

// Client talks to the backend. Authentication is decided by the http.Client's
// transport (see AuthTransport) or by WithAccessToken.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a new backend client rooted at baseURL (e.g. http://localhost:8686/api/v1).
func NewClient(baseURL string, httpClient *http.Client, logger *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger.WithComponent("api_client"),
	}
}

type requestOption func(*http.Request)

// withUserID sets the X-User-Id header some group-scoped endpoints require.
func withUserID(userID string) requestOption {
	return func(req *http.Request) {
		if userID != "" {
			req.Header.Set("X-User-Id", userID)
		}
	}
}

// send issues a request and returns the body of a 2xx response.
func (c *Client) send(ctx context.Context, method, path string, body any, opts ...requestOption) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token := AccessTokenFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.Network(method+" "+path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Network("read "+method+" "+path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rerr := newResponseError(method, path, resp.StatusCode, data)
		c.logger.WithContext(ctx).Debug("backend returned error",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status_code", resp.StatusCode),
			slog.Any("meta", rerr.Messages()))
		return nil, rerr
	}

	return data, nil
}

// call issues a request and decodes the envelope's data into T.
func call[T any](ctx context.Context, c *Client, method, path string, body any, opts ...requestOption) (T, error) {
	var zero T

	data, err := c.send(ctx, method, path, body, opts...)
	if err != nil {
		return zero, err
	}

	out, err := decodeData[T](data, false)
	if err != nil {
		return zero, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return out, nil
}

// list issues a request for a collection. A missing or null data field is an
// empty collection.
func list[T any](ctx context.Context, c *Client, method, path string, opts ...requestOption) ([]T, error) {
	data, err := c.send(ctx, method, path, nil, opts...)
	if err != nil {
		return nil, err
	}

	out, err := decodeData[[]T](data, true)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// exec issues a request whose response data is ignored.
func (c *Client) exec(ctx context.Context, method, path string, body any, opts ...requestOption) error {
	_, err := c.send(ctx, method, path, body, opts...)
	return err
}
