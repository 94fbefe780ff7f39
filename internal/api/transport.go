package api

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/eternisai/groupspend-sync/internal/logger"
)

// Credentials supplies the bearer token for outgoing requests and renews it on 401.
type Credentials interface {
	// AccessToken returns the current access token, or "" when there is no session.
	AccessToken() string
	// Refresh obtains a new access token after stale was rejected.
	// Concurrent callers must share one backend refresh.
	Refresh(ctx context.Context, stale string) (string, error)
}

// AuthTransport attaches the current access token to every request. On a 401 it
// refreshes once and replays the request with the new token. The retry is never
// attempted twice.
type AuthTransport struct {
	base   http.RoundTripper
	creds  Credentials
	logger *logger.Logger
}

// NewAuthTransport wraps base. A nil base uses http.DefaultTransport.
func NewAuthTransport(base http.RoundTripper, creds Credentials, log *logger.Logger) *AuthTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &AuthTransport{
		base:   base,
		creds:  creds,
		logger: log.WithComponent("auth_transport"),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	getBody, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	token := t.creds.AccessToken()
	first, err := withBearer(req, token, getBody)
	if err != nil {
		return nil, err
	}

	resp, err := t.base.RoundTrip(first)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	ctx := req.Context()
	log := t.logger.WithContext(ctx)
	log.Debug("request unauthorized, refreshing access token",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.String("token", logger.TokenPrefix(token)))

	fresh, err := t.creds.Refresh(ctx, token)
	if err != nil {
		log.Warn("token refresh failed, surfacing original response",
			slog.String("path", req.URL.Path),
			slog.String("error", err.Error()))
		return resp, nil
	}

	retry, err := withBearer(req, fresh, getBody)
	if err != nil {
		return resp, nil
	}
	drain(resp)

	return t.base.RoundTrip(retry)
}

// replayableBody returns a function producing a fresh copy of the request body.
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		return req.GetBody, nil
	}

	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, err
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, nil
}

func withBearer(req *http.Request, token string, getBody func() (io.ReadCloser, error)) (*http.Request, error) {
	out := req.Clone(req.Context())
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	} else {
		out.Header.Del("Authorization")
	}
	if getBody != nil {
		body, err := getBody()
		if err != nil {
			return nil, err
		}
		out.Body = body
		out.GetBody = getBody
	}
	return out, nil
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
