package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/eternisai/groupspend-sync/internal/logger"
)

// LoggingTransport wraps http.RoundTripper to log requests and responses at debug level.
type LoggingTransport struct {
	Transport http.RoundTripper
	logger    *logger.Logger
}

// NewLoggingTransport creates a new logging transport around base.
func NewLoggingTransport(base http.RoundTripper, log *logger.Logger) *LoggingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &LoggingTransport{
		Transport: base,
		logger:    log.WithComponent("http"),
	}
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	log := t.logger.WithContext(req.Context())

	resp, err := t.Transport.RoundTrip(req)

	attrs := []any{
		slog.String("method", req.Method),
		slog.String("url", req.URL.Redacted()),
		slog.String("authorization", maskAuthorization(req.Header.Get("Authorization"))),
		slog.Duration("duration", time.Since(start)),
	}
	if err != nil {
		log.Debug("backend request failed", append(attrs, slog.String("error", err.Error()))...)
		return resp, err
	}

	log.Debug("backend request", append(attrs, slog.Int("status_code", resp.StatusCode))...)
	return resp, nil
}

func maskAuthorization(value string) string {
	if value == "" {
		return ""
	}
	const scheme = "Bearer "
	if len(value) > len(scheme) && value[:len(scheme)] == scheme {
		return scheme + logger.TokenPrefix(value[len(scheme):])
	}
	return "***"
}
