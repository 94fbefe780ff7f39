package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/eternisai/groupspend-sync/internal/errors"
)

// MetaMessage is a status message attached to every backend response.
type MetaMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Envelope is the {meta, data} wrapper around every backend response.
type Envelope[T any] struct {
	Meta []MetaMessage `json:"meta"`
	Data T             `json:"data"`
}

type rawEnvelope struct {
	Meta []MetaMessage  `json:"meta"`
	Data json.RawMessage `json:"data"`
}

// decodeData unwraps the envelope and decodes data into T.
// A missing or null data field is an error unless allowEmpty is set.
func decodeData[T any](body []byte, allowEmpty bool) (T, error) {
	var zero T

	var env rawEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return zero, fmt.Errorf("decode response envelope: %w", err)
	}

	if len(env.Data) == 0 || string(env.Data) == "null" {
		if allowEmpty {
			return zero, nil
		}
		return zero, fmt.Errorf("invalid response: missing data")
	}

	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return zero, fmt.Errorf("decode response data: %w", err)
	}

	return out, nil
}

// ResponseError is a non-2xx backend response.
type ResponseError struct {
	Method     string
	Path       string
	StatusCode int
	Meta       []MetaMessage
}

func newResponseError(method, path string, status int, body []byte) *ResponseError {
	rerr := &ResponseError{Method: method, Path: path, StatusCode: status}

	var env rawEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		rerr.Meta = env.Meta
	}

	return rerr
}

func (e *ResponseError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	if m := e.Messages(); len(m) > 0 {
		msg += ": " + strings.Join(m, "; ")
	}
	return msg
}

// Messages returns the human-readable meta messages.
func (e *ResponseError) Messages() []string {
	out := make([]string, 0, len(e.Meta))
	for _, m := range e.Meta {
		if m.Message != "" {
			out = append(out, m.Message)
		}
	}
	return out
}

// Unwrap maps the status onto the error taxonomy.
func (e *ResponseError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return apperrors.ErrUnauthorized
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return apperrors.ErrValidation
	}
	return nil
}
