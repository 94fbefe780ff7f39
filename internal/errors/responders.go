package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// LoginRedirect is the path UIs are sent to once the session is gone.
const LoginRedirect = "/login"

// AbortWithBadRequest sends a 400 Bad Request response and aborts the request.
func AbortWithBadRequest(c *gin.Context, message string, details map[string]interface{}) {
	c.AbortWithStatusJSON(http.StatusBadRequest, NewAPIError(message, details))
}

// AbortWithUnauthorized sends a 401 pointing the UI at the login prompt.
func AbortWithUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, NewAPIError(message, map[string]interface{}{
		"redirect": LoginRedirect,
	}))
}

// AbortWithNotFound sends a 404 Not Found response and aborts the request.
func AbortWithNotFound(c *gin.Context, message string, details map[string]interface{}) {
	c.AbortWithStatusJSON(http.StatusNotFound, NewAPIError(message, details))
}

// AbortWithBadGateway sends a 502 when the backend failed in a way the caller can retry.
func AbortWithBadGateway(c *gin.Context, message string, details map[string]interface{}) {
	c.AbortWithStatusJSON(http.StatusBadGateway, NewAPIError(message, details))
}

// AbortWithInternal sends a 500 Internal Server Error response and aborts the request.
func AbortWithInternal(c *gin.Context, message string, details map[string]interface{}) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, NewAPIError(message, details))
}

// AbortWithError maps an error from the session or sync layers onto a response.
func AbortWithError(c *gin.Context, err error) {
	switch {
	case IsSessionInvalid(err):
		AbortWithUnauthorized(c, "session is no longer valid")
	case Is(err, ErrInvalidCredentials), Is(err, ErrValidation):
		AbortWithBadRequest(c, err.Error(), nil)
	case Is(err, ErrNetwork):
		AbortWithBadGateway(c, "backend unreachable", map[string]interface{}{"cause": err.Error()})
	default:
		AbortWithInternal(c, err.Error(), nil)
	}
}
