// Package status serves the local HTTP surface UIs use to read session and
// sync state and to trigger user actions.
package status

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eternisai/groupspend-sync/internal/api"
	"github.com/eternisai/groupspend-sync/internal/background"
	apperrors "github.com/eternisai/groupspend-sync/internal/errors"
	"github.com/eternisai/groupspend-sync/internal/notifications"
	"github.com/eternisai/groupspend-sync/internal/session"
)

const healthCheckTimeout = 2 * time.Second

// Sessions is the session manager surface used by the handlers.
type Sessions interface {
	Session() session.Session
	LoginWithPassword(ctx context.Context, email, password string) error
	Register(ctx context.Context, req api.RegisterRequest) error
	Logout(ctx context.Context)
	UpdateUser(ctx context.Context, profile api.UserProfile) error
}

// Profiles updates the user profile on the backend.
type Profiles interface {
	UpdateProfile(ctx context.Context, current api.UserProfile, update api.ProfileUpdate) (api.UserProfile, error)
	ChangePassword(ctx context.Context, req api.ChangePasswordRequest) error
}

// Sync is the sync manager surface used by the handlers.
type Sync interface {
	Unread() background.Unread
	PendingInvites() []api.PendingInvite
	NotificationItems() []api.NotificationItem
	AcceptInvite(ctx context.Context, inviteToken string) (api.PendingInvite, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	Acknowledge(kind background.Kind) error
}

// Alerts is the alert service surface used by the handlers.
type Alerts interface {
	Active() []notifications.Alert
	Dismiss(id string) bool
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	sessions Sessions
	profiles Profiles
	sync     Sync
	alerts   Alerts
	checks   map[string]Pinger
}

func NewHandler(sessions Sessions, profiles Profiles, sync Sync, alerts Alerts) *Handler {
	return &Handler{
		sessions: sessions,
		profiles: profiles,
		sync:     sync,
		alerts:   alerts,
		checks:   make(map[string]Pinger),
	}
}

// AddHealthCheck makes /healthz report p under name. Call before serving.
func (h *Handler) AddHealthCheck(name string, p Pinger) {
	h.checks[name] = p
}

// SessionResponse is the public view of the session. Tokens are never exposed.
type SessionResponse struct {
	Status        session.Status   `json:"status"`
	Authenticated bool             `json:"authenticated"`
	User          *api.UserProfile `json:"user,omitempty"`
}

// LoginRequest represents the request body for a password login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest represents the request body for account creation.
type RegisterRequest struct {
	Name      string `json:"name" binding:"required"`
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	AvatarURL string `json:"avatarUrl"`
	Currency  string `json:"currency"`
}

// ChangePasswordRequest represents the request body for a password change.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

// Health handles GET /healthz.
func (h *Handler) Health(c *gin.Context) {
	if len(h.checks) == 0 {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status, code := "ok", http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			results[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	c.JSON(code, gin.H{"status": status, "checks": results})
}

// GetSession handles GET /session.
func (h *Handler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, newSessionResponse(h.sessions.Session()))
}

// Login handles POST /session/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithBadRequest(c, "email and password required", nil)
		return
	}

	if err := h.sessions.LoginWithPassword(c.Request.Context(), req.Email, req.Password); err != nil {
		apperrors.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, newSessionResponse(h.sessions.Session()))
}

// Register handles POST /session/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithBadRequest(c, "name, email and password required", nil)
		return
	}

	err := h.sessions.Register(c.Request.Context(), api.RegisterRequest{
		Name:      req.Name,
		Email:     req.Email,
		Password:  req.Password,
		AvatarURL: req.AvatarURL,
		Currency:  req.Currency,
	})
	if err != nil {
		apperrors.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newSessionResponse(h.sessions.Session()))
}

// Logout handles DELETE /session.
func (h *Handler) Logout(c *gin.Context) {
	h.sessions.Logout(c.Request.Context())
	c.JSON(http.StatusOK, newSessionResponse(h.sessions.Session()))
}

// UpdateProfile handles PUT /profile.
func (h *Handler) UpdateProfile(c *gin.Context) {
	var update api.ProfileUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		apperrors.AbortWithBadRequest(c, "invalid profile update", nil)
		return
	}

	current := h.sessions.Session()
	if !current.Authenticated() {
		apperrors.AbortWithUnauthorized(c, "not logged in")
		return
	}

	updated, err := h.profiles.UpdateProfile(c.Request.Context(), *current.User, update)
	if err != nil {
		apperrors.AbortWithError(c, err)
		return
	}

	if err := h.sessions.UpdateUser(c.Request.Context(), updated); err != nil {
		apperrors.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

// ChangePassword handles PUT /profile/password.
func (h *Handler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithBadRequest(c, "oldPassword and newPassword required", nil)
		return
	}
	if !h.requireSession(c) {
		return
	}

	err := h.profiles.ChangePassword(c.Request.Context(), api.ChangePasswordRequest{
		OldPassword: req.OldPassword,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		apperrors.AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Unread handles GET /unread.
func (h *Handler) Unread(c *gin.Context) {
	if !h.requireSession(c) {
		return
	}
	c.JSON(http.StatusOK, h.sync.Unread())
}

// ListInvites handles GET /invites.
func (h *Handler) ListInvites(c *gin.Context) {
	if !h.requireSession(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"invites": nonNil(h.sync.PendingInvites())})
}

// AcceptInvite handles POST /invites/:token/accept.
func (h *Handler) AcceptInvite(c *gin.Context) {
	inv, err := h.sync.AcceptInvite(c.Request.Context(), c.Param("token"))
	if err != nil {
		apperrors.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

// ListNotifications handles GET /notifications.
func (h *Handler) ListNotifications(c *gin.Context) {
	if !h.requireSession(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": nonNil(h.sync.NotificationItems())})
}

// MarkRead handles POST /notifications/:id/read.
func (h *Handler) MarkRead(c *gin.Context) {
	if err := h.sync.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		apperrors.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.sync.Unread())
}

// MarkAllRead handles POST /notifications/read-all.
func (h *Handler) MarkAllRead(c *gin.Context) {
	if err := h.sync.MarkAllRead(c.Request.Context()); err != nil {
		apperrors.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.sync.Unread())
}

// Acknowledge handles POST /acknowledge/:kind.
func (h *Handler) Acknowledge(c *gin.Context) {
	kind, ok := background.ParseKind(c.Param("kind"))
	if !ok {
		apperrors.AbortWithBadRequest(c, "unknown kind", map[string]interface{}{
			"allowed": []string{string(background.KindInvites), string(background.KindNotifications)},
		})
		return
	}
	if err := h.sync.Acknowledge(kind); err != nil {
		apperrors.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.sync.Unread())
}

// ListAlerts handles GET /alerts.
func (h *Handler) ListAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alerts": h.alerts.Active()})
}

// DismissAlert handles DELETE /alerts/:id. Dismissing twice still succeeds.
func (h *Handler) DismissAlert(c *gin.Context) {
	dismissed := h.alerts.Dismiss(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"dismissed": dismissed})
}

func (h *Handler) requireSession(c *gin.Context) bool {
	if !h.sessions.Session().Authenticated() {
		apperrors.AbortWithUnauthorized(c, "not logged in")
		return false
	}
	return true
}

func newSessionResponse(s session.Session) SessionResponse {
	return SessionResponse{
		Status:        s.Status,
		Authenticated: s.Authenticated(),
		User:          s.User,
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
