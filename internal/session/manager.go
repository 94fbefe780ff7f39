package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/eternisai/groupspend-sync/internal/api"
	"github.com/eternisai/groupspend-sync/internal/auth"
	apperrors "github.com/eternisai/groupspend-sync/internal/errors"
	"github.com/eternisai/groupspend-sync/internal/logger"
	"github.com/eternisai/groupspend-sync/internal/metrics"
)

const (
	defaultRefreshTimeout = 15 * time.Second
	backendLogoutTimeout  = 5 * time.Second
)

// Backend is the subset of the API the manager calls directly. The access
// token for GetProfile and Logout is passed with api.WithAccessToken.
type Backend interface {
	Login(ctx context.Context, req api.LoginRequest) (api.TokenPair, error)
	Register(ctx context.Context, req api.RegisterRequest) (api.TokenPair, error)
	GetProfile(ctx context.Context) (api.UserProfile, error)
	RefreshToken(ctx context.Context, refreshToken string) (api.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
}

// Manager is the only writer of the Store. It also implements api.Credentials.
type Manager struct {
	store   Store
	backend Backend
	logger  *logger.Logger

	refreshTimeout time.Duration
	refreshGroup   singleflight.Group

	// opMu serializes every operation that writes the store.
	opMu sync.Mutex

	mu      sync.RWMutex
	session Session

	listenersMu  sync.Mutex
	listeners    map[int]func(Session)
	nextListener int
}

// Option configures a Manager.
type Option func(*Manager)

// WithRefreshTimeout bounds a single backend refresh call.
func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.refreshTimeout = d
		}
	}
}

// NewManager creates a manager in StatusUninitialized.
func NewManager(store Store, backend Backend, log *logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:          store,
		backend:        backend,
		logger:         log.WithComponent("session_manager"),
		refreshTimeout: defaultRefreshTimeout,
		session:        Session{Status: StatusUninitialized},
		listeners:      make(map[int]func(Session)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Session returns a copy of the current session.
func (m *Manager) Session() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.clone()
}

// AccessToken returns the current access token, or "" without a session.
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.AccessToken
}

// Subscribe registers fn for status and identity changes. Token rotation alone
// does not notify. fn runs synchronously inside the changing operation and must
// not call the manager's mutating methods. The returned func unregisters fn.
func (m *Manager) Subscribe(fn func(Session)) func() {
	m.listenersMu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn
	m.listenersMu.Unlock()

	return func() {
		m.listenersMu.Lock()
		delete(m.listeners, id)
		m.listenersMu.Unlock()
	}
}

// Initialize rehydrates the persisted session. It runs once; later calls are no-ops.
// It always leaves the session Authenticated or Unauthenticated.
func (m *Manager) Initialize(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.Session().Status != StatusUninitialized {
		return nil
	}
	m.transition(Session{Status: StatusInitializing})

	ctx = logger.WithOperation(ctx, "initialize")
	log := m.logger.WithContext(ctx)

	stored, err := m.store.Load(ctx)
	if err != nil {
		m.reset(ctx, "stored session unreadable")
		return apperrors.Persistence("load session", err)
	}

	if stored.AccessToken == "" {
		m.reset(ctx, "no stored session")
		return nil
	}

	claims, err := auth.DecodeClaims(stored.AccessToken)
	if err != nil {
		m.reset(ctx, "stored access token invalid")
		return err
	}

	if stored.RefreshToken == "" {
		m.reset(ctx, "stored session has no refresh token")
		return fmt.Errorf("%w: stored session has no refresh token", apperrors.ErrInvalidToken)
	}

	if stored.User != nil {
		m.mu.Lock()
		m.session.User = stored.User
		m.mu.Unlock()
	}

	profile, err := m.backend.GetProfile(api.WithAccessToken(ctx, stored.AccessToken))
	if err != nil {
		m.reset(ctx, "profile fetch failed")
		return fmt.Errorf("fetch profile: %w", err)
	}

	if err := m.store.SaveUser(ctx, profile); err != nil {
		log.Warn("failed to re-persist user profile", slog.String("error", err.Error()))
	}

	m.transition(Session{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		User:         &profile,
		Status:       StatusAuthenticated,
	})
	log.Info("session restored", slog.String("user_id", profile.ID), slog.String("subject", claims.Sub))
	return nil
}

// Login installs a token pair. Both tokens must be non-empty and the access
// token must carry a subject, otherwise ErrInvalidCredentials is returned and
// nothing is written. A failed profile fetch rolls back the stored tokens.
func (m *Manager) Login(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken == "" || refreshToken == "" {
		return fmt.Errorf("%w: access and refresh tokens are required", apperrors.ErrInvalidCredentials)
	}
	if _, err := auth.DecodeClaims(accessToken); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidCredentials, err)
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	ctx = logger.WithOperation(ctx, "login")

	if err := m.store.SaveTokens(ctx, accessToken, refreshToken); err != nil {
		m.reset(ctx, "token persistence failed")
		return apperrors.Persistence("save tokens", err)
	}

	profile, err := m.backend.GetProfile(api.WithAccessToken(ctx, accessToken))
	if err != nil {
		m.reset(ctx, "profile fetch failed after login")
		return fmt.Errorf("fetch profile: %w", err)
	}

	if err := m.store.SaveUser(ctx, profile); err != nil {
		m.reset(ctx, "user persistence failed")
		return apperrors.Persistence("save user", err)
	}

	m.transition(Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         &profile,
		Status:       StatusAuthenticated,
	})
	m.logger.WithContext(ctx).Info("logged in", slog.String("user_id", profile.ID))
	return nil
}

// LoginWithPassword exchanges credentials with the backend and logs in.
func (m *Manager) LoginWithPassword(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", apperrors.ErrInvalidCredentials)
	}

	pair, err := m.backend.Login(ctx, api.LoginRequest{Email: email, Password: password})
	if err != nil {
		if apperrors.Is(err, apperrors.ErrUnauthorized) || apperrors.Is(err, apperrors.ErrValidation) {
			return fmt.Errorf("%w: %v", apperrors.ErrInvalidCredentials, err)
		}
		return err
	}
	return m.Login(ctx, pair.AccessToken, pair.RefreshToken)
}

// Register creates an account and logs into it.
func (m *Manager) Register(ctx context.Context, req api.RegisterRequest) error {
	pair, err := m.backend.Register(ctx, req)
	if err != nil {
		return err
	}
	return m.Login(ctx, pair.AccessToken, pair.RefreshToken)
}

// Logout notifies the backend best-effort and always clears local state.
// It is safe to call repeatedly.
func (m *Manager) Logout(ctx context.Context) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.logoutLocked(logger.WithOperation(ctx, "logout"))
}

// UpdateUser replaces the stored and in-memory profile. On a storage failure
// the in-memory session is left unchanged.
func (m *Manager) UpdateUser(ctx context.Context, profile api.UserProfile) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	current := m.Session()
	if !current.Authenticated() {
		return apperrors.ErrNotAuthenticated
	}

	if err := m.store.SaveUser(ctx, profile); err != nil {
		return apperrors.Persistence("save user", err)
	}

	current.User = &profile
	m.transition(current)
	return nil
}

// Refresh renews the access token after stale was rejected. Concurrent callers
// share a single backend call. If the token already moved past stale, the
// current one is returned without calling the backend. A rejected or missing
// refresh token forces a logout and returns ErrRefreshFailed.
func (m *Manager) Refresh(ctx context.Context, stale string) (string, error) {
	ch := m.refreshGroup.DoChan("refresh", func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
		defer cancel()
		return m.refreshOnce(flightCtx, stale)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *Manager) refreshOnce(ctx context.Context, stale string) (string, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	ctx = logger.WithOperation(ctx, "refresh")
	log := m.logger.WithContext(ctx)

	current := m.Session()
	if !current.Authenticated() {
		metrics.TokenRefreshTotal.WithLabelValues("skipped").Inc()
		return "", fmt.Errorf("%w: no active session", apperrors.ErrRefreshFailed)
	}

	if current.AccessToken != stale {
		metrics.TokenRefreshTotal.WithLabelValues("skipped").Inc()
		log.Debug("access token already rotated", slog.String("token", logger.TokenPrefix(current.AccessToken)))
		return current.AccessToken, nil
	}

	if current.RefreshToken == "" {
		m.forceLogout(ctx, "no refresh token")
		return "", fmt.Errorf("%w: no refresh token", apperrors.ErrRefreshFailed)
	}

	pair, err := m.backend.RefreshToken(ctx, current.RefreshToken)
	if err != nil {
		m.forceLogout(ctx, err.Error())
		return "", fmt.Errorf("%w: %v", apperrors.ErrRefreshFailed, err)
	}

	if _, err := auth.DecodeClaims(pair.AccessToken); err != nil {
		m.forceLogout(ctx, "refreshed token invalid")
		return "", fmt.Errorf("%w: %v", apperrors.ErrRefreshFailed, err)
	}

	if err := m.store.SaveTokens(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		m.forceLogout(ctx, "token persistence failed")
		return "", fmt.Errorf("%w: %v", apperrors.ErrRefreshFailed, apperrors.Persistence("save tokens", err))
	}

	current.AccessToken = pair.AccessToken
	current.RefreshToken = pair.RefreshToken
	m.transition(current)

	metrics.TokenRefreshTotal.WithLabelValues("success").Inc()
	log.Info("access token refreshed", slog.String("token", logger.TokenPrefix(pair.AccessToken)))
	return pair.AccessToken, nil
}

func (m *Manager) forceLogout(ctx context.Context, reason string) {
	metrics.TokenRefreshTotal.WithLabelValues("rejected").Inc()
	metrics.ForcedLogoutsTotal.Inc()
	m.logger.WithContext(ctx).Error("token refresh failed, logging out", slog.String("reason", reason))
	m.logoutLocked(ctx)
}

// logoutLocked must be called with opMu held.
func (m *Manager) logoutLocked(ctx context.Context) {
	current := m.Session()
	log := m.logger.WithContext(ctx)

	if current.RefreshToken != "" {
		notifyCtx, cancel := context.WithTimeout(api.WithAccessToken(ctx, current.AccessToken), backendLogoutTimeout)
		if err := m.backend.Logout(notifyCtx, current.RefreshToken); err != nil {
			log.Warn("backend logout failed", slog.String("error", err.Error()))
		}
		cancel()
	}

	if err := m.store.Clear(ctx); err != nil {
		log.Warn("failed to clear stored session", slog.String("error", err.Error()))
	}

	m.transition(Session{Status: StatusUnauthenticated})
	if current.Authenticated() {
		log.Info("logged out", slog.String("user_id", current.UserID()))
	}
}

// reset clears storage and settles to Unauthenticated without contacting the backend.
func (m *Manager) reset(ctx context.Context, reason string) {
	log := m.logger.WithContext(ctx)
	if err := m.store.Clear(ctx); err != nil {
		log.Warn("failed to clear stored session", slog.String("error", err.Error()))
	}
	m.transition(Session{Status: StatusUnauthenticated})
	log.Info("session unauthenticated", slog.String("reason", reason))
}

func (m *Manager) transition(next Session) {
	m.mu.Lock()
	prev := m.session
	m.session = next
	m.mu.Unlock()

	if prev.Status != next.Status {
		metrics.SessionTransitionsTotal.WithLabelValues(next.Status.String()).Inc()
	}
	if prev.Status == next.Status && prev.UserID() == next.UserID() {
		return
	}

	m.listenersMu.Lock()
	fns := make([]func(Session), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.listenersMu.Unlock()

	for _, fn := range fns {
		fn(next.clone())
	}
}
