package background

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eternisai/groupspend-sync/internal/api"
	apperrors "github.com/eternisai/groupspend-sync/internal/errors"
	"github.com/eternisai/groupspend-sync/internal/logger"
	"github.com/eternisai/groupspend-sync/internal/session"
)

// Sessions is the part of session.Manager the sync manager follows.
type Sessions interface {
	Session() session.Session
	Subscribe(fn func(session.Session)) func()
}

// Alerter receives newly arrived outstanding items and is reset on session teardown.
type Alerter interface {
	Invites(items []api.PendingInvite)
	Notifications(items []api.NotificationItem)
	Reset()
}

// Config holds the poll intervals.
type Config struct {
	InviteInterval       time.Duration
	NotificationInterval time.Duration
	ShutdownTimeout      time.Duration
}

// SyncManager owns the invites and notifications engines and keeps them bound
// to the authenticated user.
//
// Responsibilities:
//   - Restart both engines on login, logout and account switch
//   - Forward "new items" snapshots to the alerter
//   - Aggregate unread counts
//   - Mark-read and accept actions followed by an immediate poll
//   - Graceful shutdown
//
// Thread-safety: All methods are thread-safe.
type SyncManager struct {
	invites       *Engine[api.PendingInvite]
	notifications *Engine[api.NotificationItem]
	inviteAPI     InviteAPI
	notifyAPI     NotificationAPI
	sessions      Sessions
	alerter       Alerter
	logger        *logger.Logger
	cfg           Config

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	identity    string
	subject     string
	unsubscribe func()

	// followMu serializes identity changes; notified is set once the
	// subscription has delivered one.
	followMu sync.Mutex
	notified bool
}

// NewSyncManager creates a new sync manager. alerter may be nil.
func NewSyncManager(
	inviteAPI InviteAPI,
	notifyAPI NotificationAPI,
	sessions Sessions,
	alerter Alerter,
	logger *logger.Logger,
	cfg Config,
) *SyncManager {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	m := &SyncManager{
		invites:       NewEngine(InviteSource(inviteAPI), cfg.InviteInterval, logger),
		notifications: NewEngine(NotificationSource(notifyAPI), cfg.NotificationInterval, logger),
		inviteAPI:     inviteAPI,
		notifyAPI:     notifyAPI,
		sessions:      sessions,
		alerter:       alerter,
		logger:        logger.WithComponent("sync_manager"),
		cfg:           cfg,
	}

	m.invites.OnUpdate(func(s Snapshot[api.PendingInvite]) {
		if m.alerter != nil && s.HasNew && len(s.Arrived) > 0 {
			m.alerter.Invites(s.Outstanding)
		}
	})
	m.notifications.OnUpdate(func(s Snapshot[api.NotificationItem]) {
		if m.alerter != nil && s.HasNew && len(s.Arrived) > 0 {
			m.alerter.Notifications(s.Outstanding)
		}
	})

	return m
}

// Invites returns the invites engine.
func (m *SyncManager) Invites() *Engine[api.PendingInvite] {
	return m.invites
}

// Notifications returns the notifications engine.
func (m *SyncManager) Notifications() *Engine[api.NotificationItem] {
	return m.notifications
}

// Start follows the session manager until Shutdown. It is non-blocking.
func (m *SyncManager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	unsubscribe := m.sessions.Subscribe(func(s session.Session) {
		m.followMu.Lock()
		defer m.followMu.Unlock()
		m.notified = true
		m.follow(s)
	})

	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.mu.Unlock()

	// A transition delivered since Subscribe is newer than any snapshot read here.
	m.followMu.Lock()
	if !m.notified {
		m.follow(m.sessions.Session())
	}
	m.followMu.Unlock()

	m.logger.Info("sync manager started",
		slog.Duration("invite_interval", m.cfg.InviteInterval),
		slog.Duration("notification_interval", m.cfg.NotificationInterval))
}

// follow restarts both engines when the authenticated identity changes.
func (m *SyncManager) follow(s session.Session) {
	identity, subject := "", ""
	if s.Authenticated() {
		identity, subject = s.UserID(), s.Subject()
	}

	m.mu.Lock()
	if m.ctx == nil || m.ctx.Err() != nil || identity == m.identity {
		m.mu.Unlock()
		return
	}
	previous := m.identity
	m.identity, m.subject = identity, subject
	ctx := m.ctx
	m.mu.Unlock()

	// Restart bumps the engine generation, so no tick of the previous
	// identity can reach the alerter once it has been reset.
	m.invites.Restart(ctx, identity)
	m.notifications.Restart(ctx, identity)

	if previous != "" && m.alerter != nil {
		m.alerter.Reset()
	}

	m.logger.Info("sync identity changed",
		slog.String("previous_user_id", previous),
		slog.String("user_id", identity))
}

// PendingInvites returns the invites observed on the last poll.
func (m *SyncManager) PendingInvites() []api.PendingInvite {
	return m.invites.Snapshot().Items
}

// NotificationItems returns the notifications observed on the last poll.
func (m *SyncManager) NotificationItems() []api.NotificationItem {
	return m.notifications.Snapshot().Items
}

// Poke polls one engine immediately.
func (m *SyncManager) Poke(ctx context.Context, kind Kind) {
	switch kind {
	case KindInvites:
		m.invites.Refresh(ctx)
	case KindNotifications:
		m.notifications.Refresh(ctx)
	}
}

// Unread aggregates the outstanding counts of both engines.
func (m *SyncManager) Unread() Unread {
	inv := m.invites.Snapshot()
	notes := m.notifications.Snapshot()

	return Unread{
		Invites:             len(inv.Outstanding),
		Notifications:       len(notes.Outstanding),
		Total:               len(inv.Outstanding) + len(notes.Outstanding),
		HasNewInvites:       inv.HasNew,
		HasNewNotifications: notes.HasNew,
	}
}

// Acknowledge clears the "new items" signal of one engine locally.
func (m *SyncManager) Acknowledge(kind Kind) error {
	switch kind {
	case KindInvites:
		m.invites.ClearNew()
	case KindNotifications:
		m.notifications.ClearNew()
	default:
		return fmt.Errorf("%w: unknown kind %q", apperrors.ErrValidation, kind)
	}
	return nil
}

// MarkRead marks one notification read and re-polls.
func (m *SyncManager) MarkRead(ctx context.Context, id string) error {
	if err := m.requireSession(); err != nil {
		return err
	}
	if err := m.notifyAPI.MarkNotificationRead(ctx, id); err != nil {
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}
	m.notifications.Refresh(ctx)
	return nil
}

// MarkAllRead marks every outstanding notification read on the server, one
// request per item, then re-polls so the server stays the source of truth.
// Failures are joined; successfully marked items stay marked.
func (m *SyncManager) MarkAllRead(ctx context.Context) error {
	if err := m.requireSession(); err != nil {
		return err
	}

	var errs []error
	for _, n := range m.notifications.Snapshot().Outstanding {
		if err := m.notifyAPI.MarkNotificationRead(ctx, n.ID); err != nil {
			errs = append(errs, fmt.Errorf("mark notification %s read: %w", n.ID, err))
		}
	}

	m.notifications.ClearNew()
	m.notifications.Refresh(ctx)

	if len(errs) > 0 {
		m.logger.WithContext(ctx).Warn("mark all read partially failed", slog.Int("failures", len(errs)))
	}
	return errors.Join(errs...)
}

// DeleteNotification removes one notification and re-polls.
func (m *SyncManager) DeleteNotification(ctx context.Context, id string) error {
	if err := m.requireSession(); err != nil {
		return err
	}
	if err := m.notifyAPI.DeleteNotification(ctx, id); err != nil {
		return fmt.Errorf("delete notification %s: %w", id, err)
	}
	m.notifications.Refresh(ctx)
	return nil
}

// AcceptInvite accepts an invite as the current user and re-polls both engines.
func (m *SyncManager) AcceptInvite(ctx context.Context, inviteToken string) (api.PendingInvite, error) {
	if err := m.requireSession(); err != nil {
		return api.PendingInvite{}, err
	}

	m.mu.Lock()
	subject := m.subject
	m.mu.Unlock()

	inv, err := m.inviteAPI.AcceptInvite(ctx, inviteToken, subject)
	if err != nil {
		return api.PendingInvite{}, fmt.Errorf("accept invite: %w", err)
	}

	m.invites.Refresh(ctx)
	m.notifications.Refresh(ctx)
	return inv, nil
}

func (m *SyncManager) requireSession() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity == "" {
		return apperrors.ErrNotAuthenticated
	}
	return nil
}

// Shutdown stops following the session and waits for in-flight polls.
func (m *SyncManager) Shutdown() error {
	m.mu.Lock()
	cancel, unsubscribe := m.cancel, m.unsubscribe
	m.mu.Unlock()

	m.logger.Info("shutting down sync manager")

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		m.invites.Stop()
		m.notifications.Stop()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("all sync engines shut down successfully")
		return nil
	case <-time.After(m.cfg.ShutdownTimeout):
		m.logger.Warn("sync manager shutdown timed out, some polls may still be running")
		return fmt.Errorf("shutdown timeout after %s", m.cfg.ShutdownTimeout)
	}
}
