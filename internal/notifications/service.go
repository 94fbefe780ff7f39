package notifications

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eternisai/groupspend-sync/internal/api"
	"github.com/eternisai/groupspend-sync/internal/logger"
	"github.com/eternisai/groupspend-sync/internal/metrics"
)

// DefaultTTL is how long an alert stays up unless dismissed.
const DefaultTTL = 5 * time.Second

type activeAlert struct {
	alert Alert
	timer *time.Timer
}

// Service raises alerts for newly outstanding items and expires them.
type Service struct {
	ttl    time.Duration
	logger *logger.Logger
	sinks  []Sink
	now    func() time.Time

	invites       *Deduplicator
	notifications *Deduplicator

	mu     sync.Mutex
	active map[string]*activeAlert
}

// NewService creates a new alert service. A non-positive ttl uses DefaultTTL.
func NewService(ttl time.Duration, logger *logger.Logger, sinks ...Sink) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		ttl:           ttl,
		logger:        logger.WithComponent("alerts"),
		sinks:         sinks,
		now:           time.Now,
		invites:       NewDeduplicator(),
		notifications: NewDeduplicator(),
		active:        make(map[string]*activeAlert),
	}
}

// InviteMessage renders the alert text for an invite.
func InviteMessage(inv api.PendingInvite) string {
	return fmt.Sprintf("You have a new invite to group %s from %s.", inv.GroupName, inv.InvitedByName)
}

// Invites raises one alert per pending invite not alerted before.
func (s *Service) Invites(items []api.PendingInvite) {
	for _, inv := range items {
		if inv.Status == api.InviteStatusAccepted || !s.invites.Admit(inv.ID) {
			continue
		}
		s.show(SourceInvites, inv.ID, KindInfo, InviteMessage(inv))
	}
}

// Notifications raises one alert per unread notification not alerted before.
// INVITE_ACCEPTED notifications use the success style.
func (s *Service) Notifications(items []api.NotificationItem) {
	for _, n := range items {
		if n.ReadStatus || !s.notifications.Admit(n.ID) {
			continue
		}
		kind := KindInfo
		if n.Type == api.NotificationTypeInviteAccepted {
			kind = KindSuccess
		}
		s.show(SourceNotifications, n.ID, kind, n.Message)
	}
}

func (s *Service) show(source, itemID string, kind AlertKind, message string) {
	now := s.now()
	alert := Alert{
		ID:        uuid.New().String(),
		Source:    source,
		ItemID:    itemID,
		Kind:      kind,
		Message:   message,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	entry := &activeAlert{alert: alert}

	s.mu.Lock()
	s.active[alert.ID] = entry
	entry.timer = time.AfterFunc(s.ttl, func() { s.expire(alert.ID, entry) })
	s.mu.Unlock()

	metrics.AlertsEmittedTotal.WithLabelValues(source).Inc()
	s.logger.Info("alert shown",
		slog.String("alert_id", alert.ID),
		slog.String("source", source),
		slog.String("item_id", itemID),
		slog.String("kind", string(kind)))

	for _, sink := range s.sinks {
		sink.Shown(alert)
	}
}

func (s *Service) expire(id string, entry *activeAlert) {
	s.mu.Lock()
	if s.active[id] != entry {
		s.mu.Unlock()
		return
	}
	delete(s.active, id)
	s.mu.Unlock()

	s.logger.Debug("alert expired", slog.String("alert_id", id))
	s.notifyDismissed(entry.alert)
}

// Dismiss removes an alert before it expires. It reports whether the alert was
// still active; dismissing twice is a no-op.
func (s *Service) Dismiss(id string) bool {
	s.mu.Lock()
	entry, ok := s.active[id]
	if ok {
		delete(s.active, id)
		entry.timer.Stop()
	}
	s.mu.Unlock()

	if !ok {
		return false
	}

	s.logger.Debug("alert dismissed", slog.String("alert_id", id))
	s.notifyDismissed(entry.alert)
	return true
}

// Active returns the alerts currently shown, oldest first.
func (s *Service) Active() []Alert {
	s.mu.Lock()
	out := make([]Alert, 0, len(s.active))
	for _, entry := range s.active {
		out = append(out, entry.alert)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Reset drops every active alert and forgets every shown id. Called on session teardown.
func (s *Service) Reset() {
	s.mu.Lock()
	for id, entry := range s.active {
		entry.timer.Stop()
		delete(s.active, id)
	}
	s.mu.Unlock()

	s.invites.Reset()
	s.notifications.Reset()
	s.logger.Debug("alert state reset")
}

func (s *Service) notifyDismissed(alert Alert) {
	for _, sink := range s.sinks {
		sink.Dismissed(alert)
	}
}
