// Package events is the optional push channel. The backend publishes a small
// tagged event per user on NATS; each event triggers an immediate poll of the
// matching engine so diffing and deduplication stay in one place.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/eternisai/groupspend-sync/internal/background"
	"github.com/eternisai/groupspend-sync/internal/logger"
	"github.com/eternisai/groupspend-sync/internal/metrics"
	"github.com/eternisai/groupspend-sync/internal/session"
)

// Timeout for the poll triggered by one event.
const pokeTimeout = 10 * time.Second

// Event is the payload published on a user's subject.
type Event struct {
	Kind background.Kind `json:"kind"`
	// ID is the invite or notification id, informational only.
	ID string `json:"id,omitempty"`
}

// Decode parses and validates an event payload.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if _, ok := background.ParseKind(string(ev.Kind)); !ok {
		return Event{}, fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	return ev, nil
}

// Subject returns the per-user subject, e.g. "groupspend.events.u-1".
func Subject(prefix, userID string) string {
	return prefix + "." + userID
}

// Poker polls one engine on demand.
type Poker interface {
	Poke(ctx context.Context, kind background.Kind)
}

// Feed keeps one NATS subscription bound to the authenticated user.
type Feed struct {
	nc     *nats.Conn
	prefix string
	poker  Poker
	logger *logger.Logger

	mu      sync.Mutex
	userID  string
	sub     *nats.Subscription
	stopped bool
}

// NewFeed creates a new push feed.
// Returns nil if NATS connection is not available.
func NewFeed(nc *nats.Conn, prefix string, poker Poker, logger *logger.Logger) *Feed {
	if nc == nil {
		return nil
	}
	return &Feed{
		nc:     nc,
		prefix: prefix,
		poker:  poker,
		logger: logger.WithComponent("push_feed"),
	}
}

// Follow moves the subscription to the session's user. Safe on a nil Feed.
func (f *Feed) Follow(s session.Session) {
	if f == nil {
		return
	}

	userID := ""
	if s.Authenticated() {
		userID = s.UserID()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped || userID == f.userID {
		return
	}

	if f.sub != nil {
		if err := f.sub.Unsubscribe(); err != nil {
			f.logger.Warn("failed to unsubscribe push feed", slog.String("error", err.Error()))
		}
		f.sub = nil
	}
	f.userID = userID

	if userID == "" {
		return
	}

	subject := Subject(f.prefix, userID)
	sub, err := f.nc.Subscribe(subject, f.handle)
	if err != nil {
		f.logger.Error("failed to subscribe push feed",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
		return
	}
	f.sub = sub

	f.logger.Info("push feed subscribed", slog.String("subject", subject))
}

func (f *Feed) handle(msg *nats.Msg) {
	ev, err := Decode(msg.Data)
	if err != nil {
		f.logger.Warn("received invalid push event",
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()))
		return
	}

	metrics.PushEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	f.logger.Debug("push event received",
		slog.String("kind", string(ev.Kind)),
		slog.String("id", ev.ID))

	ctx, cancel := context.WithTimeout(context.Background(), pokeTimeout)
	defer cancel()
	f.poker.Poke(ctx, ev.Kind)
}

// Stop drains the subscription and closes the connection. Safe on a nil Feed.
func (f *Feed) Stop() error {
	if f == nil {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.stopped = true
	f.sub = nil
	if err := f.nc.Drain(); err != nil {
		return fmt.Errorf("failed to drain connection: %w", err)
	}
	f.logger.Info("push feed stopped")
	return nil
}

// Connect dials NATS with reconnect logging.
func Connect(url string, log *logger.Logger) (*nats.Conn, error) {
	log = log.WithComponent("nats")

	nc, err := nats.Connect(url,
		nats.Name("groupspend-syncd"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return nc, nil
}
