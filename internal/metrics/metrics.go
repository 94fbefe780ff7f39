// Package metrics holds the Prometheus collectors for the session and sync core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics namespace for all collectors in this module.
const metricsNamespace = "groupspend_sync"

// Session metrics.
var (
	// TokenRefreshTotal counts refresh attempts by result ("success", "rejected", "skipped").
	TokenRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "token_refresh_total",
			Help:      "Total access token refresh attempts",
		},
		[]string{"result"},
	)

	// ForcedLogoutsTotal counts logouts caused by an unrecoverable refresh failure.
	ForcedLogoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "forced_logouts_total",
			Help:      "Total logouts forced by refresh failure",
		},
	)

	// SessionTransitionsTotal counts session status transitions by target status.
	SessionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "session_transitions_total",
			Help:      "Total session status transitions",
		},
		[]string{"status"},
	)
)

// Polling metrics.
var (
	// PollTicksTotal counts poll ticks by engine and result ("success", "error", "unauthenticated").
	PollTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "poll_ticks_total",
			Help:      "Total poll ticks",
		},
		[]string{"engine", "result"},
	)

	// OutstandingItems tracks the unread/pending item count per engine.
	OutstandingItems = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "outstanding_items",
			Help:      "Unread or pending items observed on the last poll",
		},
		[]string{"engine"},
	)

	// PushEventsTotal counts push feed events by kind.
	PushEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "push_events_total",
			Help:      "Total push feed events received",
		},
		[]string{"kind"},
	)
)

// Alert metrics.
var (
	// AlertsEmittedTotal counts ephemeral alerts by source engine.
	AlertsEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "alerts_emitted_total",
			Help:      "Total ephemeral alerts emitted",
		},
		[]string{"source"},
	)
)

// Register registers every collector with reg.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		TokenRefreshTotal,
		ForcedLogoutsTotal,
		SessionTransitionsTotal,
		PollTicksTotal,
		OutstandingItems,
		PushEventsTotal,
		AlertsEmittedTotal,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}

	return nil
}
