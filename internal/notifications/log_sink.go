package notifications

import (
	"log/slog"

	"github.com/eternisai/groupspend-sync/internal/logger"
)

// LogSink writes alerts to the log, for headless runs.
type LogSink struct {
	logger *logger.Logger
}

// NewLogSink creates a sink logging under the "alert_sink" component.
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{logger: log.WithComponent("alert_sink")}
}

func (l *LogSink) Shown(alert Alert) {
	l.logger.Info("🔔 "+alert.Message,
		slog.String("alert_id", alert.ID),
		slog.String("kind", string(alert.Kind)),
		slog.String("source", alert.Source))
}

func (l *LogSink) Dismissed(alert Alert) {
	l.logger.Debug("alert cleared", slog.String("alert_id", alert.ID))
}
