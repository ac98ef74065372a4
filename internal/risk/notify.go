package risk

import (
	"go.uber.org/zap"
)

// NotificationKind distinguishes a trading pause from a plain alert.
type NotificationKind string

const (
	NotifyPause NotificationKind = "pause"
	NotifyAlert NotificationKind = "alert"
)

// Notification is emitted by account monitoring.
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	AccountID string           `json:"accountId"`
	Platform  string           `json:"platform"`
	Message   string           `json:"message"`
	Drawdown  float64          `json:"drawdown"`
}

// Notifier receives pause and alert notifications. Delivery (chat, mail,
// broker API) lives outside this package.
type Notifier interface {
	Notify(n Notification)
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier backed by logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (l *LogNotifier) Notify(n Notification) {
	l.logger.Warn("risk_notification",
		zap.String("kind", string(n.Kind)),
		zap.String("account", n.AccountID),
		zap.String("platform", n.Platform),
		zap.String("message", n.Message),
		zap.Float64("drawdown", n.Drawdown),
	)
}
