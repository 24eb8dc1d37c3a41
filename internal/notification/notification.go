package notification

import (
	"context"
	"log/slog"
)

const (
	// KindSettlement indicates a deposit settled a lease early.
	KindSettlement = "settlement"
	// KindLeaseExpired indicates the expiry path closed a lease.
	KindLeaseExpired = "lease_expired"
	// KindInconsistency indicates the ledger and identity stores disagree
	// and need out-of-band repair.
	KindInconsistency = "inconsistency"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems. Inconsistency
// messages in particular must never be dropped silently; the stub below
// writes them to the structured log for out-of-band repair.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	if message.Kind == KindInconsistency {
		n.logger.Error("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}
