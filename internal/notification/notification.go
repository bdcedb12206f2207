package notification

import (
	"context"
	"log/slog"
)

const (
	// KindPurchase indicates a completed sale.
	KindPurchase = "purchase_completed"
	// KindTip indicates a received tip.
	KindTip = "tip_received"
	// KindSubscription indicates a subscription payment.
	KindSubscription = "subscription_paid"
	// KindDepositCompleted indicates a verified crypto deposit.
	KindDepositCompleted = "deposit_completed"
	// KindDepositRejected indicates a rejected crypto deposit; the body
	// carries the admin-supplied reason.
	KindDepositRejected = "deposit_rejected"
	// KindWithdrawalResolved indicates a withdrawal completed or failed.
	KindWithdrawalResolved = "withdrawal_resolved"
)

// Event describes a domain event emitted by the ledger. Delivery mechanics
// are external; the ledger only emits.
type Event struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier consumes ledger events for downstream delivery.
type Notifier interface {
	Send(ctx context.Context, event Event) error
}

// LoggerNotifier is a stub implementation that writes events to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the event to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, event Event) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", event.Kind, "destination", event.Destination, "body", event.Body)
	return nil
}
