package event

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/identity"
	"github.com/subgov/backend/internal/domain/ledger"
	"github.com/subgov/backend/internal/domain/shared"
	"github.com/subgov/backend/internal/domain/upgrade"
	"go.uber.org/zap"
)

// Notification is a tenant-facing message derived from a domain event
type Notification struct {
	TenantID  uuid.UUID      `json:"tenant_id"`
	EventID   uuid.UUID      `json:"event_id"`
	EventType string         `json:"event_type"`
	Subject   string         `json:"subject"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data,omitempty"`
}

// Notifier delivers notifications to tenants
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotificationHandler turns domain events into tenant notifications
type NotificationHandler struct {
	notifier Notifier
	logger   *zap.Logger
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notifier Notifier, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notifier: notifier, logger: logger}
}

// EventTypes implements shared.EventHandler
func (h *NotificationHandler) EventTypes() []string {
	return []string{
		billing.EventTypeUsageAlertRaised,
		upgrade.EventTypeRequestApproved,
		upgrade.EventTypeRequestRejected,
		upgrade.EventTypeRequestExpired,
		ledger.EventTypeTransactionStatusChanged,
		identity.EventTypeTenantTierChanged,
	}
}

// Handle implements shared.EventHandler
func (h *NotificationHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	n, ok := Compose(event)
	if !ok {
		return nil
	}
	if err := h.notifier.Notify(ctx, n); err != nil {
		return fmt.Errorf("notify %s: %w", event.EventType(), err)
	}
	h.logger.Debug("Notification dispatched",
		zap.String("event_type", n.EventType),
		zap.String("tenant_id", n.TenantID.String()))
	return nil
}

// Compose renders the notification for event. It returns false for events
// tenants are not told about, system events included.
func Compose(event shared.DomainEvent) (Notification, bool) {
	if shared.IsSystemEvent(event) {
		return Notification{}, false
	}
	n := Notification{
		TenantID:  event.TenantID(),
		EventID:   event.EventID(),
		EventType: event.EventType(),
	}
	switch e := event.(type) {
	case *billing.UsageAlertRaisedEvent:
		n.Subject = fmt.Sprintf("Usage %s: %s", e.Level, e.MetricType)
		n.Body = fmt.Sprintf("Your %s usage is at %.1f%% of the plan limit (%d of %d).",
			e.MetricType, e.Percentage, e.CurrentValue, e.LimitValue)
		n.Data = map[string]any{"metric_type": e.MetricType, "level": e.Level, "alert_id": e.AlertID}
	case *upgrade.RequestStatusChangedEvent:
		switch e.EventType() {
		case upgrade.EventTypeRequestApproved:
			n.Subject = "Upgrade approved"
			n.Body = fmt.Sprintf("Request %s was approved. Your plan is now %s.", e.RequestNumber, e.TargetTierCode)
		case upgrade.EventTypeRequestRejected:
			n.Subject = "Upgrade rejected"
			n.Body = fmt.Sprintf("Request %s was rejected: %s", e.RequestNumber, e.RejectionReason)
		case upgrade.EventTypeRequestExpired:
			n.Subject = "Upgrade request expired"
			n.Body = fmt.Sprintf("Request %s expired before payment was confirmed.", e.RequestNumber)
		default:
			return n, false
		}
		n.Data = map[string]any{"request_number": e.RequestNumber, "status": e.NewStatus}
	case *ledger.TransactionStatusChangedEvent:
		if e.NewStatus != ledger.StatusPaid && e.NewStatus != ledger.StatusRefunded {
			return n, false
		}
		n.Subject = fmt.Sprintf("Transaction %s %s", e.TransactionNumber, e.NewStatus)
		n.Body = fmt.Sprintf("Transaction %s is now %s (%d %s).", e.TransactionNumber, e.NewStatus, e.NetAmount, e.Currency)
		n.Data = map[string]any{"transaction_number": e.TransactionNumber, "status": e.NewStatus}
	case *identity.TenantTierChangedEvent:
		n.Subject = "Plan changed"
		n.Body = fmt.Sprintf("Your plan changed from %s to %s.", e.OldTier, e.NewTier)
	default:
		return n, false
	}
	return n, true
}
