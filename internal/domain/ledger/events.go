package ledger

import (
	"github.com/subgov/backend/internal/domain/shared"
)

// AggregateTypeBillingTransaction is the aggregate type of ledger entries
const AggregateTypeBillingTransaction = "BillingTransaction"

// Event type constants
const (
	EventTypeTransactionCreated       = "BillingTransactionCreated"
	EventTypeTransactionStatusChanged = "BillingTransactionStatusChanged"
)

// TransactionCreatedEvent is published when a ledger entry is opened
type TransactionCreatedEvent struct {
	shared.BaseDomainEvent
	TransactionNumber string          `json:"transaction_number"`
	Type              TransactionType `json:"type"`
	Source            Source          `json:"source"`
	Amount            int64           `json:"amount"`
	Currency          string          `json:"currency"`
}

// NewTransactionCreatedEvent creates a new TransactionCreatedEvent
func NewTransactionCreatedEvent(t *BillingTransaction) *TransactionCreatedEvent {
	return &TransactionCreatedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeTransactionCreated, AggregateTypeBillingTransaction, t.ID, t.TenantID),
		TransactionNumber: t.TransactionNumber,
		Type:              t.Type,
		Source:            t.Source,
		Amount:            t.Amount,
		Currency:          t.Currency,
	}
}

// TransactionStatusChangedEvent is published on every state machine transition
type TransactionStatusChangedEvent struct {
	shared.BaseDomainEvent
	TransactionNumber string            `json:"transaction_number"`
	Type              TransactionType   `json:"type"`
	OldStatus         TransactionStatus `json:"old_status"`
	NewStatus         TransactionStatus `json:"new_status"`
	Amount            int64             `json:"amount"`
	DiscountAmount    int64             `json:"discount_amount"`
	NetAmount         int64             `json:"net_amount"`
	Currency          string            `json:"currency"`
	Reason            string            `json:"reason,omitempty"`
}

// NewTransactionStatusChangedEvent creates a new TransactionStatusChangedEvent
func NewTransactionStatusChangedEvent(t *BillingTransaction, old TransactionStatus, reason string) *TransactionStatusChangedEvent {
	return &TransactionStatusChangedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeTransactionStatusChanged, AggregateTypeBillingTransaction, t.ID, t.TenantID),
		TransactionNumber: t.TransactionNumber,
		Type:              t.Type,
		OldStatus:         old,
		NewStatus:         t.Status,
		Amount:            t.Amount,
		DiscountAmount:    t.DiscountAmount,
		NetAmount:         t.NetAmount(),
		Currency:          t.Currency,
		Reason:            reason,
	}
}
