// Package events defines the outbound event contract. Completed transactions
// are announced to interested consumers (notifications, analytics); delivery
// is best-effort and never part of the ledger's unit of work.
package events

import (
	"time"

	"demobank/internal/money"
)

// TopicTransactionCompleted carries TransactionCompleted events.
const TopicTransactionCompleted = "transaction_completed"

// TransactionCompleted is emitted whenever a transaction reaches the
// completed state: synchronous deposits, approved withdrawals and admin
// custom entries alike.
type TransactionCompleted struct {
	TransactionID string       `json:"transaction_id"`
	AccountID     string       `json:"account_id"`
	Type          string       `json:"type"`
	Amount        money.Amount `json:"amount"`
	BalanceAfter  money.Amount `json:"balance_after"`
	OccurredAt    time.Time    `json:"occurred_at"`
}

// Publisher sends an event to a topic.
type Publisher interface {
	Publish(topic string, event any) error
}

// NopPublisher discards events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(string, any) error { return nil }
