// Package events publishes reconciliation audit events so downstream
// consumers (aggregates, notifications) can react to applied batches.
package events

import (
	"context"
	"time"
)

// BatchReconciled is emitted once per applied ingestion batch.
type BatchReconciled struct {
	BatchID   string `json:"batch_id"`
	UserID    string `json:"user_id"`
	AccountID string `json:"account_id"`

	Inserted          int `json:"inserted"`
	Deleted           int `json:"deleted"`
	DuplicatesSkipped int `json:"duplicates_skipped"`
	PendingReconciled int `json:"pending_reconciled"`
	TransfersLinked   int `json:"transfers_linked"`

	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher emits audit events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	PublishBatchReconciled(ctx context.Context, event BatchReconciled) error
	Close() error
}

// NopPublisher discards every event. Used when no broker is
// configured.
type NopPublisher struct{}

func (NopPublisher) PublishBatchReconciled(ctx context.Context, event BatchReconciled) error {
	return nil
}

func (NopPublisher) Close() error { return nil }
