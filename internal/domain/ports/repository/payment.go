package repository

import (
	"context"
	"time"

	"momo-billing/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

type PaymentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	FindByTransactionID(ctx context.Context, tx Tx, transactionID string) (*model.Payment, error)
	ListByUser(ctx context.Context, tx Tx, userID string, limit int) ([]*model.Payment, error)
	// ListStale returns non-terminal payments last updated before olderThan, oldest first.
	ListStale(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Payment, error)
	// TransitionStatus is the conditional write guarding every status change: it sets
	// status=to (merging meta into metadata) only while the stored status is one of from.
	// It reports whether this call performed the transition.
	TransitionStatus(ctx context.Context, tx Tx, transactionID string, to model.PaymentStatus, from []model.PaymentStatus, meta map[string]interface{}) (bool, error)
	MergeMetadata(ctx context.Context, tx Tx, transactionID string, meta map[string]interface{}) error
	// MarkChecked bumps updated_at on a non-terminal payment so ListStale rotates through
	// rows whose provider status has not moved.
	MarkChecked(ctx context.Context, tx Tx, transactionID string) error
	SetSubscriptionDates(ctx context.Context, tx Tx, transactionID string, start, end time.Time) error
	SumCompletedSince(ctx context.Context, tx Tx, since time.Time) (int64, error)
}

// PaymentCache keeps copies of payments that reached a terminal status. Get returns
// domain.ErrNotFound on a miss.
type PaymentCache interface {
	Get(ctx context.Context, transactionID string) (*model.Payment, error)
	Put(ctx context.Context, p *model.Payment) error
}
