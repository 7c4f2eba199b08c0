package repository

import (
	"context"

	"momo-billing/internal/domain/model"
)

// TransactionRepository persists the user's finance ledger rows.
type TransactionRepository interface {
	// Save inserts t; a second row for the same payment id is silently ignored.
	Save(ctx context.Context, tx Tx, t *model.Transaction) error
	ListByUser(ctx context.Context, tx Tx, userID string, limit int) ([]*model.Transaction, error)
}
