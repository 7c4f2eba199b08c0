package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"momo-billing/internal/domain/model"
	"momo-billing/internal/domain/ports/repository"
)

var _ repository.TransactionRepository = (*transactionRepo)(nil)

type transactionRepo struct{ pool *pgxpool.Pool }

func NewTransactionRepo(pool *pgxpool.Pool) *transactionRepo {
	return &transactionRepo{pool: pool}
}

// Save ignores a second row for the same payment; the unique payment_id index arbitrates.
func (r *transactionRepo) Save(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	const q = `
INSERT INTO transactions (
  id, user_id, payment_id, type, category, amount, currency, description, date, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
) ON CONFLICT (payment_id) DO NOTHING;`
	_, err := execSQL(ctx, r.pool, tx, q, t.ID, t.UserID, t.PaymentID, string(t.Type), t.Category, t.Amount, t.Currency, t.Description, t.Date, t.CreatedAt)
	return mapErr(err)
}

func (r *transactionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, user_id, payment_id, type, category, amount, currency, description, date, created_at
  FROM transactions WHERE user_id=$1 ORDER BY date DESC, created_at DESC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		var (
			t   model.Transaction
			typ string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.PaymentID, &typ, &t.Category, &t.Amount, &t.Currency, &t.Description, &t.Date, &t.CreatedAt); err != nil {
			return nil, mapErr(err)
		}
		t.Type = model.TransactionType(typ)
		out = append(out, &t)
	}
	return out, mapErr(rows.Err())
}
