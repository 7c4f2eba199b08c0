package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"momo-billing/internal/domain"
	"momo-billing/internal/domain/model"
	"momo-billing/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, user_id, transaction_id, amount, currency, status, plan_id, metadata, created_at, updated_at, subscription_start_date, subscription_end_date`

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (
  id, user_id, transaction_id, amount, currency, status, plan_id, metadata, created_at, updated_at, subscription_start_date, subscription_end_date
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8::jsonb,$9,$10,$11,$12
) ON CONFLICT (id) DO UPDATE SET
  status=$6, metadata=$8::jsonb, updated_at=$10, subscription_start_date=$11, subscription_end_date=$12;`

	meta, err := encodeMeta(p.Metadata)
	if err != nil {
		return err
	}
	_, err = execSQL(ctx, r.pool, tx, q, p.ID, p.UserID, p.TransactionID, p.Amount, p.Currency, string(p.Status), p.PlanID, meta, p.CreatedAt, p.UpdatedAt, p.SubscriptionStartDate, p.SubscriptionEndDate)
	return mapErr(err)
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	return r.findOne(ctx, tx, q, id)
}

func (r *paymentRepo) FindByTransactionID(ctx context.Context, tx repository.Tx, transactionID string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE transaction_id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	return r.findOne(ctx, tx, q, transactionID)
}

func (r *paymentRepo) findOne(ctx context.Context, tx repository.Tx, q string, arg interface{}) (*model.Payment, error) {
	row, err := pickRow(ctx, r.pool, tx, q, arg)
	if err != nil {
		return nil, err
	}
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *paymentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2;`
	return r.list(ctx, tx, q, userID, limit)
}

func (r *paymentRepo) ListStale(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE status IN ('pending','processing') AND updated_at < $1 ORDER BY updated_at ASC LIMIT $2;`
	return r.list(ctx, tx, q, olderThan, limit)
}

func (r *paymentRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Payment, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

// TransitionStatus sets status only while the stored status is one of from. Exactly one
// concurrent caller observes true for a given transition.
func (r *paymentRepo) TransitionStatus(
	ctx context.Context, tx repository.Tx, transactionID string, to model.PaymentStatus, from []model.PaymentStatus, meta map[string]interface{},
) (bool, error) {
	if len(from) == 0 {
		return false, domain.ErrInvalidTransition
	}
	const q = `
    UPDATE payments
       SET status = $2,
           metadata = COALESCE(metadata, '{}'::jsonb) || $3::jsonb,
           updated_at = NOW()
     WHERE transaction_id = $1
       AND status = ANY($4)`

	patch, err := encodeMeta(meta)
	if err != nil {
		return false, err
	}
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}
	cmd, err := execSQL(ctx, r.pool, tx, q, transactionID, string(to), patch, allowed)
	if err != nil {
		return false, mapErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *paymentRepo) MergeMetadata(ctx context.Context, tx repository.Tx, transactionID string, meta map[string]interface{}) error {
	const q = `UPDATE payments SET metadata = COALESCE(metadata, '{}'::jsonb) || $2::jsonb, updated_at = NOW() WHERE transaction_id = $1;`
	patch, err := encodeMeta(meta)
	if err != nil {
		return err
	}
	cmd, err := execSQL(ctx, r.pool, tx, q, transactionID, patch)
	if err != nil {
		return mapErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *paymentRepo) MarkChecked(ctx context.Context, tx repository.Tx, transactionID string) error {
	const q = `UPDATE payments SET updated_at = NOW() WHERE transaction_id = $1 AND status IN ('pending','processing');`
	if _, err := execSQL(ctx, r.pool, tx, q, transactionID); err != nil {
		return mapErr(err)
	}
	return nil
}

func (r *paymentRepo) SetSubscriptionDates(ctx context.Context, tx repository.Tx, transactionID string, start, end time.Time) error {
	const q = `UPDATE payments SET subscription_start_date=$2, subscription_end_date=$3, updated_at=NOW() WHERE transaction_id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, transactionID, start, end)
	if err != nil {
		return mapErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *paymentRepo) SumCompletedSince(ctx context.Context, tx repository.Tx, since time.Time) (int64, error) {
	const q = `SELECT COALESCE(SUM(amount),0) FROM payments WHERE status='completed' AND updated_at >= $1;`
	row, err := pickRow(ctx, r.pool, tx, q, since)
	if err != nil {
		return 0, err
	}
	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return sum, nil
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var (
		p      model.Payment
		status string
		meta   []byte
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.TransactionID, &p.Amount, &p.Currency, &status, &p.PlanID, &meta, &p.CreatedAt, &p.UpdatedAt, &p.SubscriptionStartDate, &p.SubscriptionEndDate); err != nil {
		return nil, err
	}
	p.Status = model.PaymentStatus(status)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &p.Metadata); err != nil {
			return nil, err
		}
	}
	if p.Metadata == nil {
		p.Metadata = map[string]interface{}{}
	}
	return &p, nil
}

func encodeMeta(meta map[string]interface{}) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", domain.ErrInvalidArgument
	}
	return string(b), nil
}
