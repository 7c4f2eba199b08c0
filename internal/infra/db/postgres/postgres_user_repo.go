package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"momo-billing/internal/domain"
	"momo-billing/internal/domain/model"
	"momo-billing/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*PostgresUserRepo)(nil)

type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

func (r *PostgresUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (
  id, email, subscription_level, subscription_end_date, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6
) ON CONFLICT (id) DO UPDATE SET
  email=$2, subscription_level=$3, subscription_end_date=$4, updated_at=$6;
`
	_, err := execSQL(ctx, r.pool, tx, q, u.ID, u.Email, string(u.SubscriptionLevel), u.SubscriptionEndDate, u.CreatedAt, u.UpdatedAt)
	return mapErr(err)
}

func (r *PostgresUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	q := `
SELECT id, email, subscription_level, subscription_end_date, created_at, updated_at
  FROM users WHERE id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	var (
		u     model.User
		level string
	)
	if err := row.Scan(&u.ID, &u.Email, &level, &u.SubscriptionEndDate, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	u.SubscriptionLevel = model.SubscriptionLevel(level)
	return &u, nil
}

func (r *PostgresUserRepo) UpdateSubscription(ctx context.Context, tx repository.Tx, userID string, level model.SubscriptionLevel, endDate *time.Time) error {
	const q = `UPDATE users SET subscription_level=$2, subscription_end_date=$3, updated_at=NOW() WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, userID, string(level), endDate)
	if err != nil {
		return mapErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepo) DowngradeExpired(ctx context.Context, tx repository.Tx, today time.Time) (int, error) {
	const q = `
UPDATE users
   SET subscription_level='free', updated_at=NOW()
 WHERE subscription_level='pro'
   AND subscription_end_date IS NOT NULL
   AND subscription_end_date < $1::date;`
	cmd, err := execSQL(ctx, r.pool, tx, q, today)
	if err != nil {
		return 0, mapErr(err)
	}
	return int(cmd.RowsAffected()), nil
}
