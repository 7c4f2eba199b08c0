package repository

import (
	"context"
	"time"

	"momo-billing/internal/domain/model"
)

// -----------------------------
// Users
// -----------------------------

type UserRepository interface {
	Save(ctx context.Context, tx Tx, u *model.User) error
	// FindByID locks the row (FOR UPDATE) when tx is a transaction.
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	UpdateSubscription(ctx context.Context, tx Tx, userID string, level model.SubscriptionLevel, endDate *time.Time) error
	// DowngradeExpired moves pro users whose end date is before today to free and returns how many changed.
	DowngradeExpired(ctx context.Context, tx Tx, today time.Time) (int, error)
}
