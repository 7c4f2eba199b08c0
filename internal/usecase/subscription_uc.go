// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"momo-billing/internal/domain"
	"momo-billing/internal/domain/model"
	"momo-billing/internal/domain/ports/repository"
	"momo-billing/internal/infra/metrics"
)

var _ SubscriptionUseCase = (*subscriptionUC)(nil)

type SubscriptionUseCase interface {
	// GetSubscription returns the caller's level and end date. A pro user whose end
	// date has passed is reported as free even before the expiry worker runs.
	GetSubscription(ctx context.Context, userID string) (*SubscriptionView, error)
	// DowngradeExpired moves lapsed pro users to free and returns how many changed.
	DowngradeExpired(ctx context.Context) (int, error)
}

type SubscriptionView struct {
	UserID  string
	Level   model.SubscriptionLevel
	EndDate *time.Time
	Active  bool
}

type subscriptionUC struct {
	users repository.UserRepository
	loc   *time.Location
	now   func() time.Time
	log   *zerolog.Logger
}

func NewSubscriptionUseCase(users repository.UserRepository, loc *time.Location, now func() time.Time, logger *zerolog.Logger) *subscriptionUC {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	l := logger.With().Str("component", "SubscriptionUseCase").Logger()
	return &subscriptionUC{users: users, loc: loc, now: now, log: &l}
}

func (uc *subscriptionUC) GetSubscription(ctx context.Context, userID string) (*SubscriptionView, error) {
	if userID == "" {
		return nil, domain.NewValidationError("userId", "required")
	}
	u, err := uc.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	today := model.DateOnly(uc.now(), uc.loc)
	v := &SubscriptionView{
		UserID:  u.ID,
		Level:   u.SubscriptionLevel,
		EndDate: u.SubscriptionEndDate,
		Active:  u.ActiveOn(today),
	}
	if v.Level == model.SubscriptionLevelPro && !v.Active {
		v.Level = model.SubscriptionLevelFree
	}
	return v, nil
}

func (uc *subscriptionUC) DowngradeExpired(ctx context.Context) (int, error) {
	today := model.DateOnly(uc.now(), uc.loc)
	n, err := uc.users.DowngradeExpired(ctx, repository.NoTX, today)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.IncSubscriptionsExpired(n)
		uc.log.Info().Int("count", n).Time("today", today).Msg("downgraded expired subscriptions")
	}
	return n, nil
}
