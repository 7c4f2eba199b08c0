package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"momo-billing/internal/domain"
	"momo-billing/internal/domain/model"
	"momo-billing/internal/domain/ports/repository"
	"momo-billing/internal/infra/metrics"
)

// TransactionRecorder mirrors completed subscription payments into the user's ledger.
type TransactionRecorder interface {
	// RecordSubscriptionPayment inserts one expense row for p. Callers treat a failure
	// as non-fatal; the subscription extension stands regardless.
	RecordSubscriptionPayment(ctx context.Context, p *model.Payment, paidOn time.Time) error
}

var _ TransactionRecorder = (*transactionRecorder)(nil)

type transactionRecorder struct {
	txs repository.TransactionRepository
	log *zerolog.Logger
}

func NewTransactionRecorder(txs repository.TransactionRepository, logger *zerolog.Logger) *transactionRecorder {
	l := logger.With().Str("component", "TransactionRecorder").Logger()
	return &transactionRecorder{txs: txs, log: &l}
}

func (r *transactionRecorder) RecordSubscriptionPayment(ctx context.Context, p *model.Payment, paidOn time.Time) error {
	if p == nil || p.ID == "" || p.UserID == "" {
		return domain.ErrInvalidArgument
	}
	paymentID := p.ID
	t := &model.Transaction{
		ID:          uuid.NewString(),
		UserID:      p.UserID,
		PaymentID:   &paymentID,
		Type:        model.TransactionTypeExpense,
		Category:    model.SubscriptionCategory,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Description: model.SubscriptionDescription(p.PlanID, p.IsExtension()),
		Date:        paidOn,
		CreatedAt:   time.Now(),
	}
	if err := r.txs.Save(ctx, repository.NoTX, t); err != nil {
		metrics.IncTransactionRecord("error")
		r.log.Warn().Err(err).Str("deposit_id", p.TransactionID).Str("user_id", p.UserID).Msg("failed to record subscription transaction")
		return err
	}
	metrics.IncTransactionRecord("ok")
	return nil
}
