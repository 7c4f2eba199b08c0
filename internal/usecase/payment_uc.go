// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"momo-billing/internal/domain"
	"momo-billing/internal/domain/model"
	"momo-billing/internal/domain/ports/adapter"
	"momo-billing/internal/domain/ports/repository"
	"momo-billing/internal/infra/logging"
	"momo-billing/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

// Sources of a status change, used in logs and metrics.
const (
	SourceInitiate   = "initiate"
	SourceWebhook    = "webhook"
	SourcePoll       = "poll"
	SourceReconciler = "reconciler"
)

// ReasonNotFoundAtProvider marks pending deposits the provider never registered.
const ReasonNotFoundAtProvider = "NOT_FOUND_AT_PROVIDER"

type PaymentUseCase interface {
	// Initiate validates the request, persists a pending payment and asks the provider to charge the payer.
	Initiate(ctx context.Context, in InitiateDepositInput) (*model.Payment, error)
	// HandleCallback applies a status pushed by the provider.
	HandleCallback(ctx context.Context, st *adapter.DepositStatus) (*model.Payment, error)
	// CheckStatus re-queries the provider and applies the answer when it differs from
	// the stored status. An empty userID skips the ownership check (system callers).
	CheckStatus(ctx context.Context, userID, depositID string) (*StatusResult, error)
	GetPayment(ctx context.Context, userID, depositID string) (*model.Payment, error)
	ListPayments(ctx context.Context, userID string, limit int) ([]*model.Payment, error)
	RevenueSince(ctx context.Context, since time.Time) (int64, error)
}

type InitiateDepositInput struct {
	UserID        string
	Amount        int64
	PhoneNumber   string
	Correspondent string // explicit operator; detected from the phone prefix when empty
	PlanID        string
	Description   string
	IsExtension   bool
}

// StatusResult is what the polling endpoint returns.
type StatusResult struct {
	DepositID        string
	Status           model.PaymentStatus
	Message          string
	CorrespondentIDs map[string]string
	RejectionReason  string
	Payment          *model.Payment
}

// PaymentOptions carries billing settings; zero values fall back to defaults.
type PaymentOptions struct {
	Currency    string
	CountryCode string
	PlanID      string
	Location    *time.Location
	// AbandonAfter marks a pending payment failed once the provider reports it unknown
	// for this long. Zero disables it.
	AbandonAfter time.Duration
	// PhoneSealer, when set, encrypts the payer number before it is stored in metadata.
	PhoneSealer PhoneSealer
	Now         func() time.Time
}

type PhoneSealer interface {
	Encrypt(plaintext string) (string, error)
}

type paymentUC struct {
	payments repository.PaymentRepository
	users    repository.UserRepository
	recorder TransactionRecorder
	gateway  adapter.DepositGateway
	tm       repository.TransactionManager
	cache    repository.PaymentCache
	reporter adapter.ErrorReporter
	opts     PaymentOptions
	log      *zerolog.Logger
}

func NewPaymentUseCase(
	payments repository.PaymentRepository,
	users repository.UserRepository,
	recorder TransactionRecorder,
	gateway adapter.DepositGateway,
	tm repository.TransactionManager,
	cache repository.PaymentCache,
	reporter adapter.ErrorReporter,
	opts PaymentOptions,
	logger *zerolog.Logger,
) *paymentUC {
	if opts.Currency == "" {
		opts.Currency = "XAF"
	}
	if opts.CountryCode == "" {
		opts.CountryCode = model.DefaultCountryCode
	}
	if opts.PlanID == "" {
		opts.PlanID = model.DefaultPlanID
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if reporter == nil {
		reporter = adapter.NoopReporter{}
	}
	l := logger.With().Str("component", "PaymentUseCase").Logger()
	return &paymentUC{
		payments: payments,
		users:    users,
		recorder: recorder,
		gateway:  gateway,
		tm:       tm,
		cache:    cache,
		reporter: reporter,
		opts:     opts,
		log:      &l,
	}
}

func (u *paymentUC) validate(in *InitiateDepositInput) (msisdn, correspondent string, err error) {
	if strings.TrimSpace(in.UserID) == "" {
		return "", "", domain.NewValidationError("userId", "required")
	}
	if in.Amount <= 0 {
		return "", "", domain.NewValidationError("amount", "must be a positive number")
	}
	msisdn, err = model.NormalizePhone(in.PhoneNumber, u.opts.CountryCode)
	if err != nil {
		return "", "", err
	}
	correspondent, err = model.ResolveCorrespondent(in.Correspondent, msisdn)
	if err != nil {
		return "", "", err
	}
	if strings.TrimSpace(in.PlanID) == "" {
		in.PlanID = u.opts.PlanID
	}
	return msisdn, correspondent, nil
}

func (u *paymentUC) Initiate(ctx context.Context, in InitiateDepositInput) (*model.Payment, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Initiate")()

	msisdn, correspondent, err := u.validate(&in)
	if err != nil {
		metrics.IncDepositInitiation("invalid")
		return nil, err
	}

	storedPhone := msisdn
	if u.opts.PhoneSealer != nil {
		if storedPhone, err = u.opts.PhoneSealer.Encrypt(msisdn); err != nil {
			metrics.IncDepositInitiation("seal_error")
			return nil, fmt.Errorf("seal phone: %w", err)
		}
	}

	now := u.opts.Now()
	p := &model.Payment{
		ID:            uuid.NewString(),
		UserID:        in.UserID,
		TransactionID: uuid.NewString(),
		Amount:        in.Amount,
		Currency:      u.opts.Currency,
		Status:        model.PaymentStatusPending,
		PlanID:        in.PlanID,
		Metadata: map[string]interface{}{
			model.MetaIsExtension:   in.IsExtension,
			model.MetaCorrespondent: correspondent,
			model.MetaPhone:         storedPhone,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	log := u.log.With().Str("deposit_id", p.TransactionID).Str("user_id", p.UserID).Logger()

	if err := u.payments.Save(ctx, repository.NoTX, p); err != nil {
		metrics.IncDepositInitiation("db_error")
		log.Error().Err(err).Msg("failed to persist payment before initiation")
		return nil, err
	}

	desc := in.Description
	if desc == "" {
		desc = model.SubscriptionDescription(p.PlanID, in.IsExtension)
	}
	resp, gwErr := u.gateway.CreateDeposit(ctx, adapter.DepositRequest{
		DepositID:            p.TransactionID,
		Amount:               p.Amount,
		Currency:             p.Currency,
		Correspondent:        correspondent,
		PayerMSISDN:          msisdn,
		StatementDescription: desc,
		Metadata:             map[string]string{"userId": p.UserID, "planId": p.PlanID},
	})
	if gwErr == nil && resp != nil && resp.Status == model.ProviderAccepted {
		ok, err := u.payments.TransitionStatus(ctx, repository.NoTX, p.TransactionID, model.PaymentStatusProcessing,
			model.Predecessors(model.PaymentStatusProcessing), map[string]interface{}{model.MetaInitiationResponse: resp.Raw})
		if err != nil {
			// The provider has the deposit; the reconciler will pick the row up from pending.
			log.Error().Err(err).Msg("deposit accepted but status update failed")
		} else if ok {
			p.Status = model.PaymentStatusProcessing
			metrics.IncTransition(SourceInitiate, string(model.PaymentStatusPending), string(model.PaymentStatusProcessing))
		} else {
			// A callback or poll moved the row first.
			p = u.reload(ctx, p, model.PaymentStatusProcessing, false)
		}
		metrics.IncDepositInitiation("accepted")
		log.Info().Str("correspondent", correspondent).Int64("amount", p.Amount).Msg("deposit accepted")
		return p, nil
	}

	perr := initiationError(resp, gwErr)
	note := map[string]interface{}{model.MetaInitiationError: perr.Error()}
	if resp != nil && resp.Raw != nil {
		note[model.MetaInitiationResponse] = resp.Raw
	}
	if err := u.payments.MergeMetadata(ctx, repository.NoTX, p.TransactionID, note); err != nil {
		log.Warn().Err(err).Msg("failed to store initiation error")
	}
	p.Metadata[model.MetaInitiationError] = perr.Error()
	metrics.IncDepositInitiation("provider_error")
	log.Warn().Err(perr).Msg("deposit not accepted by provider")
	return p, perr
}

// initiationError turns anything but ACCEPTED into a ProviderError.
func initiationError(resp *adapter.DepositResponse, gwErr error) *domain.ProviderError {
	var pe *domain.ProviderError
	if errors.As(gwErr, &pe) {
		return pe
	}
	if gwErr != nil {
		return &domain.ProviderError{Op: "create_deposit", Err: gwErr}
	}
	if resp == nil {
		return &domain.ProviderError{Op: "create_deposit", Err: errors.New("empty provider response")}
	}
	reason := resp.RejectionReason
	if reason == "" {
		reason = "deposit not accepted"
	}
	return &domain.ProviderError{Op: "create_deposit", Status: resp.Status, Err: errors.New(reason)}
}

func (u *paymentUC) HandleCallback(ctx context.Context, st *adapter.DepositStatus) (*model.Payment, error) {
	if st == nil || st.DepositID == "" {
		return nil, domain.NewValidationError("depositId", "required")
	}
	ctx = logging.WithDepositID(ctx, st.DepositID)
	log := logging.With(ctx, u.log)

	p, err := u.payments.FindByTransactionID(ctx, repository.NoTX, st.DepositID)
	if err != nil {
		return nil, err
	}
	to, ok := model.MapProviderStatus(st.Status)
	if !ok {
		log.Warn().Str("provider_status", st.Status).Msg("ignoring unknown provider status")
		return p, nil
	}
	if p.Status == to || p.IsTerminal() {
		log.Debug().Str("status", string(p.Status)).Str("provider_status", st.Status).Msg("callback is a no-op")
		return p, nil
	}
	return u.apply(ctx, p, to, SourceWebhook, st)
}

func (u *paymentUC) CheckStatus(ctx context.Context, userID, depositID string) (*StatusResult, error) {
	if depositID == "" {
		return nil, domain.NewValidationError("depositId", "required")
	}
	ctx = logging.WithDepositID(ctx, depositID)
	log := logging.With(ctx, u.log)
	source := SourcePoll
	if userID == "" {
		source = SourceReconciler
	}

	if u.cache != nil {
		if p, err := u.cache.Get(ctx, depositID); err == nil && (userID == "" || p.UserID == userID) {
			return resultFor(p, nil), nil
		}
	}

	p, err := u.payments.FindByTransactionID(ctx, repository.NoTX, depositID)
	if err != nil {
		return nil, err
	}
	if userID != "" && p.UserID != userID {
		return nil, domain.ErrNotFound
	}
	if p.IsTerminal() {
		u.cachePut(ctx, p)
		return resultFor(p, nil), nil
	}

	st, err := u.gateway.GetDeposit(ctx, depositID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return u.handleUnknownAtProvider(ctx, p, source)
		}
		metrics.IncPoll("provider_error")
		log.Warn().Err(err).Msg("provider status query failed; payment left untouched")
		var pe *domain.ProviderError
		if !errors.As(err, &pe) {
			err = &domain.ProviderError{Op: "get_deposit", Err: err}
		}
		return nil, err
	}

	to, ok := model.MapProviderStatus(st.Status)
	if !ok {
		metrics.IncPoll("unknown_status")
		log.Warn().Str("provider_status", st.Status).Msg("ignoring unknown provider status")
		u.markChecked(ctx, p, source)
		return resultFor(p, st), nil
	}
	if p.Status == to {
		metrics.IncPoll("unchanged")
		u.markChecked(ctx, p, source)
		return resultFor(p, st), nil
	}

	updated, err := u.apply(ctx, p, to, source, st)
	if err != nil {
		metrics.IncPoll("db_error")
		return nil, err
	}
	metrics.IncPoll("updated")
	return resultFor(updated, st), nil
}

// handleUnknownAtProvider fails a pending payment the provider never registered once it
// is older than AbandonAfter. Younger rows are left alone: the create call may still land.
func (u *paymentUC) handleUnknownAtProvider(ctx context.Context, p *model.Payment, source string) (*StatusResult, error) {
	metrics.IncPoll("not_found")
	if u.opts.AbandonAfter <= 0 || p.Status != model.PaymentStatusPending || u.opts.Now().Sub(p.CreatedAt) < u.opts.AbandonAfter {
		u.markChecked(ctx, p, source)
		return resultFor(p, nil), nil
	}
	st := &adapter.DepositStatus{DepositID: p.TransactionID, Status: model.ProviderFailed, RejectionReason: ReasonNotFoundAtProvider}
	updated, err := u.apply(ctx, p, model.PaymentStatusFailed, source, st)
	if err != nil {
		return nil, err
	}
	return resultFor(updated, st), nil
}

func (u *paymentUC) GetPayment(ctx context.Context, userID, depositID string) (*model.Payment, error) {
	p, err := u.payments.FindByTransactionID(ctx, repository.NoTX, depositID)
	if err != nil {
		return nil, err
	}
	if userID != "" && p.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (u *paymentUC) ListPayments(ctx context.Context, userID string, limit int) ([]*model.Payment, error) {
	if userID == "" {
		return nil, domain.NewValidationError("userId", "required")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return u.payments.ListByUser(ctx, repository.NoTX, userID, limit)
}

func (u *paymentUC) RevenueSince(ctx context.Context, since time.Time) (int64, error) {
	return u.payments.SumCompletedSince(ctx, repository.NoTX, since)
}

// apply moves p to `to` through the conditional write. Only the caller whose write
// succeeds runs the side effects; everyone else gets the fresh row back.
func (u *paymentUC) apply(ctx context.Context, p *model.Payment, to model.PaymentStatus, source string, st *adapter.DepositStatus) (*model.Payment, error) {
	log := logging.With(ctx, u.log).With().Str("source", source).Str("from", string(p.Status)).Str("to", string(to)).Logger()
	meta := statusMeta(st, to)

	if to != model.PaymentStatusCompleted {
		ok, err := u.payments.TransitionStatus(ctx, repository.NoTX, p.TransactionID, to, model.Predecessors(to), meta)
		if err != nil {
			return nil, u.reconcileFailed(ctx, p, to, err)
		}
		if ok {
			metrics.IncTransition(source, string(p.Status), string(to))
			metrics.IncPayment(string(to))
			log.Info().Str("reason", st.RejectionReason).Msg("payment status updated")
		}
		return u.reload(ctx, p, to, ok), nil
	}

	now := u.opts.Now()
	today := model.DateOnly(now, u.opts.Location)
	var (
		won    bool
		newEnd time.Time
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := u.payments.TransitionStatus(ctx, tx, p.TransactionID, to, model.Predecessors(to), meta)
		if err != nil || !ok {
			return err
		}
		won = true

		user, err := u.users.FindByID(ctx, tx, p.UserID)
		if err != nil {
			return err
		}
		newEnd = model.ComputeNewEndDate(user.SubscriptionEndDate, p.IsExtension(), today)
		if err := u.users.UpdateSubscription(ctx, tx, user.ID, model.SubscriptionLevelPro, &newEnd); err != nil {
			return err
		}
		return u.payments.SetSubscriptionDates(ctx, tx, p.TransactionID, now, newEnd)
	})
	if err != nil {
		return nil, u.reconcileFailed(ctx, p, to, err)
	}
	if !won {
		log.Debug().Msg("completion already applied by a concurrent caller")
		return u.reload(ctx, p, to, false), nil
	}

	metrics.IncTransition(source, string(p.Status), string(to))
	metrics.IncPayment(string(to))
	metrics.AddPaymentRevenue(p.Currency, p.Amount)
	metrics.IncSubscriptionExtended(p.IsExtension())
	log.Info().Time("subscription_end_date", newEnd).Bool("extension", p.IsExtension()).Msg("payment completed; subscription extended")

	updated := u.reload(ctx, p, to, true)
	if updated.SubscriptionEndDate == nil {
		updated.SubscriptionStartDate, updated.SubscriptionEndDate = &now, &newEnd
	}
	if err := u.recorder.RecordSubscriptionPayment(ctx, updated, today); err != nil {
		log.Warn().Err(err).Msg("ledger insert failed; subscription extension kept")
	}
	u.cachePut(ctx, updated)
	return updated, nil
}

func (u *paymentUC) reconcileFailed(ctx context.Context, p *model.Payment, to model.PaymentStatus, err error) error {
	rerr := &domain.ReconciliationError{DepositID: p.TransactionID, Status: string(to), Err: err}
	logging.With(ctx, u.log).Error().Err(err).Str("deposit_id", p.TransactionID).Str("target_status", string(to)).
		Msg("failed to apply provider status; needs reconciliation")
	u.reporter.Report(ctx, rerr, map[string]string{"deposit_id": p.TransactionID, "status": string(to)})
	return rerr
}

// reload reads the row back after a write. On a read failure the in-memory copy is
// advanced when this caller performed the transition.
func (u *paymentUC) reload(ctx context.Context, p *model.Payment, to model.PaymentStatus, won bool) *model.Payment {
	fresh, err := u.payments.FindByTransactionID(ctx, repository.NoTX, p.TransactionID)
	if err == nil {
		return fresh
	}
	cp := *p
	if won {
		cp.Status = to
	}
	return &cp
}

// markChecked moves a reconciler-checked row to the back of the stale queue.
func (u *paymentUC) markChecked(ctx context.Context, p *model.Payment, source string) {
	if source != SourceReconciler {
		return
	}
	if err := u.payments.MarkChecked(ctx, repository.NoTX, p.TransactionID); err != nil {
		u.log.Warn().Err(err).Str("deposit_id", p.TransactionID).Msg("failed to mark payment checked")
	}
}

func (u *paymentUC) cachePut(ctx context.Context, p *model.Payment) {
	if u.cache == nil || !p.IsTerminal() {
		return
	}
	if err := u.cache.Put(ctx, p); err != nil {
		u.log.Debug().Err(err).Str("deposit_id", p.TransactionID).Msg("status cache write failed")
	}
}

func statusMeta(st *adapter.DepositStatus, to model.PaymentStatus) map[string]interface{} {
	meta := map[string]interface{}{}
	if st == nil {
		return meta
	}
	if st.Raw != nil {
		meta[model.MetaProviderPayload] = st.Raw
	}
	if len(st.CorrespondentIDs) > 0 {
		meta["correspondent_ids"] = st.CorrespondentIDs
	}
	if st.DepositedAmount != "" {
		meta["deposited_amount"] = st.DepositedAmount
	}
	if to == model.PaymentStatusFailed && st.RejectionReason != "" {
		meta[model.MetaRejectionReason] = st.RejectionReason
	}
	return meta
}

func resultFor(p *model.Payment, st *adapter.DepositStatus) *StatusResult {
	r := &StatusResult{
		DepositID:       p.TransactionID,
		Status:          p.Status,
		RejectionReason: p.RejectionReason(),
		Payment:         p,
	}
	if st != nil {
		r.CorrespondentIDs = st.CorrespondentIDs
		if r.RejectionReason == "" && p.Status == model.PaymentStatusFailed {
			r.RejectionReason = st.RejectionReason
		}
	}
	if r.CorrespondentIDs == nil {
		if ids, ok := p.Metadata["correspondent_ids"].(map[string]interface{}); ok {
			r.CorrespondentIDs = make(map[string]string, len(ids))
			for k, v := range ids {
				if s, ok := v.(string); ok {
					r.CorrespondentIDs[k] = s
				}
			}
		}
	}
	r.Message = StatusMessage(r.Status, r.RejectionReason)
	return r
}

// StatusMessage is the user-facing text for a payment status.
func StatusMessage(s model.PaymentStatus, reason string) string {
	switch s {
	case model.PaymentStatusPending:
		return "Waiting for the operator to register the payment request."
	case model.PaymentStatusProcessing:
		return "Confirm the payment on your phone to continue."
	case model.PaymentStatusCompleted:
		return "Payment confirmed. Your Pro plan is active."
	case model.PaymentStatusFailed:
		if reason != "" {
			return "Payment rejected by the operator: " + reason
		}
		return "Payment failed. No money was taken."
	}
	return "Unknown payment status."
}
