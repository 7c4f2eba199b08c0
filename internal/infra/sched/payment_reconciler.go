package sched

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"momo-billing/internal/domain"
	"momo-billing/internal/domain/ports/repository"
	"momo-billing/internal/infra/metrics"
	"momo-billing/internal/infra/worker"
	"momo-billing/internal/usecase"
)

const reconcilerLockKey = "lock:payment_reconciler"

// Locker is the part of the Redis lock the reconciler needs.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

type ReconcilerOptions struct {
	Interval   time.Duration // how often to scan
	StaleAfter time.Duration // how long a non-terminal payment must sit untouched before a re-check
	BatchSize  int
	LockTTL    time.Duration
	Now        func() time.Time
}

// PaymentReconciler periodically re-checks pending and processing payments whose
// webhook never arrived, or whose initiation crashed half way, through the same
// CheckStatus path the polling endpoint uses.
type PaymentReconciler struct {
	checker  usecase.StatusChecker
	payments repository.PaymentRepository
	locker   Locker
	pool     *worker.Pool
	opts     ReconcilerOptions
	log      *zerolog.Logger
}

// NewPaymentReconciler builds a reconciler. locker may be nil for single-instance runs.
func NewPaymentReconciler(checker usecase.StatusChecker, payments repository.PaymentRepository, locker Locker, pool *worker.Pool, opts ReconcilerOptions, logger *zerolog.Logger) *PaymentReconciler {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 10 * time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = opts.Interval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{checker: checker, payments: payments, locker: locker, pool: pool, opts: opts, log: &l}
}

func (w *PaymentReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.opts.Interval).Dur("stale_after", w.opts.StaleAfter).Msg("Starting payment reconciler")
	t := time.NewTicker(w.opts.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping payment reconciler")
			return ctx.Err()
		case <-t.C:
			if _, err := w.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.log.Error().Err(err).Msg("reconciler sweep failed")
			}
		}
	}
}

// Sweep runs one pass and returns how many payments were re-checked without error.
// It is a no-op when another instance holds the lock.
func (w *PaymentReconciler) Sweep(ctx context.Context) (int, error) {
	if w.locker != nil {
		token, err := w.locker.TryLock(ctx, reconcilerLockKey, w.opts.LockTTL)
		if errors.Is(err, domain.ErrLockNotAcquired) {
			metrics.IncReconcilerRun("skipped")
			return 0, nil
		}
		if err != nil {
			metrics.IncReconcilerRun("error")
			return 0, err
		}
		defer func() {
			if err := w.locker.Unlock(context.Background(), reconcilerLockKey, token); err != nil {
				w.log.Warn().Err(err).Msg("failed to release reconciler lock")
			}
		}()
	}

	cutoff := w.opts.Now().Add(-w.opts.StaleAfter)
	stale, err := w.payments.ListStale(ctx, repository.NoTX, cutoff, w.opts.BatchSize)
	if err != nil {
		metrics.IncReconcilerRun("error")
		return 0, err
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for _, p := range stale {
		depositID := p.TransactionID
		check := func(ctx context.Context) error {
			defer wg.Done()
			res, err := w.checker.CheckStatus(ctx, "", depositID)
			if err != nil {
				metrics.IncReconciled("error")
				return err
			}
			metrics.IncReconciled("checked")
			w.log.Debug().Str("deposit_id", depositID).Str("status", string(res.Status)).Msg("payment re-checked")
			mu.Lock()
			ok++
			mu.Unlock()
			return nil
		}

		wg.Add(1)
		if w.pool == nil {
			_ = check(ctx)
			continue
		}
		if err := w.pool.SubmitWait(ctx, check); err != nil {
			wg.Done()
			metrics.IncReconciled("dropped")
			w.log.Warn().Err(err).Str("deposit_id", depositID).Msg("could not schedule re-check")
			if ctx.Err() != nil {
				break
			}
		}
	}

	// Queued checks are dropped when the pool stops, so do not outwait ctx.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		metrics.IncReconcilerRun("error")
		return 0, ctx.Err()
	}

	metrics.IncReconcilerRun("ok")
	if len(stale) > 0 {
		w.log.Info().Int("stale", len(stale)).Int("checked", ok).Msg("reconciler sweep finished")
	}
	return ok, nil
}
