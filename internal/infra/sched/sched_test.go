//go:build !integration

package sched_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"momo-billing/internal/domain"
	"momo-billing/internal/domain/model"
	"momo-billing/internal/domain/ports/repository"
	"momo-billing/internal/infra/sched"
	"momo-billing/internal/infra/worker"
	"momo-billing/internal/usecase"
)

func newLogger() *zerolog.Logger { l := zerolog.New(io.Discard); return &l }

// staleRepo serves ListStale only; the embedded nil interface panics on anything else.
type staleRepo struct {
	repository.PaymentRepository
	rows      []*model.Payment
	err       error
	olderThan time.Time
	limit     int
}

func (r *staleRepo) ListStale(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	r.olderThan, r.limit = olderThan, limit
	return r.rows, r.err
}

type recordingChecker struct {
	mu      sync.Mutex
	checked []string
	users   []string
	fail    map[string]error
}

func (c *recordingChecker) CheckStatus(ctx context.Context, userID, depositID string) (*usecase.StatusResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checked = append(c.checked, depositID)
	c.users = append(c.users, userID)
	if err := c.fail[depositID]; err != nil {
		return nil, err
	}
	return &usecase.StatusResult{DepositID: depositID, Status: model.PaymentStatusCompleted}, nil
}

type fakeLocker struct {
	err      error
	locked   int
	unlocked int
}

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if l.err != nil {
		return "", l.err
	}
	l.locked++
	return "tok", nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key, token string) error {
	l.unlocked++
	return nil
}

func stale(ids ...string) []*model.Payment {
	out := make([]*model.Payment, 0, len(ids))
	for _, id := range ids {
		out = append(out, &model.Payment{TransactionID: id, Status: model.PaymentStatusProcessing})
	}
	return out
}

func TestPaymentReconciler_Sweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)

	t.Run("re-checks stale payments as a system caller", func(t *testing.T) {
		repo := &staleRepo{rows: stale("a", "b", "c")}
		checker := &recordingChecker{fail: map[string]error{"b": &domain.ProviderError{Op: "get_deposit", Err: domain.ErrProviderUnavailable}}}
		locker := &fakeLocker{}
		pool := worker.NewPool(2, newLogger())
		pool.Start(ctx)
		defer pool.Stop()

		r := sched.NewPaymentReconciler(checker, repo, locker, pool, sched.ReconcilerOptions{
			StaleAfter: 10 * time.Minute, BatchSize: 50, Now: func() time.Time { return now },
		}, newLogger())
		n, err := r.Sweep(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if n != 2 || len(checker.checked) != 3 {
			t.Errorf("expected 3 checks with 2 successes, got %d/%d", n, len(checker.checked))
		}
		for _, u := range checker.users {
			if u != "" {
				t.Errorf("reconciler must skip the ownership check, got user %q", u)
			}
		}
		if !repo.olderThan.Equal(now.Add(-10*time.Minute)) || repo.limit != 50 {
			t.Errorf("unexpected query (%v, %d)", repo.olderThan, repo.limit)
		}
		if locker.locked != 1 || locker.unlocked != 1 {
			t.Errorf("expected lock to be taken and released, got %d/%d", locker.locked, locker.unlocked)
		}
	})

	t.Run("skips when another instance holds the lock", func(t *testing.T) {
		repo := &staleRepo{rows: stale("a")}
		checker := &recordingChecker{}
		r := sched.NewPaymentReconciler(checker, repo, &fakeLocker{err: domain.ErrLockNotAcquired}, nil, sched.ReconcilerOptions{}, newLogger())
		n, err := r.Sweep(ctx)
		if err != nil || n != 0 || len(checker.checked) != 0 {
			t.Errorf("expected a silent skip, got (%d, %v, %v)", n, err, checker.checked)
		}
	})

	t.Run("surfaces lock and listing errors", func(t *testing.T) {
		r := sched.NewPaymentReconciler(&recordingChecker{}, &staleRepo{}, &fakeLocker{err: errors.New("redis down")}, nil, sched.ReconcilerOptions{}, newLogger())
		if _, err := r.Sweep(ctx); err == nil {
			t.Error("expected lock error")
		}
		r = sched.NewPaymentReconciler(&recordingChecker{}, &staleRepo{err: domain.ErrOperationFailed}, nil, nil, sched.ReconcilerOptions{}, newLogger())
		if _, err := r.Sweep(ctx); !errors.Is(err, domain.ErrOperationFailed) {
			t.Errorf("expected listing error, got %v", err)
		}
	})

	t.Run("runs inline without a pool", func(t *testing.T) {
		checker := &recordingChecker{}
		r := sched.NewPaymentReconciler(checker, &staleRepo{rows: stale("x", "y")}, nil, nil, sched.ReconcilerOptions{}, newLogger())
		if n, err := r.Sweep(ctx); err != nil || n != 2 {
			t.Errorf("expected 2 checks, got (%d, %v)", n, err)
		}
	})
}

type countingSubUC struct {
	mu    sync.Mutex
	calls int
}

func (c *countingSubUC) GetSubscription(ctx context.Context, userID string) (*usecase.SubscriptionView, error) {
	return nil, domain.ErrNotFound
}

func (c *countingSubUC) DowngradeExpired(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return 1, nil
}

func (c *countingSubUC) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestExpiryWorker_Run(t *testing.T) {
	sub := &countingSubUC{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.NewExpiryWorker(5*time.Millisecond, sub, newLogger()).Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for sub.Calls() < 2 {
		select {
		case <-deadline:
			t.Fatal("expiry worker did not tick")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
