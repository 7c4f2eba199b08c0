package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"momo-billing/internal/domain"
	"momo-billing/internal/domain/model"
)

// StatusChecker is anything that can answer the polling endpoint: the use case itself
// or an HTTP client talking to a running service.
type StatusChecker interface {
	CheckStatus(ctx context.Context, userID, depositID string) (*StatusResult, error)
}

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeCancelled Outcome = "cancelled"
)

type PollOutcome struct {
	Kind     Outcome
	Attempts int
	Message  string
	Last     *StatusResult // last successful answer, may be nil
	Err      error         // last check error, if any
}

// StatusPoller checks a deposit at a fixed interval until it is terminal, the attempt
// budget runs out, or ctx is cancelled.
type StatusPoller struct {
	checker     StatusChecker
	interval    time.Duration
	maxAttempts int
	log         *zerolog.Logger

	// OnUpdate, when set, sees every successful answer.
	OnUpdate func(*StatusResult)
}

func NewStatusPoller(checker StatusChecker, interval time.Duration, maxAttempts int, logger *zerolog.Logger) *StatusPoller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 24
	}
	l := logger.With().Str("component", "StatusPoller").Logger()
	return &StatusPoller{checker: checker, interval: interval, maxAttempts: maxAttempts, log: &l}
}

func (p *StatusPoller) Poll(ctx context.Context, userID, depositID string) PollOutcome {
	var out PollOutcome
	timer := time.NewTimer(0)
	defer timer.Stop()

	for out.Attempts < p.maxAttempts {
		select {
		case <-ctx.Done():
			out.Kind, out.Message = OutcomeCancelled, "Status check cancelled."
			return out
		case <-timer.C:
		}

		out.Attempts++
		res, err := p.checker.CheckStatus(ctx, userID, depositID)
		switch {
		case err == nil:
			out.Last, out.Err = res, nil
			if p.OnUpdate != nil {
				p.OnUpdate(res)
			}
			if done, kind := terminalOutcome(res); done {
				out.Kind, out.Message = kind, res.Message
				return out
			}
		case ctx.Err() != nil:
			out.Kind, out.Message = OutcomeCancelled, "Status check cancelled."
			return out
		case permanent(err):
			out.Kind, out.Err, out.Message = OutcomeFailed, err, "Payment could not be found."
			return out
		default:
			out.Err = err
			p.log.Debug().Err(err).Str("deposit_id", depositID).Int("attempt", out.Attempts).Msg("status check failed; will retry")
		}
		timer.Reset(p.interval)
	}

	out.Kind = OutcomeTimedOut
	out.Message = "Payment confirmation timed out. Check your mobile money account and your payment history before retrying."
	p.log.Info().Str("deposit_id", depositID).Int("attempts", out.Attempts).Msg("status polling timed out")
	return out
}

func terminalOutcome(res *StatusResult) (bool, Outcome) {
	switch res.Status {
	case model.PaymentStatusCompleted:
		return true, OutcomeCompleted
	case model.PaymentStatusFailed:
		if res.RejectionReason != "" {
			return true, OutcomeRejected
		}
		return true, OutcomeFailed
	}
	return false, ""
}

func permanent(err error) bool {
	var ve *domain.ValidationError
	return errors.Is(err, domain.ErrNotFound) || errors.As(err, &ve)
}
