package monitoring

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"

	"momo-billing/internal/config"
	"momo-billing/internal/domain/ports/adapter"
	"momo-billing/internal/infra/logging"
)

var _ adapter.ErrorReporter = (*Reporter)(nil)

// Reporter sends errors that need manual follow-up to Sentry, tagged with the
// request trace id and whatever the caller passes (deposit id, target status).
type Reporter struct {
	hub *sentry.Hub
	log *zerolog.Logger
}

// Init configures the global Sentry client. With an empty DSN it returns a no-op
// reporter. The returned flush func must run before exit.
func Init(cfg config.SentryConfig, release string, logger *zerolog.Logger) (adapter.ErrorReporter, func(), error) {
	if cfg.DSN == "" {
		return adapter.NoopReporter{}, func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          release,
		AttachStacktrace: true,
	}); err != nil {
		return nil, nil, err
	}
	flush := func() { sentry.Flush(2 * time.Second) }
	return NewReporter(sentry.CurrentHub(), logger), flush, nil
}

func NewReporter(hub *sentry.Hub, logger *zerolog.Logger) *Reporter {
	l := logger.With().Str("component", "SentryReporter").Logger()
	return &Reporter{hub: hub, log: &l}
}

func (r *Reporter) Report(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	hub := r.hub.Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		if tid := logging.TraceIDFrom(ctx); tid != "" {
			scope.SetTag("trace_id", tid)
		}
		if uid := logging.UserIDFrom(ctx); uid != "" {
			scope.SetUser(sentry.User{ID: uid})
		}
		if id := hub.CaptureException(err); id != nil {
			r.log.Debug().Str("event_id", string(*id)).Msg("error reported")
		}
	})
}
