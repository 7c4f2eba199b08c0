package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"momo-billing/internal/config"
	"momo-billing/internal/infra/i18n"
	"momo-billing/internal/usecase"
)

// RateLimiter is satisfied by the Redis fixed-window limiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Options struct {
	// CallbackSecret enables X-Callback-Signature checks on the webhook when set.
	CallbackSecret  string
	PollLimit       int
	PollWindow      time.Duration
	InitiateLimit   int
	InitiateWindow  time.Duration
	RequestTimeout  time.Duration
	DefaultAmount   int64
	RevenueLookback time.Duration
	// Messages localizes status text by Accept-Language; defaults to the embedded en/fr catalog.
	Messages *i18n.Catalog
}

// Server exposes the webhook, initiation, polling and history endpoints.
type Server struct {
	payUC   usecase.PaymentUseCase
	subUC   usecase.SubscriptionUseCase
	auth    *AuthManager
	limiter RateLimiter
	opts    Options
	log     *zerolog.Logger

	mu      sync.Mutex
	httpSrv *http.Server
}

func NewServer(payUC usecase.PaymentUseCase, subUC usecase.SubscriptionUseCase, auth *AuthManager, limiter RateLimiter, opts Options, logger *zerolog.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.RevenueLookback <= 0 {
		opts.RevenueLookback = 30 * 24 * time.Hour
	}
	if opts.Messages == nil {
		opts.Messages = i18n.MustLoadCatalog()
	}
	l := logger.With().Str("component", "APIServer").Logger()
	return &Server{payUC: payUC, subUC: subUC, auth: auth, limiter: limiter, opts: opts, log: &l}
}

// Routes builds the chi router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(TraceID(), Recover(s.log), RequestLog(s.log), Timeout(s.opts.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/deposits", s.handleDepositCallback)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireUser)
			r.Post("/deposits", s.handleInitiate)
			r.Get("/deposits/{depositId}/status", s.handleStatus)
			r.Get("/payments", s.handleListPayments)
			r.Get("/subscription", s.handleSubscription)

			r.With(RequireRole(RoleService)).Get("/admin/revenue", s.handleRevenue)
		})
	})
	return r
}

// Start blocks serving on cfg.Port until Shutdown.
func (s *Server) Start(cfg config.HTTPConfig) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()
	s.log.Info().Int("port", cfg.Port).Msg("HTTP server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// allow applies a per-user limit. Limiter failures let the request through.
func (s *Server) allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	if s.limiter == nil || limit <= 0 {
		return true
	}
	ok, err := s.limiter.Allow(ctx, key, limit, window)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable; allowing request")
		return true
	}
	return ok
}

func (s *Server) translator(r *http.Request) *i18n.Translator {
	return s.opts.Messages.For(r.Header.Get("Accept-Language"))
}
