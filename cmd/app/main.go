// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"momo-billing/internal/config"
	"momo-billing/internal/domain/ports/adapter"
	payAdapters "momo-billing/internal/infra/adapters/payment"
	"momo-billing/internal/infra/api"
	"momo-billing/internal/infra/i18n"
	pg "momo-billing/internal/infra/db/postgres"
	"momo-billing/internal/infra/logging"
	"momo-billing/internal/infra/metrics"
	"momo-billing/internal/infra/monitoring"
	red "momo-billing/internal/infra/redis"
	"momo-billing/internal/infra/security"
	"momo-billing/internal/infra/sched"
	"momo-billing/internal/infra/worker"
	"momo-billing/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (sandbox provider, console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		logging.Global.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Sentry ----
	reporter, flush, err := monitoring.Init(cfg.Sentry, version, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("sentry")
	}
	defer flush()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second, logger)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	statusCache := red.NewStatusCache(redisClient, cfg.Redis.TTL)
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	userRepo := pg.NewPostgresUserRepo(pool)
	payRepo := pg.NewPaymentRepo(pool)
	txRepo := pg.NewTransactionRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- Provider ----
	var gateway adapter.DepositGateway
	switch cfg.Payment.Provider {
	case "sandbox":
		gateway = payAdapters.NewSandboxGateway(2)
	default:
		gateway, err = payAdapters.NewPawaPayGateway(cfg.Payment.PawaPay.BaseURL, cfg.Payment.PawaPay.APIToken, cfg.Payment.PawaPay.Timeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("pawapay gateway")
		}
	}
	logger.Info().Str("provider", gateway.Name()).Msg("deposit gateway ready")

	// ---- Use cases ----
	var sealer usecase.PhoneSealer
	if cfg.Security.PhoneKey != "" {
		ps, err := security.NewPhoneSealer(cfg.Security.PhoneKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("phone sealer")
		}
		sealer = ps
	} else {
		logger.Warn().Msg("security.phone_key not set; payer numbers stored in clear")
	}
	loc := cfg.Location()
	recorder := usecase.NewTransactionRecorder(txRepo, logger)
	paymentUC := usecase.NewPaymentUseCase(payRepo, userRepo, recorder, gateway, tm, statusCache, reporter,
		usecase.PaymentOptions{
			Currency:     cfg.Billing.Currency,
			CountryCode:  cfg.Billing.CountryCode,
			PlanID:       cfg.Billing.PlanID,
			Location:     loc,
			AbandonAfter: cfg.Reconciler.AbandonAfter,
			PhoneSealer:  sealer,
		}, logger)
	subUC := usecase.NewSubscriptionUseCase(userRepo, loc, time.Now, logger)

	var wg sync.WaitGroup

	// ---- Workers ----
	if cfg.Reconciler.Enabled {
		workers := worker.NewPool(cfg.Reconciler.Workers, logger)
		workers.Start(ctx)
		defer workers.Stop()
		reconciler := sched.NewPaymentReconciler(paymentUC, payRepo, locker, workers, sched.ReconcilerOptions{
			Interval:   cfg.Reconciler.Interval,
			StaleAfter: cfg.Reconciler.StaleAfter,
			BatchSize:  cfg.Reconciler.BatchSize,
			LockTTL:    cfg.Reconciler.LockTTL,
		}, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = reconciler.Run(ctx)
		}()
	}
	expiry := sched.NewExpiryWorker(cfg.Expiry.Interval, subUC, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = expiry.Run(ctx)
	}()

	// ---- HTTP ----
	auth := api.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.Audience)
	srv := api.NewServer(paymentUC, subUC, auth, rateLimiter, api.Options{
		CallbackSecret: cfg.Payment.PawaPay.CallbackSecret,
		PollLimit:      cfg.Polling.RateLimit,
		PollWindow:     cfg.Polling.RateLimitWindow,
		InitiateLimit:  5,
		InitiateWindow: time.Minute,
		RequestTimeout: cfg.HTTP.WriteTimeout,
		DefaultAmount:  cfg.Billing.PlanPrice,
		Messages:       i18n.MustLoadCatalog(),
	}, logger)
	go func() {
		if err := srv.Start(cfg.HTTP); err != nil {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
	wg.Wait()
	logger.Info().Msg("bye")
}
