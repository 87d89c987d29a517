// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-prompt-enhancer/internal/config"
	"ai-prompt-enhancer/internal/domain/ports/repository"
	aiAdapters "ai-prompt-enhancer/internal/infra/adapters/ai"
	pg "ai-prompt-enhancer/internal/infra/db/postgres"
	"ai-prompt-enhancer/internal/infra/logging"
	"ai-prompt-enhancer/internal/infra/metrics"
	"ai-prompt-enhancer/internal/infra/queue"
	"ai-prompt-enhancer/internal/infra/ratelimit"
	red "ai-prompt-enhancer/internal/infra/redis"
	"ai-prompt-enhancer/internal/infra/sched"
	"ai-prompt-enhancer/internal/infra/validation"
	"ai-prompt-enhancer/internal/infra/web"
	"ai-prompt-enhancer/internal/infra/worker"
	"ai-prompt-enhancer/internal/usecase"

	"github.com/rs/zerolog"
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
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, noop AI when no keys)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- AI providers ----
	providers, err := aiAdapters.NewProviders(ctx, cfg.AI, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("ai providers")
	}
	enhancer := aiAdapters.NewFailoverClient(providers, cfg.AI, logger)

	// ---- Archive (optional) ----
	var archive repository.JobArchive
	if cfg.Database.URL != "" {
		pool, err := pg.NewPgxPool(ctx, cfg.Database.URL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres")
		}
		defer pool.Close()
		repo := pg.NewJobArchiveRepo(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("postgres schema")
		}
		archive = repo
		logger.Info().Msg("job archive enabled")
	}

	// ---- Workers ----
	// processing context outlives the signal so in-flight jobs can finish during drain
	workCtx, stopWork := context.WithCancel(context.Background())
	defer stopWork()

	archivePool := worker.NewPool("archive", 2, logger)
	archivePool.Start(workCtx)
	recorder := worker.NewRecorder(archive, archivePool, logger)

	// ---- Queue ----
	store := queue.NewStore(queue.LimitsFromConfig(cfg.Queue), logger, queue.OnTerminal(recorder.Observe))
	processor := worker.NewProcessor(workCtx, store, enhancer, cfg.Queue.MinProcessInterval, logger,
		worker.WithJobTimeout(cfg.Queue.ProcessingTimeout))
	if cfg.Queue.BackgroundInterval > 0 {
		go func() { _ = sched.NewExpiryWorker(cfg.Queue.SweepInterval, store, logger).Run(ctx) }()
		go processor.Run(ctx, cfg.Queue.BackgroundInterval)
	}
	queueUC := usecase.NewQueueUseCase(validation.New(), store, processor, *cfg.Queue.EnforceOwnership, logger)

	// ---- Rate limits ----
	submitPolicy, statusPolicy, closeLimits, err := buildPolicies(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("rate limit")
	}
	defer closeLimits()

	// ---- HTTP ----
	srv := web.NewServer(queueUC, web.Options{
		Resolver: web.ClientResolver{
			SessionHeader:     cfg.Server.SessionHeader,
			TrustForwardedFor: cfg.Server.TrustForwardedFor,
		},
		SubmitPolicy:     submitPolicy,
		StatusPolicy:     statusPolicy,
		Health:           enhancer,
		RequestTimeout:   cfg.Server.RequestTimeout,
		QueueFullRetry:   cfg.Queue.PerJobEstimate,
		ClientLimitRetry: cfg.Queue.ClientWindow,
	}, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown requested")

	shutdownCtx, done := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	cancel()
	if err := processor.Drain(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("in-flight job did not finish before shutdown deadline")
	}
	stopWork()
	archivePool.Stop()
	logger.Info().Msg("bye")
}

// buildPolicies returns the submit and status policies for the configured backend.
func buildPolicies(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (ratelimit.Policy, ratelimit.Policy, func(), error) {
	rl := cfg.RateLimit
	switch rl.Backend {
	case "redis":
		client, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, nil, nil, err
		}
		backend := red.NewSlidingWindowLimiter(client)
		submit := &ratelimit.KeyedPolicy{Backend: backend, Scope: "submit", Window: rl.Submit.Window, Max: rl.Submit.Max, Log: logger}
		status := &ratelimit.KeyedPolicy{Backend: backend, Scope: "status", Window: rl.Status.Window, Max: rl.Status.Max, Log: logger}
		return submit, status, func() { _ = client.Close() }, nil
	default:
		secret := []byte(rl.Secret)
		submitLimiter, err := ratelimit.NewLimiter(secret, "submit")
		if err != nil {
			return nil, nil, nil, err
		}
		statusLimiter, err := ratelimit.NewLimiter(secret, "status")
		if err != nil {
			return nil, nil, nil, err
		}
		submit := &ratelimit.CookiePolicy{Limiter: submitLimiter, CookieName: "rl_submit", Secure: rl.CookieSecure, Window: rl.Submit.Window, Max: rl.Submit.Max, Log: logger}
		status := &ratelimit.CookiePolicy{Limiter: statusLimiter, CookieName: "rl_status", Secure: rl.CookieSecure, Window: rl.Status.Window, Max: rl.Status.Max, Log: logger}
		return submit, status, func() {}, nil
	}
}
