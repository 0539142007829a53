package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/app/migrate"
	httpx "github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/http"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/repository"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/repository/memory"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/repository/postgres"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/deploy"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/logs"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/notify"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/pipeline"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/project"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/queue"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/webhook"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/ws"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/pkg/config"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/pkg/logger"
)

type store interface {
	repository.ProjectRepository
	repository.DeploymentRepository
	repository.StepRepository
	repository.WebhookRepository
}

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		repo     store
		dbHealth func(context.Context) error
	)
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		source, err := migrate.Source(cfg.MigrationsDir)
		if err != nil {
			log.Error("failed to locate migrations", "error", err)
			os.Exit(1)
		}
		runner, err := migrate.New(pool, source, log)
		if err != nil {
			log.Error("failed to configure migrations", "error", err)
			os.Exit(1)
		}
		if err := runner.Ping(ctx); err != nil {
			log.Error("database ping failed", "error", err)
			os.Exit(1)
		}
		if _, err := runner.Up(ctx); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		if err := runner.Close(); err != nil {
			log.Warn("closing migration runner", "error", err)
		}
		repo = postgres.New(pool)
		dbHealth = pool.Ping
	} else {
		log.Warn("DATABASE_URL not set, using in-memory storage", "env", cfg.Environment)
		repo = memory.New()
	}

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	logHub := ws.NewHub()
	defer logHub.Stop()
	logSvc := logs.New(repo, logHub, log)

	sinks := []notify.Sink{notify.NewHubSink(logHub)}
	if addr := strings.TrimSpace(cfg.NotifyRedisAddr); addr != "" {
		client, err := notify.NewRedisClient(ctx, addr, cfg.NotifyRedisPass, cfg.NotifyRedisDB)
		if err != nil {
			log.Warn("redis notifications unavailable", "error", err)
		} else {
			defer client.Close()
			sinks = append(sinks, notify.NewRedisSink(client, cfg.NotifyChannelPrefix))
		}
	}
	notifier := notify.NewDispatcher(log, sinks...)
	defer notifier.Close()

	builder := pipeline.NewBuilderExecutor(cfg.BuilderURL, cfg.BuilderAuthToken, cfg.BuilderTimeout, log)
	lifecycle := deploy.NewLifecycle(deploy.Deps{
		Projects:    repo,
		Deployments: repo,
		Steps:       repo,
		Executor:    builder,
		Logs:        logSvc,
		Notifier:    notifier,
		Logger:      log,
		Metrics:     metrics,
	}, deploy.Options{
		CancelAckTimeout: cfg.CancelAckTimeout,
		ExecutionTimeout: cfg.ExecutionTimeout,
		RecoveryMode:     cfg.RecoveryMode,
	})
	// Job contexts are detached from requests and from shutdown signals.
	jobs := context.WithoutCancel(ctx)
	deploySvc := deploy.NewService(lifecycle, queue.NewRegistry(jobs, lifecycle, log, metrics))

	secrets := webhook.NewSecrets(repo, cfg.EnvEncryptionKey, log)
	projectSvc := project.New(repo, secrets, log, cfg.DefaultMaxConcurrent)
	if path := strings.TrimSpace(cfg.ProjectsManifest); path != "" {
		manifest, err := project.LoadManifest(path)
		if err != nil {
			log.Error("failed to load projects manifest", "path", path, "error", err)
			os.Exit(1)
		}
		seeded, err := projectSvc.Seed(ctx, manifest)
		if err != nil {
			log.Error("failed to seed projects", "path", path, "error", err)
			os.Exit(1)
		}
		log.Info("projects seeded", "path", path, "count", len(seeded))
	}

	report, err := deploySvc.Recover(ctx)
	if err != nil {
		log.Error("deployment recovery failed", "error", err)
		os.Exit(1)
	}
	log.Info("deployment recovery complete", "failed", report.Failed, "requeued", report.Requeued, "mode", cfg.RecoveryMode)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(ctx, addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(httpx.Config{
		Logger:      log,
		Projects:    projectSvc,
		Deployments: deploySvc,
		Webhooks:    webhook.NewIngestor(projectSvc, deploySvc, log),
		Logs:        logSvc,
		Builder:     builder,
		Limiter:     limiter,
		JWTSecret:   cfg.JWTSecret,
		Metrics:     metrics,
		Gatherer:    metrics,
		DBHealth:    dbHealth,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "env", cfg.Environment)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
