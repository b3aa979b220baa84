package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadflow_backend/internal/adapters"
	"leadflow_backend/internal/adapters/storage"
	"leadflow_backend/internal/email"
	"leadflow_backend/internal/events"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/http/router"
	"leadflow_backend/internal/notification"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/internal/workflow"
	"leadflow_backend/internal/workflow/classifier"
	"leadflow_backend/internal/workflow/repository"
	"leadflow_backend/internal/workflow/service"
	"leadflow_backend/migrations"
	"leadflow_backend/platform/clock"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/db"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/telemetry"
	"leadflow_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

const sweepLockKey = "leadflow:workflow:sweep-lock"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if err := cfg.RequireAPISecrets(); err != nil {
		panic("invalid config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr, "store", cfg.StoreDriver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	repo, pool := openStore(ctx, cfg, log)
	if pool != nil {
		defer pool.Close()
	}

	tel, err := telemetry.New(ctx, "leadflow-api")
	if err != nil {
		log.Error("failed to initialize telemetry", "error", err)
		panic("failed to initialize telemetry: " + err.Error())
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// ========================================================================
	// Domain Modules
	// ========================================================================

	val := validator.New()
	workflowModule, err := workflow.NewModule(repo, eventBus, clock.Real(), cfg, val, log)
	if err != nil {
		log.Error("failed to initialize workflow module", "error", err)
		panic("failed to initialize workflow module: " + err.Error())
	}

	metrics, err := service.NewMetrics(tel.Meter())
	if err != nil {
		log.Error("failed to register workflow metrics", "error", err)
		panic("failed to register workflow metrics: " + err.Error())
	}
	workflowModule.SetMetrics(metrics)

	notificationModule := notification.New(newEmailSender(cfg, log), cfg, log)
	notificationModule.RegisterHandlers(eventBus)

	if cfg.IsRedisEnabled() {
		closeRedis := wireRedis(cfg, workflowModule, notificationModule, log)
		defer closeRedis()
	} else {
		log.Warn("REDIS_URL not configured; async sweeps and queued email disabled")
	}

	if cfg.IsClassifierEnabled() {
		gemini, err := classifier.NewGemini(ctx, cfg.GetGeminiAPIKey(), cfg.GetClassifierModel())
		if err != nil {
			log.Error("failed to initialize reply classifier", "error", err)
			panic("failed to initialize reply classifier: " + err.Error())
		}
		workflowModule.SetClassifier(gemini)
	}

	if cfg.IsMinIOEnabled() {
		storageSvc, err := storage.NewMinIOService(cfg)
		if err != nil {
			log.Error("failed to initialize storage", "error", err)
			panic("failed to initialize storage: " + err.Error())
		}
		bucket := cfg.GetMinioBucketCommunicationAttachments()
		if err := withRetry(ctx, log, "ensure attachments bucket", 5, 2*time.Second, func() error {
			return storageSvc.EnsureBucketExists(ctx, bucket)
		}); err != nil {
			log.Error("failed to ensure storage bucket exists", "error", err, "bucket", bucket)
			panic("failed to ensure storage bucket exists: " + err.Error())
		}
		workflowModule.SetAttachmentPresigner(adapters.NewAttachmentPresigner(storageSvc, bucket))
	}

	defer eventBus.Wait()

	// The memory store is process-local, so this process sweeps it itself.
	if cfg.StoreDriver == config.StoreDriverMemory {
		sweeper := scheduler.NewSweeper(workflowModule.Service(), clock.Real(), cfg.GetSweepInterval(), log)
		if err := sweeper.Start(ctx); err != nil {
			panic("failed to start sweeper: " + err.Error())
		}
		defer sweeper.Stop()
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	var health apphttp.HealthChecker
	if pool != nil {
		health = pool
	}

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   health,
		EventBus: eventBus,
		Metrics:  tel.Handler(),
		Modules: []apphttp.Module{
			workflowModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// openStore returns the configured repository and, for postgres, its pool.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (repository.Repository, *pgxpool.Pool) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Warn("using in-memory store; workflow state is lost on restart")
		return repository.NewMemoryStore(), nil
	}

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	log.Info("database connection established")

	if cfg.RunMigrations {
		if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
			return db.RunMigrations(ctx, pool, migrations.Files, log)
		}); err != nil {
			log.Error("failed to run database migrations", "error", err)
			panic("failed to run database migrations: " + err.Error())
		}
		log.Info("database migrations complete")
	}

	return repository.NewPostgresStore(pool), pool
}

func newEmailSender(cfg config.EmailConfig, log *logger.Logger) email.Sender {
	if !cfg.GetEmailEnabled() {
		log.Warn("SMTP not configured; workflow emails disabled")
		return email.NoopSender{}
	}
	return email.NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(),
		cfg.GetEmailFromName(),
	)
}

// wireRedis installs the sweep guard, the async sweep queue and the email queue.
func wireRedis(cfg *config.Config, wf *workflow.Module, notifications *notification.Module, log *logger.Logger) func() {
	redisClient, err := scheduler.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to initialize redis client", "error", err)
		panic("failed to initialize redis client: " + err.Error())
	}
	wf.SetSweepGuard(service.NewRedisSweepGuard(redisClient, sweepLockKey, cfg.GetSweepLockTTL()))

	taskClient, err := scheduler.NewClient(cfg)
	if err != nil {
		_ = redisClient.Close()
		log.Error("failed to initialize task client", "error", err)
		panic("failed to initialize task client: " + err.Error())
	}
	wf.SetSweepQueue(taskClient)
	notifications.SetEmailQueue(taskClient)

	return func() {
		_ = taskClient.Close()
		_ = redisClient.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
