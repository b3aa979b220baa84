package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadflow_backend/internal/email"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/notification"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/internal/workflow"
	"leadflow_backend/internal/workflow/repository"
	"leadflow_backend/internal/workflow/service"
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

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "interval", cfg.GetSweepInterval())

	if cfg.StoreDriver != config.StoreDriverPostgres {
		panic("scheduler requires STORE_DRIVER=postgres; the memory store is swept by the api process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
	defer pool.Close()

	tel, err := telemetry.New(ctx, "leadflow-scheduler")
	if err != nil {
		log.Error("failed to initialize telemetry", "error", err)
		panic("failed to initialize telemetry: " + err.Error())
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	eventBus := events.NewInMemoryBus(log)

	workflowModule, err := workflow.NewModule(repository.NewPostgresStore(pool), eventBus, clock.Real(), cfg, validator.New(), log)
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

	sender := newEmailSender(cfg, log)
	notificationModule := notification.New(sender, cfg, log)
	notificationModule.RegisterHandlers(eventBus)

	var worker *scheduler.Worker
	if cfg.IsRedisEnabled() {
		redisClient, err := scheduler.NewRedisClient(cfg)
		if err != nil {
			log.Error("failed to initialize redis client", "error", err)
			panic("failed to initialize redis client: " + err.Error())
		}
		defer func() { _ = redisClient.Close() }()
		workflowModule.SetSweepGuard(service.NewRedisSweepGuard(redisClient, sweepLockKey, cfg.GetSweepLockTTL()))

		taskClient, err := scheduler.NewClient(cfg)
		if err != nil {
			log.Error("failed to initialize task client", "error", err)
			panic("failed to initialize task client: " + err.Error())
		}
		defer func() { _ = taskClient.Close() }()
		notificationModule.SetEmailQueue(taskClient)

		worker, err = scheduler.NewWorker(cfg, workflowModule.Service(), sender, log)
		if err != nil {
			log.Error("failed to initialize scheduler worker", "error", err)
			panic("failed to initialize scheduler worker: " + err.Error())
		}
	} else {
		log.Warn("REDIS_URL not configured; running the interval sweeper only")
	}
	defer eventBus.Wait()

	sweeper := scheduler.NewSweeper(workflowModule.Service(), clock.Real(), cfg.GetSweepInterval(), log)
	if err := sweeper.Start(ctx); err != nil {
		panic("failed to start sweeper: " + err.Error())
	}
	defer sweeper.Stop()

	if worker != nil {
		worker.Run(ctx)
		return
	}
	<-ctx.Done()
	log.Info("shutdown signal received, stopping scheduler")
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

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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
