package main

import (
	"context"
	"fmt"
	"sync"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/internal/workflow"
	"leadflow_backend/internal/workflow/repository"
	"leadflow_backend/internal/workflow/service"
	"leadflow_backend/platform/clock"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/db"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const sweepLockKey = "leadflow:workflow:sweep-lock"

// commandContext lazily opens the resources a command needs and releases them
// once the command returns.
type commandContext struct {
	configOnce sync.Once
	config     *config.Config
	configErr  error
	log        *logger.Logger

	pool    *pgxpool.Pool
	redis   *redis.Client
	service *service.Service
	queue   *scheduler.Client
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			c.configErr = err
			return
		}
		if cfg.StoreDriver != config.StoreDriverPostgres {
			c.configErr = fmt.Errorf("leadflowctl requires STORE_DRIVER=postgres")
			return
		}
		c.config = cfg
		if c.log == nil {
			c.log = logger.New(cfg.Env)
		}
	})
	return c.config, c.configErr
}

func (c *commandContext) ensurePool(ctx context.Context) (*pgxpool.Pool, error) {
	if c.pool != nil {
		return c.pool, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	c.pool = pool
	return pool, nil
}

func (c *commandContext) ensureService(ctx context.Context) (*service.Service, error) {
	if c.service != nil {
		return c.service, nil
	}
	pool, err := c.ensurePool(ctx)
	if err != nil {
		return nil, err
	}
	cfg := c.config

	// Events raised here are not mailed; the api and scheduler own delivery.
	module, err := workflow.NewModule(repository.NewPostgresStore(pool), events.NewInMemoryBus(c.log), clock.Real(), cfg, validator.New(), c.log)
	if err != nil {
		return nil, err
	}
	if cfg.IsRedisEnabled() {
		client, err := scheduler.NewRedisClient(cfg)
		if err != nil {
			return nil, err
		}
		c.redis = client
		module.SetSweepGuard(service.NewRedisSweepGuard(client, sweepLockKey, cfg.GetSweepLockTTL()))
	}
	c.service = module.Service()
	return c.service, nil
}

func (c *commandContext) ensureQueue() (*scheduler.Client, error) {
	if c.queue != nil {
		return c.queue, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.IsRedisEnabled() {
		return nil, fmt.Errorf("REDIS_URL is required to queue a sweep")
	}
	client, err := scheduler.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	c.queue = client
	return client, nil
}

func (c *commandContext) logOrDiscard() *logger.Logger {
	if c.log == nil {
		c.log = logger.Discard()
	}
	return c.log
}

func (c *commandContext) close() {
	if c.queue != nil {
		_ = c.queue.Close()
	}
	if c.redis != nil {
		_ = c.redis.Close()
	}
	if c.pool != nil {
		c.pool.Close()
	}
}
