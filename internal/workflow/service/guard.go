package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrSweepInProgress is returned when another sweep holds the guard.
var ErrSweepInProgress = errors.New("escalation sweep already running")

// SweepGuard makes sure only one sweep runs across every process sharing it.
type SweepGuard interface {
	// Acquire takes the guard or returns ErrSweepInProgress. The returned
	// release func must be called when the sweep ends.
	Acquire(ctx context.Context) (release func(), err error)
}

// releaseScript deletes the key only if it still holds our token, so a sweep
// that outlived its TTL cannot release a successor's guard.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSweepGuard is a SweepGuard backed by a Redis key with a TTL.
type RedisSweepGuard struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisSweepGuard creates a guard on key. The TTL bounds how long a crashed
// sweep can block the next one.
func NewRedisSweepGuard(client *redis.Client, key string, ttl time.Duration) *RedisSweepGuard {
	return &RedisSweepGuard{client: client, key: key, ttl: ttl}
}

func (g *RedisSweepGuard) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, g.key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire sweep guard: %w", err)
	}
	if !ok {
		return nil, ErrSweepInProgress
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, g.client, []string{g.key}, token).Err()
	}, nil
}
