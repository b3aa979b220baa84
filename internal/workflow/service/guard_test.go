package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisSweepGuardIsExclusive(t *testing.T) {
	_, client := newTestRedis(t)
	guard := NewRedisSweepGuard(client, "leadflow:sweep", time.Minute)

	release, err := guard.Acquire(context.Background())
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if _, err := guard.Acquire(context.Background()); !errors.Is(err, ErrSweepInProgress) {
		t.Fatalf("expected ErrSweepInProgress, got %v", err)
	}

	release()
	release2, err := guard.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	release2()
}

func TestRedisSweepGuardExpiresAndKeepsSuccessor(t *testing.T) {
	mr, client := newTestRedis(t)
	guard := NewRedisSweepGuard(client, "leadflow:sweep", time.Minute)

	stale, err := guard.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := guard.Acquire(context.Background()); err != nil {
		t.Fatalf("expected the expired guard to be free: %v", err)
	}

	stale()
	if !mr.Exists("leadflow:sweep") {
		t.Fatalf("a stale release must not remove the successor's guard")
	}
}
