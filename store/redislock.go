package store

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionLocker serializes stage invocations for one session. The status
// check-then-set already rejects out-of-order stages; the lock additionally
// prevents two concurrent invocations of the same stage from both passing the
// status check before either writes.
type SessionLocker interface {
	// Acquire takes the lock for a session and returns a release func.
	// It fails fast when the lock is already held.
	Acquire(ctx context.Context, sessionID string) (release func(), err error)
}

// RedisLocker implements SessionLocker with SET NX + TTL
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLockerFromEnv creates a RedisLocker using REDIS_ADDR, REDIS_PASS,
// and optional REDIS_DB. Returns an error if Redis is unreachable.
func NewRedisLockerFromEnv(ttl time.Duration) (*RedisLocker, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASS"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisLocker{client: client, ttl: ttl}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	key := "reelsmith:session_lock:" + sessionID

	ok, err := l.client.SetNX(ctx, key, "1", l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire session lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("session %s is already running a stage", sessionID)
	}

	release := func() {
		// Best effort; the TTL reclaims the lock if this fails
		delCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		l.client.Del(delCtx, key)
	}
	return release, nil
}

// Close closes the underlying Redis client
func (l *RedisLocker) Close() error { return l.client.Close() }

// NoopLocker satisfies SessionLocker without any coordination. Used when
// Redis is not configured; the store-level status CAS remains the guard.
type NoopLocker struct{}

func (NoopLocker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	return func() {}, nil
}
