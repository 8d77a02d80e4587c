package locker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"inventario-backend/internal/config"
)

var ErrNotObtained = errors.New("resource is locked by another request")

// Locker serialises work on a named resource across server instances.
type Locker interface {
	// Obtain returns a release func, or ErrNotObtained when the key is held.
	Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Redis locks through redislock.
type Redis struct {
	client *redislock.Client
}

// NewRedis connects to addr and fails when Redis does not answer.
func NewRedis(ctx context.Context, addr string) (*Redis, *redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       0,
		PoolSize: 20,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect redis at %s: %w", addr, err)
	}
	return &Redis{client: redislock.New(rdb)}, rdb, nil
}

func (r *Redis) Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lock, err := r.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, err
	}
	return func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			config.LogError(config.GetLogger(), "locker", "Release", "failed to release lock", key, err)
		}
	}, nil
}

// Local locks within one process. It is used when no Redis is configured.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) Obtain(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrNotObtained
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
