package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
)

// Locker serializes new-cluster commits per category so concurrent workers
// cannot found duplicate clusters for the same breaking story. The lock is
// held only around the database commit, never across embedding or judgment
// calls.
type Locker interface {
	// Lock blocks until the category lock is acquired or ctx is done.
	// It returns an unlock function.
	Lock(ctx context.Context, category string) (func(), error)
}

// RedisLocker implements Locker with SET NX PX, so the lock works across
// processes and expires on its own if a holder dies.
type RedisLocker struct {
	pool *redis.Pool
	ttl  time.Duration
}

// NewRedisLocker creates a locker on an existing pool. ttl bounds how long
// a crashed holder can block a category.
func NewRedisLocker(pool *redis.Pool, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{pool: pool, ttl: ttl}
}

// unlockScript deletes the key only when it still holds our token, so an
// expired-and-reacquired lock is never released by the old holder.
const unlockScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

func (l *RedisLocker) Lock(ctx context.Context, category string) (func(), error) {
	key := "storyline:lock:" + category
	token := uuid.NewString()

	for {
		conn, err := l.pool.GetContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("redis lock connection: %w", err)
		}
		reply, err := redis.String(conn.Do("SET", key, token, "NX", "PX", l.ttl.Milliseconds()))
		conn.Close()

		if err == nil && reply == "OK" {
			return func() { l.unlock(key, token) }, nil
		}
		if err != nil && err != redis.ErrNil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (l *RedisLocker) unlock(key, token string) {
	conn := l.pool.Get()
	defer conn.Close()
	redis.NewScript(1, unlockScript).Do(conn, key, token)
}

// MemoryLocker implements Locker in-process. Used in tests and in
// single-process deployments without redis.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMemoryLocker creates an empty in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *MemoryLocker) Lock(_ context.Context, category string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[category]
	if !ok {
		m = &sync.Mutex{}
		l.locks[category] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}
