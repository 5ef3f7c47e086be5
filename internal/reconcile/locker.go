package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrVerifyInFlight means another verification holds the lock for the
// same reference.
var ErrVerifyInFlight = errors.New("verification already in flight for reference")

// Locker serializes concurrent verifications of the same payment
// reference.
type Locker interface {
	Acquire(ctx context.Context, reference string, ttl time.Duration) (release func(), err error)
}

// RedisLocker takes per-reference locks via SETNX so concurrent webhook
// and callback deliveries across instances verify a reference once.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker creates a Redis-backed verification locker.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	if client == nil {
		panic("reconcile: redis client required")
	}
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, reference string, ttl time.Duration) (func(), error) {
	key := "verify-lock:" + reference
	ok, err := l.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("reconcile: acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrVerifyInFlight
	}
	return func() {
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		l.client.Del(rctx, key)
	}, nil
}

// LocalLocker is the single-process fallback when Redis is not
// configured.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker creates an in-process verification locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) Acquire(_ context.Context, reference string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, inFlight := l.held[reference]; inFlight {
		return nil, ErrVerifyInFlight
	}
	l.held[reference] = struct{}{}
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, reference)
	}, nil
}
