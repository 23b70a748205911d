// Package lock provides redis backed mutual exclusion for critical sections that
// span processes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrBusy is returned when the lock is held by someone else for longer than the retry budget.
var ErrBusy = errors.New("lock: resource busy")

// Locker obtains short-lived redis locks.
type Locker struct {
	client  *redislock.Client
	ttl     time.Duration
	retries int
	backoff time.Duration
}

// NewLocker constructs a Locker. A nil client yields a Locker that runs callbacks unguarded.
func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	l := &Locker{ttl: ttl, retries: 20, backoff: 100 * time.Millisecond}
	if client != nil {
		l.client = redislock.New(client)
	}
	return l
}

// WithLock runs fn while holding key. The lock is released when fn returns.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if l == nil || l.client == nil {
		return fn(ctx)
	}
	opts := &redislock.Options{RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.backoff), l.retries)}
	held, err := l.client.Obtain(ctx, key, l.ttl, opts)
	if errors.Is(err, redislock.ErrNotObtained) {
		return fmt.Errorf("%w: %s", ErrBusy, key)
	}
	if err != nil {
		return fmt.Errorf("lock: obtain %s: %w", key, err)
	}
	defer func() {
		_ = held.Release(context.WithoutCancel(ctx))
	}()
	return fn(ctx)
}
