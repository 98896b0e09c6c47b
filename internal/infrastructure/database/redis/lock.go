package redis

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/pkg/errors"
)

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Locker grants per-key mutual exclusion across processes with SET NX and an
// owner token. A watchdog extends the TTL while the holder is alive.
type Locker struct {
	client     *Client
	logger     logging.Logger
	retryDelay time.Duration
	watchdog   bool
}

type LockerOption func(*Locker)

func WithRetryDelay(d time.Duration) LockerOption {
	return func(l *Locker) { l.retryDelay = d }
}

// WithWatchdog toggles automatic TTL extension while a lock is held.
func WithWatchdog(enabled bool) LockerOption {
	return func(l *Locker) { l.watchdog = enabled }
}

func NewLocker(client *Client, log logging.Logger, opts ...LockerOption) *Locker {
	l := &Locker{client: client, logger: log, retryDelay: 50 * time.Millisecond, watchdog: true}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Locker) lockKey(key string) string { return l.client.Key("lock:" + key) }

// TryAcquire makes one attempt and reports whether the lock was taken.
func (l *Locker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.lockKey(key), token, ttl).Result()
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeCacheError, "lock acquire failed")
	}
	if !ok {
		return nil, false, nil
	}
	return l.holder(key, token, ttl), true, nil
}

// Acquire retries until the lock is held or ctx ends. A ctx that ends first
// yields ErrCodeSubmissionLocked.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	ticker := time.NewTicker(l.retryDelay)
	defer ticker.Stop()
	for {
		release, ok, err := l.TryAcquire(ctx, key, ttl)
		if err != nil && ctx.Err() == nil {
			return nil, err
		}
		if ok {
			return release, nil
		}
		select {
		case <-ctx.Done():
			return nil, lockedError(key, ctx.Err())
		case <-ticker.C:
		}
	}
}

func lockedError(key string, cause error) error {
	return errors.New(errors.ErrCodeSubmissionLocked, "resource is locked by another operation").
		WithDetail(key).WithCause(cause)
}

func (l *Locker) holder(key, token string, ttl time.Duration) func() {
	full := l.lockKey(key)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	if l.watchdog && ttl > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.keepAlive(full, token, ttl, stop)
		}()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := unlockScript.Run(ctx, l.client.Underlying(), []string{full}, token).Err(); err != nil &&
				!stderrors.Is(err, redis.Nil) {
				l.logger.Warn("Lock release failed", logging.String("key", key), logging.Err(err))
			}
		})
	}
}

func (l *Locker) keepAlive(full, token string, ttl time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), ttl/3)
			n, err := extendScript.Run(ctx, l.client.Underlying(), []string{full}, token, ttl.Milliseconds()).Int64()
			cancel()
			if err != nil || n == 0 {
				l.logger.Warn("Lock extension failed", logging.String("key", full), logging.Err(err))
				return
			}
		}
	}
}
