package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
)

// DefaultLockTTL bounds how long a crashed holder can block renewal of a shop
const DefaultLockTTL = 30 * time.Second

const renewalLockPrefix = "ingest:renewal:"

// ErrLockNotHeld is returned when the lock expired before it was released
var ErrLockNotHeld = errors.New("cache: renewal lock not held")

// releaseScript deletes the key only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ---------------------------------------------------------------------------
// Redis
// ---------------------------------------------------------------------------

// RedisRenewalLock implements integration.RenewalLock with SET NX PX.
// It serializes renewal across every process sharing the Redis instance.
type RedisRenewalLock struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	poll      time.Duration
	logger    *zap.Logger
}

var _ integration.RenewalLock = (*RedisRenewalLock)(nil)

// NewRedisRenewalLock creates a lock over an existing client
func NewRedisRenewalLock(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisRenewalLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRenewalLock{
		client:    client,
		keyPrefix: renewalLockPrefix,
		ttl:       ttl,
		poll:      50 * time.Millisecond,
		logger:    logger,
	}
}

// Lock polls SET NX with a capped exponential backoff until it wins or ctx ends
func (l *RedisRenewalLock) Lock(ctx context.Context, shopCode string) (func(), error) {
	key := l.keyPrefix + shopCode
	token := uuid.NewString()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.poll
	b.MaxInterval = 20 * l.poll
	b.MaxElapsedTime = 0

	acquire := func() error {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("cache: acquire %s: %w", key, err))
		}
		if !ok {
			return errLockBusy
		}
		return nil
	}
	if err := backoff.Retry(acquire, backoff.WithContext(b, ctx)); err != nil {
		if errors.Is(err, errLockBusy) {
			return nil, ctx.Err()
		}
		return nil, err
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			n, err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Int()
			if err == nil && n == 0 {
				err = ErrLockNotHeld
			}
			if err != nil {
				l.logger.Warn("failed to release renewal lock",
					zap.String("shop_code", shopCode),
					zap.Error(err),
				)
			}
		})
	}
	return unlock, nil
}

var errLockBusy = errors.New("cache: lock busy")

// ---------------------------------------------------------------------------
// In-process
// ---------------------------------------------------------------------------

// InMemoryRenewalLock implements integration.RenewalLock within one process.
// Each shop gets a one-slot channel so waiting honours ctx cancellation.
type InMemoryRenewalLock struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

var _ integration.RenewalLock = (*InMemoryRenewalLock)(nil)

// NewInMemoryRenewalLock creates a new in-process lock
func NewInMemoryRenewalLock() *InMemoryRenewalLock {
	return &InMemoryRenewalLock{slots: make(map[string]chan struct{})}
}

func (l *InMemoryRenewalLock) slot(shopCode string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[shopCode]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[shopCode] = s
	}
	return s
}

// Lock blocks until the shop's slot is free or ctx is done
func (l *InMemoryRenewalLock) Lock(ctx context.Context, shopCode string) (func(), error) {
	s := l.slot(shopCode)
	select {
	case s <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() { once.Do(func() { <-s }) }, nil
}
