package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/config"
)

// RenewalLockFactory creates renewal locks based on configuration
type RenewalLockFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
	pingTimeout           time.Duration
}

// RenewalLockFactoryOption is a functional option for configuring the factory
type RenewalLockFactoryOption func(*RenewalLockFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) RenewalLockFactoryOption {
	return func(f *RenewalLockFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to an in-process lock when Redis is unavailable.
// Default is true.
func WithInMemoryFallback(allow bool) RenewalLockFactoryOption {
	return func(f *RenewalLockFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewRenewalLockFactory creates a new factory
func NewRenewalLockFactory(cfg config.RedisConfig, opts ...RenewalLockFactoryOption) *RenewalLockFactory {
	f := &RenewalLockFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
		pingTimeout:           5 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateRedisLock connects to Redis and returns a distributed lock with its client
func (f *RenewalLockFactory) CreateRedisLock() (*RedisRenewalLock, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     f.redisConfig.Addr(),
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), f.pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisRenewalLock(client, f.redisConfig.LockTTL, f.logger), client, nil
}

// CreateLock returns a Redis lock when Redis is configured and reachable.
// Without a Redis host, or when Redis is down and fallback is allowed, it
// returns an in-process lock. The returned close func releases the client.
func (f *RenewalLockFactory) CreateLock() (integration.RenewalLock, func() error, error) {
	noop := func() error { return nil }

	if f.redisConfig.Addr() == "" {
		f.logger.Info("redis not configured, using in-process renewal lock")
		return NewInMemoryRenewalLock(), noop, nil
	}

	lock, client, err := f.CreateRedisLock()
	if err == nil {
		f.logger.Info("using Redis renewal lock", zap.String("addr", f.redisConfig.Addr()))
		return lock, client.Close, nil
	}

	if !f.allowInMemoryFallback {
		return nil, nil, fmt.Errorf("Redis required for renewal lock but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-process renewal lock. "+
		"Concurrent processes may refresh the same shop token.",
		zap.Error(err),
	)
	return NewInMemoryRenewalLock(), noop, nil
}
