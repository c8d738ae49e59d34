package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisWrapper guards the Redis commands used by the cache and the event stream.
type RedisWrapper struct {
	client  redis.UniversalClient
	cb      *CircuitBreaker
	service string
	logger  *zap.Logger
}

// NewRedisWrapper creates a Redis wrapper with circuit breaker
func NewRedisWrapper(client redis.UniversalClient, service string, logger *zap.Logger) *RedisWrapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	config := SettingsFor(NameRedis).ToConfig()
	// A cache miss is not a failure.
	config.IsFailure = func(err error) bool {
		return DefaultIsFailure(err) && !errors.Is(err, redis.Nil)
	}
	cb := NewCircuitBreaker(NameRedis, config, logger)
	GlobalMetricsCollector.RegisterCircuitBreaker(NameRedis, service, cb)
	return &RedisWrapper{client: client, cb: cb, service: service, logger: logger}
}

func (rw *RedisWrapper) record(err error) {
	success := err == nil || errors.Is(err, redis.Nil)
	GlobalMetricsCollector.RecordRequest(NameRedis, rw.service, rw.cb.State(), success)
}

// Ping checks connectivity.
func (rw *RedisWrapper) Ping(ctx context.Context) error {
	err := rw.cb.Execute(ctx, func() error { return rw.client.Ping(ctx).Err() })
	rw.record(err)
	return err
}

// Get returns the value at key; a miss is reported as redis.Nil.
func (rw *RedisWrapper) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := Call(ctx, rw.cb, func() ([]byte, error) { return rw.client.Get(ctx, key).Bytes() })
	rw.record(err)
	return val, err
}

// Set stores value at key with a ttl.
func (rw *RedisWrapper) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	err := rw.cb.Execute(ctx, func() error { return rw.client.Set(ctx, key, value, ttl).Err() })
	rw.record(err)
	return err
}

// XAdd appends an entry to a stream, trimming it to roughly maxLen entries.
func (rw *RedisWrapper) XAdd(ctx context.Context, stream string, maxLen int64, values map[string]interface{}) (string, error) {
	id, err := Call(ctx, rw.cb, func() (string, error) {
		return rw.client.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			MaxLen: maxLen,
			Approx: true,
			Values: values,
		}).Result()
	})
	rw.record(err)
	return id, err
}

// Expire sets a ttl on key.
func (rw *RedisWrapper) Expire(ctx context.Context, key string, ttl time.Duration) error {
	err := rw.cb.Execute(ctx, func() error { return rw.client.Expire(ctx, key, ttl).Err() })
	rw.record(err)
	return err
}

// Close wraps Redis Close
func (rw *RedisWrapper) Close() error {
	return rw.client.Close()
}

// IsCircuitBreakerOpen returns true if the circuit breaker is open
func (rw *RedisWrapper) IsCircuitBreakerOpen() bool {
	return rw.cb.State() == StateOpen
}
