package circuitbreaker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRedisWrapper_NormalOperations(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	wrapper := NewRedisWrapper(client, "test", zaptest.NewLogger(t))
	defer wrapper.Close()
	ctx := context.Background()

	require.NoError(t, wrapper.Ping(ctx))
	require.NoError(t, wrapper.Set(ctx, "test:key", "test:value", time.Minute))

	val, err := wrapper.Get(ctx, "test:key")
	require.NoError(t, err)
	assert.Equal(t, "test:value", string(val))

	_, err = wrapper.Get(ctx, "missing")
	assert.ErrorIs(t, err, redis.Nil)

	id, err := wrapper.XAdd(ctx, "events", 100, map[string]interface{}{"type": "x"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.NoError(t, wrapper.Expire(ctx, "events", time.Hour))
	assert.True(t, s.TTL("events") > 0)
}

func TestRedisWrapper_MissesDoNotTrip(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	wrapper := NewRedisWrapper(client, "test", zaptest.NewLogger(t))
	defer wrapper.Close()

	for i := 0; i < 10; i++ {
		_, _ = wrapper.Get(context.Background(), "missing")
	}
	assert.False(t, wrapper.IsCircuitBreakerOpen())
}

func TestRedisWrapper_OpensWhenServerDown(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: s.Addr(), MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	wrapper := NewRedisWrapper(client, "test", zaptest.NewLogger(t))
	defer wrapper.Close()
	s.Close()

	ctx := context.Background()
	for i := 0; i < int(SettingsFor(NameRedis).FailureThreshold); i++ {
		assert.Error(t, wrapper.Set(ctx, "k", "v", time.Minute))
	}
	assert.True(t, wrapper.IsCircuitBreakerOpen())
	assert.ErrorIs(t, wrapper.Set(ctx, "k", "v", time.Minute), ErrCircuitBreakerOpen)
}
