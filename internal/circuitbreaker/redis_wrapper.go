package circuitbreaker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisClient wraps a redis client with circuit breaker protection
type RedisClient struct {
	client  *redis.Client
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewRedisClient creates a circuit-breaker-protected Redis client
func NewRedisClient(name string, client *redis.Client, config Config, logger *zap.Logger) *RedisClient {
	if config.OnStateChange == nil {
		config.OnStateChange = MetricsStateChangeHook()
	}
	cb := NewCircuitBreaker(name, config, logger)
	GlobalMetricsCollector.RegisterCircuitBreaker(cb)
	return &RedisClient{
		client:  client,
		breaker: cb,
		logger:  logger,
	}
}

// Unwrap returns the underlying redis client for operations that
// do not need breaker protection (pipelines, pubsub)
func (r *RedisClient) Unwrap() *redis.Client {
	return r.client
}

func (r *RedisClient) Ping(ctx context.Context) error {
	return r.breaker.Execute(ctx, func() error {
		err := r.client.Ping(ctx).Err()
		GlobalMetricsCollector.RecordRequest(r.breaker.name, err == nil)
		return err
	})
}

func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	var result string
	var missing bool
	err := r.breaker.Execute(ctx, func() error {
		var opErr error
		result, opErr = r.client.Get(ctx, key).Result()
		if opErr == redis.Nil {
			// Missing key is not a backend failure
			missing = true
			GlobalMetricsCollector.RecordRequest(r.breaker.name, true)
			return nil
		}
		GlobalMetricsCollector.RecordRequest(r.breaker.name, opErr == nil)
		return opErr
	})
	if err == nil && missing {
		return "", redis.Nil
	}
	return result, err
}

func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return r.breaker.Execute(ctx, func() error {
		err := r.client.Set(ctx, key, value, expiration).Err()
		GlobalMetricsCollector.RecordRequest(r.breaker.name, err == nil)
		return err
	})
}

func (r *RedisClient) Del(ctx context.Context, keys ...string) error {
	return r.breaker.Execute(ctx, func() error {
		err := r.client.Del(ctx, keys...).Err()
		GlobalMetricsCollector.RecordRequest(r.breaker.name, err == nil)
		return err
	})
}

func (r *RedisClient) Keys(ctx context.Context, pattern string) ([]string, error) {
	var result []string
	err := r.breaker.Execute(ctx, func() error {
		var opErr error
		result, opErr = r.client.Keys(ctx, pattern).Result()
		GlobalMetricsCollector.RecordRequest(r.breaker.name, opErr == nil)
		return opErr
	})
	return result, err
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

// State exposes the underlying breaker state
func (r *RedisClient) State() State {
	return r.breaker.State()
}
