package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"askhome/internal/infra"
)

type RedisStore struct {
	client *redis.Client
	retry  infra.RetryConfig
}

func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		retry:  infra.DefaultRetryConfig(),
	}
}

func responseKey(key string) string {
	return "response:" + key
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		body  []byte
		found bool
	)

	err := infra.WithRetry(ctx, r.retry, func() error {
		result, err := r.client.Get(ctx, responseKey(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		body, found = result, true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("reading cached response: %w", err)
	}
	return body, found, nil
}

func (r *RedisStore) Put(ctx context.Context, key string, body []byte, ttl time.Duration) error {
	err := infra.WithRetry(ctx, r.retry, func() error {
		return r.client.Set(ctx, responseKey(key), body, ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("caching response: %w", err)
	}
	return nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
