package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"reservas/internal/config"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyPrefix = "idem:reservation:"
	rateLimitPrefix   = "rate_limit:"
)

var errNilClient = errors.New("redis client is nil")

type RedisIdempotencyStore struct {
	client *redis.Client
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

func (r *RedisIdempotencyStore) GetReservationID(ctx context.Context, key string) (int64, bool, error) {
	if r.client == nil {
		return 0, false, errNilClient
	}
	val, err := r.client.Get(ctx, idempotencyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get idempotency key: %w", err)
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt idempotency value %q: %w", val, err)
	}
	return id, true, nil
}

// SetReservationID keeps the first id stored under key; later writes are ignored.
func (r *RedisIdempotencyStore) SetReservationID(ctx context.Context, key string, id int64, ttl time.Duration) error {
	if r.client == nil {
		return errNilClient
	}
	if err := r.client.SetNX(ctx, idempotencyPrefix+key, id, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set idempotency key: %w", err)
	}
	return nil
}

func (r *RedisIdempotencyStore) CheckRateLimit(ctx context.Context, subject string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, errNilClient
	}
	key := rateLimitPrefix + subject
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, key, window)
	}

	return count <= int64(limit), nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
