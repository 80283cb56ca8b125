package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/ocpp-csms/central-system/internal/config"
)

// RedisConnectionLocationStore is the Redis-backed ConnectionLocationStore.
type RedisConnectionLocationStore struct {
	Client *redis.Client // exported so tests can inject a redismock client
	Prefix string
}

// NewRedisStorage dials cfg.Addr and returns a ready RedisConnectionLocationStore.
func NewRedisStorage(cfg config.RedisConfig) (*RedisConnectionLocationStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	return &RedisConnectionLocationStore{Client: client, Prefix: "conn:"}, nil
}

func (r *RedisConnectionLocationStore) SetConnection(ctx context.Context, chargePointID string, instanceID string, ttl time.Duration) error {
	key := fmt.Sprintf("%s%s", r.Prefix, chargePointID)
	return r.Client.Set(ctx, key, instanceID, ttl).Err()
}

func (r *RedisConnectionLocationStore) GetConnection(ctx context.Context, chargePointID string) (string, error) {
	key := fmt.Sprintf("%s%s", r.Prefix, chargePointID)
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", redis.Nil
	}
	return val, err
}

func (r *RedisConnectionLocationStore) DeleteConnection(ctx context.Context, chargePointID string) error {
	key := fmt.Sprintf("%s%s", r.Prefix, chargePointID)
	return r.Client.Del(ctx, key).Err()
}

func (r *RedisConnectionLocationStore) Close() error {
	return r.Client.Close()
}
