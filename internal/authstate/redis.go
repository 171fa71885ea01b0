package authstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/miraassistant/mira/internal/apperr"
)

const redisKeyPrefix = "oauth_state:"

// RedisStore keeps state values in Redis so any replica can finish a flow
// another replica started.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisClient connects to addr and pings it.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

// NewRedisStore creates a RedisStore. A non-positive ttl uses DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client: client,
		prefix: redisKeyPrefix,
		ttl:    ttl,
	}
}

func (r *RedisStore) key(state string) string {
	return r.prefix + state
}

func (r *RedisStore) Issue(ctx context.Context) (string, error) {
	state := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key(state), 1, r.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("storing oauth state: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("storing oauth state: key collision")
	}
	return state, nil
}

// Consume deletes the key atomically with GETDEL, so a replayed state
// fails even under concurrent callbacks.
func (r *RedisStore) Consume(ctx context.Context, state string) error {
	if state == "" {
		return apperr.ErrInvalidState
	}
	err := r.client.GetDel(ctx, r.key(state)).Err()
	if errors.Is(err, redis.Nil) {
		return apperr.ErrInvalidState
	}
	if err != nil {
		return fmt.Errorf("consuming oauth state: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
