package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fatiha-mvv/microservice-panier-railway/internal/cart/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is the inactivity window after which a cart expires.
const DefaultTTL = 7 * 24 * time.Hour

func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func (r *RedisStore) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	key := cartKey(userID)

	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err2 := json.Unmarshal(data, &cart); err2 != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err2)
	}

	return &cart, nil
}

// Set writes the cart and restarts its full TTL window.
func (r *RedisStore) Set(ctx context.Context, cart *domain.Cart) error {
	key := cartKey(cart.UserID)
	jsonCart, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	if err := r.client.Set(ctx, key, jsonCart, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, userID string) (bool, error) {
	n, err := r.client.Del(ctx, cartKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis delete failed: %w", err)
	}

	return n > 0, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func cartKey(userID string) string {
	return fmt.Sprintf("cart:%s", userID)
}
