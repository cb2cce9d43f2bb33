package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mercatto/checkout-service/internal/domain"
)

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: 5 * time.Minute,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r *RedisCache) Get(ctx context.Context, code string) (*domain.Coupon, error) {
	key := cacheKey(code)

	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var coupon domain.Coupon
	if err2 := json.Unmarshal(data, &coupon); err2 != nil {
		return nil, fmt.Errorf("unmarshal coupon failed: %w", err2)
	}

	return &coupon, nil
}

func (r *RedisCache) Set(ctx context.Context, coupon *domain.Coupon) error {
	key := cacheKey(coupon.Code)
	data, err := json.Marshal(coupon)
	if err != nil {
		return fmt.Errorf("marshal coupon failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(60)) * time.Second
	ttl := r.baseTTL + jitter
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, code string) error {
	if err := r.client.Del(ctx, cacheKey(code)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(code string) string {
	return fmt.Sprintf("coupon:%s", domain.NormalizeCouponCode(code))
}
