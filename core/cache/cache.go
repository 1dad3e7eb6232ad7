package cache

import (
	"context"
	"time"

	"waitlist-engine/core/config"
	"waitlist-engine/core/constants"
	"waitlist-engine/core/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Cache interface {
	// Offer tokens map a confirmation token to its entry ID for the lifetime
	// of the offer. A cache miss is not an error; callers fall back to the
	// database lookup.
	SetOfferToken(ctx context.Context, token string, entryID uuid.UUID, ttl time.Duration) error
	GetOfferToken(ctx context.Context, token string) (uuid.UUID, bool, error)
	DeleteOfferToken(ctx context.Context, token string) error

	BlacklistToken(ctx context.Context, token string, ttl time.Duration) error
	IsTokenBlacklisted(ctx context.Context, token string) (bool, error)
}

type redisCache struct {
	client *redis.Client
}

func NewCache(cfg config.RedisConfig) (Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	logger.Info("Redis cache initialized", "addr", cfg.Addr, "db", cfg.DB)
	return &redisCache{client: client}, nil
}

func (c *redisCache) SetOfferToken(ctx context.Context, token string, entryID uuid.UUID, ttl time.Duration) error {
	return c.client.Set(ctx, constants.RedisKeyOfferToken+token, entryID.String(), ttl).Err()
}

func (c *redisCache) GetOfferToken(ctx context.Context, token string) (uuid.UUID, bool, error) {
	val, err := c.client.Get(ctx, constants.RedisKeyOfferToken+token).Result()
	if err == redis.Nil {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

func (c *redisCache) DeleteOfferToken(ctx context.Context, token string) error {
	return c.client.Del(ctx, constants.RedisKeyOfferToken+token).Err()
}

func (c *redisCache) BlacklistToken(ctx context.Context, token string, ttl time.Duration) error {
	return c.client.Set(ctx, constants.RedisKeyTokenBlacklist+token, "1", ttl).Err()
}

func (c *redisCache) IsTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	_, err := c.client.Get(ctx, constants.RedisKeyTokenBlacklist+token).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
