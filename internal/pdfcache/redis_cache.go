// Package pdfcache keeps rasterized proposal PDFs keyed by proposal id and
// last update time, so an unchanged proposal is never rasterized twice.
package pdfcache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when no PDF is cached for the key.
var ErrMiss = errors.New("pdf cache miss")

const keyPrefix = "pdf:"

// Key identifies one rendition of a proposal. A new updatedAt yields a new
// key, so stale PDFs are never served after an edit.
func Key(proposalID string, updatedAt time.Time) string {
	return keyPrefix + proposalID + ":" + strconv.FormatInt(updatedAt.UnixNano(), 10)
}

// RedisCache implements the PDF cache on Redis
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to redisURL and verifies the connection.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client, ttl), nil
}

// NewRedisCacheWithClient creates a cache from an existing Redis client
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, proposalID string, updatedAt time.Time) ([]byte, error) {
	data, err := c.client.Get(ctx, Key(proposalID, updatedAt)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get cached pdf: %w", err)
	}
	return data, nil
}

func (c *RedisCache) Put(ctx context.Context, proposalID string, updatedAt time.Time, pdf []byte) error {
	if err := c.client.Set(ctx, Key(proposalID, updatedAt), pdf, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache pdf: %w", err)
	}
	return nil
}

// Invalidate drops every cached rendition of a proposal.
func (c *RedisCache) Invalidate(ctx context.Context, proposalID string) error {
	pattern := keyPrefix + proposalID + ":*"
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("scan cached pdfs: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete cached pdfs: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
