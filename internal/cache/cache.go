package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kiranshivaraju/captchaocr/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Cache mirrors terminal job records so repeated polls skip the store lock.
// Only terminal records are cached; they never change again, so a hit is always current.
// Implementations must be safe for concurrent use.
type Cache interface {
	Ping(ctx context.Context) error
	SetRecord(ctx context.Context, id string, rec models.JobRecord, ttl time.Duration) error
	GetRecord(ctx context.Context, id string) (models.JobRecord, bool, error)
	Close() error
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) SetRecord(ctx context.Context, id string, rec models.JobRecord, ttl time.Duration) error {
	if !rec.Status.IsTerminal() {
		return fmt.Errorf("refusing to cache non-terminal job %s (status %q)", id, rec.Status)
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return c.client.Set(ctx, RecordKey(id), b, ttl).Err()
}

func (c *RedisCache) GetRecord(ctx context.Context, id string) (models.JobRecord, bool, error) {
	val, err := c.client.Get(ctx, RecordKey(id)).Bytes()
	if err == redis.Nil {
		return models.JobRecord{}, false, nil
	}
	if err != nil {
		return models.JobRecord{}, false, err
	}
	var rec models.JobRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return models.JobRecord{}, false, fmt.Errorf("decode record: %w", err)
	}
	return rec, true, nil
}

// Compile-time check that RedisCache implements Cache.
var _ Cache = (*RedisCache)(nil)
