package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"srf-carbon/internal/growth"
)

// RedisOptions selects the Redis server. URL wins over Addr when set.
type RedisOptions struct {
	URL      string
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisCache is a FitCache shared between service instances
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to Redis and pings it
func NewRedisCache(ctx context.Context, opts RedisOptions) (*RedisCache, error) {
	var ro *redis.Options
	if opts.URL != "" {
		parsed, err := redis.ParseURL(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		ro = parsed
	} else {
		ro = &redis.Options{
			Addr:         opts.Addr,
			Password:     opts.Password,
			DB:           opts.DB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
			MinIdleConns: 2,
		}
	}

	client := redis.NewClient(ro)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisCache{client: client, ttl: opts.TTL}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (growth.Parameters, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return growth.Parameters{}, false, nil
	}
	if err != nil {
		return growth.Parameters{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var params growth.Parameters
	if err := json.Unmarshal(data, &params); err != nil {
		return growth.Parameters{}, false, fmt.Errorf("decode cached parameters: %w", err)
	}
	return params, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, params growth.Parameters) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Close releases the connection pool
func (c *RedisCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
