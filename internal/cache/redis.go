// Package cache is an explicit TTL cache over Redis, constructed with its
// TTLs and injected where needed, never referenced as ambient state.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"courtside/ingestion/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrCacheMiss is returned when a key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Config holds cache configuration
type Config struct {
	Host     string
	Port     string
	Password string
	DB       int

	ScheduleTTL time.Duration
	ResultTTL   time.Duration
}

// Cache caches the daily schedule and the latest cycle result.
type Cache struct {
	client      *redis.Client
	scheduleTTL time.Duration
	resultTTL   time.Duration
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	scheduleTTL := cfg.ScheduleTTL
	if scheduleTTL <= 0 {
		scheduleTTL = 6 * time.Hour
	}
	resultTTL := cfg.ResultTTL
	if resultTTL <= 0 {
		resultTTL = 10 * time.Minute
	}

	log.Info().Str("addr", fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)).Msg("Redis cache connected")
	return &Cache{
		client:      client,
		scheduleTTL: scheduleTTL,
		resultTTL:   resultTTL,
	}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// SetSchedule caches the schedule for one operating day.
func (c *Cache) SetSchedule(ctx context.Context, day string, games []models.Game) error {
	key := fmt.Sprintf("schedule:%s", day)

	data, err := json.Marshal(games)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule: %w", err)
	}

	return c.client.Set(ctx, key, data, c.scheduleTTL).Err()
}

// Schedule retrieves the cached schedule for one operating day.
func (c *Cache) Schedule(ctx context.Context, day string) ([]models.Game, error) {
	key := fmt.Sprintf("schedule:%s", day)

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached schedule: %w", err)
	}

	var games []models.Game
	if err := json.Unmarshal(data, &games); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached schedule: %w", err)
	}
	return games, nil
}

// SetCycleResult caches the latest cycle result for the debug surface.
func (c *Cache) SetCycleResult(ctx context.Context, result interface{}) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal cycle result: %w", err)
	}
	return c.client.Set(ctx, "cycle:last_result", data, c.resultTTL).Err()
}

// LastCycleResult retrieves the cached cycle result as raw JSON.
func (c *Cache) LastCycleResult(ctx context.Context) (json.RawMessage, error) {
	data, err := c.client.Get(ctx, "cycle:last_result").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached cycle result: %w", err)
	}
	return json.RawMessage(data), nil
}
