// Package cache stores computed global rankings in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/playrank/internal/domain/model"
	"github.com/okian/playrank/pkg/metrics"
)

const (
	keyPrefix  = "playrank:global:"
	defaultTTL = 30 * time.Second
	scanCount  = 100
)

var (
	// ErrConnection is returned when Redis cannot be reached at startup.
	ErrConnection = errors.New("cache: connection failed")

	// ErrSerialization is returned when a cached value cannot be decoded.
	ErrSerialization = errors.New("cache: serialization failed")
)

// RankingCache keeps one JSON document per requested limit, expiring after
// the configured TTL. Any leaderboard mutation may invalidate all of them.
type RankingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// Option configures a RankingCache.
type Option func(*RankingCache)

// WithTTL overrides the default entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *RankingCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// Connect dials Redis and pings it.
func Connect(ctx context.Context, addr, password string, db int, opts ...Option) (*RankingCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return New(client, opts...), nil
}

// New wraps an existing client.
func New(client *redis.Client, opts ...Option) *RankingCache {
	c := &RankingCache{client: client, ttl: defaultTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func key(limit int) string {
	return keyPrefix + strconv.Itoa(limit)
}

// Get returns the cached rows for limit. A miss is (nil, false, nil).
func (c *RankingCache) Get(ctx context.Context, limit int) ([]model.GlobalRanking, bool, error) {
	data, err := c.client.Get(ctx, key(limit)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RecordCacheLookup(false)
		return nil, false, nil
	}
	if err != nil {
		metrics.RecordErrorByComponent("cache", "get")
		return nil, false, fmt.Errorf("cache: get %d: %w", limit, err)
	}

	var rows []model.GlobalRanking
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	metrics.RecordCacheLookup(true)
	return rows, true, nil
}

// Set stores rows for limit with the configured TTL.
func (c *RankingCache) Set(ctx context.Context, limit int, rows []model.GlobalRanking) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if err := c.client.Set(ctx, key(limit), data, c.ttl).Err(); err != nil {
		metrics.RecordErrorByComponent("cache", "set")
		return fmt.Errorf("cache: set %d: %w", limit, err)
	}
	return nil
}

// Invalidate deletes every cached ranking.
func (c *RankingCache) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", scanCount).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache: scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		metrics.RecordErrorByComponent("cache", "invalidate")
		return fmt.Errorf("cache: invalidate: %w", err)
	}
	return nil
}

func (c *RankingCache) Close() error {
	return c.client.Close()
}
