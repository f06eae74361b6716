// Package cache provides the typed Redis client used for research
// envelopes, per-bot sections, the persisted watchlist and the asset
// universe. All values are JSON for ops introspection.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// Key namespaces. These are observable contracts: external tooling reads
// them directly.
const (
	keyResearchPrefix = "research:"
	keyBotPrefix      = "bot:"
	KeyWatchlist      = "priority:watchlist"
	KeyUniverseAssets = "universe:assets"
)

// ResearchKey returns the envelope key for a symbol.
func ResearchKey(symbol string) string { return keyResearchPrefix + symbol }

// BotKey returns the per-bot section key for a symbol/bot pair.
func BotKey(symbol, botName string) string {
	return fmt.Sprintf("%s%s:%s", keyBotPrefix, symbol, botName)
}

// Client wraps a Redis connection with JSON serialisation.
type Client struct {
	rdb *redis.Client
	log zerolog.Logger
}

// New connects to Redis at the given URL (redis://host:port/db) and
// verifies the connection.
func New(redisURL string, log zerolog.Logger) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Client{
		rdb: rdb,
		log: log.With().Str("component", "cache").Logger(),
	}, nil
}

// NewFromRedis wraps an existing Redis client. Used by tests with
// redismock.
func NewFromRedis(rdb *redis.Client, log zerolog.Logger) *Client {
	return &Client{rdb: rdb, log: log.With().Str("component", "cache").Logger()}
}

// Get unmarshals the value at key into dest. Returns (false, nil) on a
// miss so callers can distinguish absence from transport errors.
func (c *Client) Get(ctx context.Context, key string, dest any) (bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

// Set marshals value as JSON and stores it with the given TTL. A zero TTL
// stores without expiry.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Exists reports whether key is present. Errors degrade to false — the
// callers treat presence checks as advisory.
func (c *Client) Exists(ctx context.Context, key string) bool {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Exists check failed")
		return false
	}
	return n > 0
}

// TTL returns the remaining lifetime for key, or zero when unknown.
func (c *Client) TTL(ctx context.Context, key string) time.Duration {
	d, err := c.rdb.TTL(ctx, key).Result()
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// Ping verifies connectivity. Used by the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *Client) Close() error { return c.rdb.Close() }
