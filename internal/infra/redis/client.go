package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/oanda/internal/core/domain"
)

// DefaultTTL bounds how long a cached candle range is served.
const DefaultTTL = 24 * time.Hour

// Client caches historical candle ranges in Redis.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	TTL      time.Duration `yaml:"ttl"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return New(rdb, cfg.TTL), nil
}

// New wraps an existing go-redis client.
func New(rdb *redis.Client, ttl time.Duration) *Client {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Client{rdb: rdb, ttl: ttl}
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Key helpers
func rangeKey(instrument string, g domain.Granularity, from, to time.Time) string {
	return fmt.Sprintf("oanda:candles:%s:%s:%d-%d", instrument, g, from.Unix(), to.Unix())
}

// GetRange returns the cached candles for the exact range, if present.
func (c *Client) GetRange(
	ctx context.Context,
	instrument string,
	g domain.Granularity,
	from, to time.Time,
) ([]domain.Candle, bool, error) {
	data, err := c.rdb.Get(ctx, rangeKey(instrument, g, from, to)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get failed: %w", err)
	}

	candles, err := decodeCandles(data)
	if err != nil {
		return nil, false, err
	}
	return candles, true, nil
}

// PutRange stores candles for the range. Only complete candles are ever
// written; a range containing an open candle is skipped.
func (c *Client) PutRange(
	ctx context.Context,
	instrument string,
	g domain.Granularity,
	from, to time.Time,
	candles []domain.Candle,
) error {
	if !cacheable(candles) {
		return nil
	}

	data, err := encodeCandles(candles)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, rangeKey(instrument, g, from, to), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

func cacheable(candles []domain.Candle) bool {
	for _, candle := range candles {
		if !candle.Complete {
			return false
		}
	}
	return true
}

func encodeCandles(candles []domain.Candle) ([]byte, error) {
	data, err := json.Marshal(candles)
	if err != nil {
		return nil, fmt.Errorf("failed to encode candles: %w", err)
	}
	return data, nil
}

func decodeCandles(data []byte) ([]domain.Candle, error) {
	var candles []domain.Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return nil, fmt.Errorf("failed to decode cached candles: %w", err)
	}
	return candles, nil
}
