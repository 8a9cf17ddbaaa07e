package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"batch-service/internal/models"

	"github.com/go-redis/redis/v8"
)

// Client caches metadata resolver hints so repeated shortfalls on the same
// product do not hammer the upstream catalog.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func hintKey(tenant, externalProductID string) string {
	return fmt.Sprintf("hints:%s:%s", tenant, externalProductID)
}

// GetHints returns cached resolver hints; nil on a cache miss.
func (c *Client) GetHints(ctx context.Context, tenant, externalProductID string) (*models.ProductHints, error) {
	raw, err := c.rdb.Get(ctx, hintKey(tenant, externalProductID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read hint cache: %w", err)
	}

	var hints models.ProductHints
	if err := json.Unmarshal(raw, &hints); err != nil {
		return nil, fmt.Errorf("corrupt hint cache entry: %w", err)
	}
	return &hints, nil
}

// SetHints stores resolver hints with a TTL.
func (c *Client) SetHints(ctx context.Context, tenant, externalProductID string, hints *models.ProductHints, ttl time.Duration) error {
	raw, err := json.Marshal(hints)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, hintKey(tenant, externalProductID), raw, ttl).Err()
}
