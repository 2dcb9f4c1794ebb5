package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// RateLimitMarkerKey names the cached "rate-limited until" marker for one
// (user, operation) pair, e.g. "alice:create_block:rate-limit".
func RateLimitMarkerKey(username, operation string) string {
	return fmt.Sprintf("%s:%s:rate-limit", username, operation)
}

// TaskQueueKey is the sorted set holding delayed task envelopes.
const TaskQueueKey = "warden:tasks"
