// Package redis provides the shared client plus a typed pub/sub envelope
// used by the notification relay.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const opTimeout = 5 * time.Second

// NewClientFromURL parses a redis:// URL, applies conservative timeouts and
// verifies the connection before handing the client out.
func NewClientFromURL(ctx context.Context, redisURL string) (*goredis.Client, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = opTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = opTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = opTimeout
	}

	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
