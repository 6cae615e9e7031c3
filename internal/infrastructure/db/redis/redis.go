package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config addresses the redis instance shared by the user backend and the
// token denylist.
type Config struct {
	Addr     string
	Password string
	DB       int
	// DialTimeout also bounds the startup ping. Zero means 5s.
	DialTimeout time.Duration
}

// Connect returns a client whose server answered PING.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	wait := cfg.DialTimeout
	if wait <= 0 {
		wait = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: wait,
		MaxRetries:  1,
	})

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}
