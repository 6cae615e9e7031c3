package denylist

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aifix/chat-auth/internal/core/ports"
)

// Redis is a denylist shared by every server instance.
// Key format: <prefix>:revoked:<jti>, expiring with the token.
type Redis struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "chatauth"
	}
	return &Redis{client: client, prefix: prefix, now: time.Now}
}

// Revoke records tokenID until expiresAt. Already expired tokens are skipped.
func (d *Redis) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(d.now())
	if ttl <= 0 {
		return nil
	}
	if err := d.client.Set(ctx, d.key(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (d *Redis) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("denylist check: %w", err)
	}
	return n > 0, nil
}

func (d *Redis) key(tokenID string) string {
	return d.prefix + ":revoked:" + tokenID
}

var _ ports.TokenDenylist = (*Redis)(nil)
