package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Config selects the deployment and the database holding the users collection.
type Config struct {
	URI      string
	Database string
	// ConnectTimeout bounds server selection, connect and the first ping.
	// Zero means 10s.
	ConnectTimeout time.Duration
}

// Connect dials cfg.URI and pings the primary before handing back the client
// and its database.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, *mongo.Database, error) {
	if cfg.URI == "" || cfg.Database == "" {
		return nil, nil, errors.New("mongo: uri and database are required")
	}
	wait := cfg.ConnectTimeout
	if wait <= 0 {
		wait = 10 * time.Second
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName("chat-auth").
		SetServerSelectionTimeout(wait)

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, client.Database(cfg.Database), nil
}
