package handoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// LatestKey is the Redis key holding the latest artifact location.
const LatestKey = "weather_etl:artifact:latest"

// Redis shares the latest location between processes, so a load started
// by a separate invocation can pick up a flatten's output.
type Redis struct {
	client *redisv9.Client
	ttl    time.Duration
}

// NewRedis creates a Store on client. Locations expire after ttl; a
// non-positive ttl keeps them forever.
func NewRedis(client *redisv9.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// NewRedisClient builds a client for addr.
func NewRedisClient(addr, password string, db int) *redisv9.Client {
	return redisv9.NewClient(&redisv9.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func (r *Redis) Put(ctx context.Context, location string) error {
	ttl := r.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, LatestKey, location, ttl).Err(); err != nil {
		return fmt.Errorf("record artifact location: %w", err)
	}
	return nil
}

func (r *Redis) Latest(ctx context.Context) (string, error) {
	loc, err := r.client.Get(ctx, LatestKey).Result()
	if errors.Is(err, redisv9.Nil) {
		return "", ErrNoArtifact
	}
	if err != nil {
		return "", fmt.Errorf("read artifact location: %w", err)
	}
	return loc, nil
}

// Ping checks that the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
