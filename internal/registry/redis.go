// Package registry tracks which live push connections belong to which
// session, backed by Redis.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRegistry maps sessions to their connection ids. Each session owns a
// set keyed by session id, plus a reverse entry per connection so a
// disconnect can be resolved without knowing the session. Both sides carry
// the session TTL, so stale registrations age out with the session.
type RedisRegistry struct {
	client *redis.Client
}

// NewRedisRegistry connects to Redis and verifies the connection.
func NewRedisRegistry(redisURL string) (*RedisRegistry, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisRegistry{client: client}, nil
}

// NewRedisRegistryWithClient wraps an existing Redis client.
func NewRedisRegistryWithClient(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func sessionKey(sessionID string) string {
	return "conns:" + sessionID
}

func connKey(connectionID string) string {
	return "conn:" + connectionID
}

// Register associates a connection with a session. Registering the same
// connection twice is a no-op.
func (r *RedisRegistry) Register(ctx context.Context, sessionID, connectionID string, ttl time.Duration) error {
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, sessionKey(sessionID), connectionID)
	pipe.Set(ctx, connKey(connectionID), sessionID, ttl)
	if ttl > 0 {
		pipe.Expire(ctx, sessionKey(sessionID), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("register connection: %w", err)
	}
	return nil
}

// ConnectionsFor returns the connection ids registered for a session. An
// empty result is valid: a session may have no listeners.
func (r *RedisRegistry) ConnectionsFor(ctx context.Context, sessionID string) ([]string, error) {
	ids, err := r.client.SMembers(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return ids, nil
}

// Unregister removes a connection. Unknown connections are ignored; the
// transport layer may race its disconnect callback against session deletion.
func (r *RedisRegistry) Unregister(ctx context.Context, connectionID string) error {
	sessionID, err := r.client.Get(ctx, connKey(connectionID)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve connection: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.SRem(ctx, sessionKey(sessionID), connectionID)
	pipe.Del(ctx, connKey(connectionID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("unregister connection: %w", err)
	}
	return nil
}

// DropSession removes every registration owned by the session. Called when
// the session itself is deleted.
func (r *RedisRegistry) DropSession(ctx context.Context, sessionID string) error {
	ids, err := r.client.SMembers(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("list connections: %w", err)
	}

	pipe := r.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, connKey(id))
	}
	pipe.Del(ctx, sessionKey(sessionID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("drop session connections: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (r *RedisRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
