// Package redis implements store.Store on Redis. Each delivery is a Hash and
// a single Sorted Set scored by RunAt orders them for claiming. Claims run
// as one Lua script so concurrent workers never lease the same delivery.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/stepchain/store"
)

var _ store.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithPrefix sets the key prefix. Use distinct prefixes to run several
// pipelines against one Redis database.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithOwnedClient makes Close close the client. Use it when the store
// created the client itself, as the CLI does.
func WithOwnedClient() Option {
	return func(s *Store) { s.owned = true }
}

// Store implements store.Store backed by Redis.
type Store struct {
	client redis.Cmdable
	logger *slog.Logger
	prefix string
	owned  bool
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle unless WithOwnedClient is given.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default(), prefix: defaultKeyPrefix}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client when the store owns it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	if c, ok := s.client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
