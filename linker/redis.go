package linker

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis defaults.
const (
	DefaultKeyPrefix  = "kgraph:pending:"
	DefaultPendingTTL = 7 * 24 * time.Hour
)

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// TLS configuration for secure connections
	TLS *tls.Config

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration

	// KeyPrefix namespaces the pending lists. Default DefaultKeyPrefix.
	KeyPrefix string

	// TTL expires a pending list that has not been added to for this long.
	// Zero selects DefaultPendingTTL; negative disables expiry.
	TTL time.Duration

	// Logger reports entries that cannot be decoded.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// RedisPending keeps pending links in Redis lists, one list per missing
// node id, so deferred links survive restarts and are shared by every
// ingestion worker.
type RedisPending struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

var _ PendingStore = (*RedisPending)(nil)

// NewRedisPending connects to Redis.
func NewRedisPending(opts RedisOptions) (*RedisPending, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 3 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 3 * time.Second
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.TTL == 0 {
		opts.TTL = DefaultPendingTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisPending{client: client, prefix: opts.KeyPrefix, ttl: opts.TTL, logger: opts.Logger}, nil
}

func (r *RedisPending) key(id string) string {
	return r.prefix + id
}

// Add appends link to the list for key and refreshes its TTL.
func (r *RedisPending) Add(ctx context.Context, key string, link PendingLink) error {
	data, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("failed to marshal pending link: %w", err)
	}

	k := r.key(key)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, k, data)
		if r.ttl > 0 {
			pipe.Expire(ctx, k, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to queue pending link for %s: %w", key, err)
	}
	return nil
}

// Take reads and deletes the list for key in one transaction. Entries that
// do not decode are logged and skipped.
func (r *RedisPending) Take(ctx context.Context, key string) ([]PendingLink, error) {
	k := r.key(key)

	var items *redis.StringSliceCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		items = pipe.LRange(ctx, k, 0, -1)
		pipe.Del(ctx, k)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to take pending links for %s: %w", key, err)
	}

	raw := items.Val()
	links := make([]PendingLink, 0, len(raw))
	for i, s := range raw {
		var link PendingLink
		if err := json.Unmarshal([]byte(s), &link); err != nil {
			r.logger.Error("discarding undecodable pending link",
				"key", k,
				"index", i,
				"error", err)
			continue
		}
		links = append(links, link)
	}
	return links, nil
}

// Len scans the prefix and sums list lengths.
func (r *RedisPending) Len(ctx context.Context) (int, error) {
	total := 0
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n, err := r.client.LLen(ctx, iter.Val()).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to count pending links: %w", err)
		}
		total += int(n)
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan pending keys: %w", err)
	}
	return total, nil
}

// Ping checks the Redis connection.
func (r *RedisPending) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *RedisPending) Close() error {
	return r.client.Close()
}
