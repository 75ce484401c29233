package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ledgerlab/payments/internal/domain"
)

// ResponseCache is a read-through fast path for idempotent replays. The
// idempotency_keys table stays authoritative: a miss, a stale entry, or
// a Redis outage all degrade to the database path.
type ResponseCache struct {
	client    redis.UniversalClient
	namespace string
	log       *slog.Logger
}

func NewResponseCache(client redis.UniversalClient, namespace string, log *slog.Logger) *ResponseCache {
	return &ResponseCache{
		client:    client,
		namespace: namespace,
		log:       log,
	}
}

func (c *ResponseCache) key(k string) string {
	return fmt.Sprintf("%s:idempotency:%s", c.namespace, k)
}

// Entry pairs the stored response with the request hash it answered, so
// a replayed key with a different body is never served from cache.
type Entry struct {
	RequestHash string                 `json:"request_hash"`
	Response    domain.PaymentResponse `json:"response"`
}

func (c *ResponseCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	val, err := c.client.Get(ctx, c.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("redis GET idempotency key: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		c.log.WarnContext(ctx, "corrupt idempotency cache entry", "key", key, "err", err)
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (c *ResponseCache) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal idempotency cache entry: %w", err)
	}

	ok, err := c.client.SetNX(ctx, c.key(key), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis SETNX idempotency key: %w", err)
	}
	if !ok {
		c.log.DebugContext(ctx, "idempotency key already cached", "key", key)
	}
	return nil
}

type Config struct {
	Addr     string
	Password string
	// Redis logical database number
	DB int
}

func NewClient(cfg Config) redis.UniversalClient {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     20,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
}

func Ping(ctx context.Context, client redis.UniversalClient) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
