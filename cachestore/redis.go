package cachestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultKeyPrefix   = "login:token-cache:"
	DefaultDialTimeout = 5 * time.Second
	scanBatchSize      = 100
)

var _ Store = (*RedisStore)(nil)

// RedisStore keeps cache blobs in Redis under a common key prefix so that
// RetainOnly never touches keys owned by other applications.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStore connects to the redis:// endpoint and verifies the connection.
func NewRedisStore(ctx context.Context, endpoint, keyPrefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(endpoint)
	if err != nil {
		return nil, fmt.Errorf("[NewRedisStore] invalid endpoint: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = DefaultDialTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("[NewRedisStore] failed to connect to redis: %w", err)
	}
	return NewRedisStoreWithClient(client, keyPrefix), nil
}

// NewRedisStoreWithClient wraps an existing client. Useful with miniredis.
func NewRedisStoreWithClient(client redis.UniversalClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) key(sessionID string) string {
	return s.keyPrefix + sessionID
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	blob, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("[RedisStore Get] %s: %w", key, err)
	}
	return blob, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, blob []byte) error {
	if err := s.client.Set(ctx, s.key(key), blob, 0).Err(); err != nil {
		return fmt.Errorf("[RedisStore Set] %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("[RedisStore Delete] %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) RetainOnly(ctx context.Context, keys []string) (int, error) {
	keep := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		keep[s.key(k)] = struct{}{}
	}

	var stale []string
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if !strings.HasPrefix(k, s.keyPrefix) {
			continue
		}
		if _, ok := keep[k]; !ok {
			stale = append(stale, k)
		}
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("[RedisStore RetainOnly] scan: %w", err)
	}

	removed := 0
	for start := 0; start < len(stale); start += scanBatchSize {
		end := min(start+scanBatchSize, len(stale))
		n, err := s.client.Del(ctx, stale[start:end]...).Result()
		removed += int(n)
		if err != nil {
			return removed, fmt.Errorf("[RedisStore RetainOnly] delete: %w", err)
		}
	}
	return removed, nil
}

func (s *RedisStore) Health(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
