package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEmptyCacheKey is returned for operations on a blank key.
var ErrEmptyCacheKey = errors.New("cache key cannot be empty")

// RedisCacheRepo implements core.CacheRepository on Redis. Keys are stored under
// "<namespace>:<key>" so several deployments can share one Redis.
type RedisCacheRepo struct {
	client    redis.UniversalClient
	namespace string
}

// NewRedisCacheRepo returns a cache writing into namespace; an empty namespace stores keys as given.
func NewRedisCacheRepo(client redis.UniversalClient, namespace string) *RedisCacheRepo {
	return &RedisCacheRepo{client: client, namespace: namespace}
}

func (r *RedisCacheRepo) key(k string) (string, error) {
	if k == "" {
		return "", ErrEmptyCacheKey
	}
	if r.namespace == "" {
		return k, nil
	}
	return r.namespace + ":" + k, nil
}

func (r *RedisCacheRepo) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	k, err := r.key(key)
	if err != nil {
		return err
	}
	if err = r.client.Set(ctx, k, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", k, err)
	}
	return nil
}

// Get returns nil without error on a miss.
func (r *RedisCacheRepo) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := r.key(key)
	if err != nil {
		return nil, err
	}
	b, err := r.client.Get(ctx, k).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("redis get %s: %w", k, err)
	}
	return b, nil
}

func (r *RedisCacheRepo) Delete(ctx context.Context, key string) (bool, error) {
	k, err := r.key(key)
	if err != nil {
		return false, err
	}
	n, err := r.client.Del(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("redis del %s: %w", k, err)
	}
	return n > 0, nil
}
