// Package cache is the generation cache: validated bibles keyed by content fingerprint.
package cache

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ErrMiss is returned by KV.Get when the key is absent.
var ErrMiss = errors.New("cache miss")

// KV is the get/set-with-TTL capability the cache needs.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type redisKV struct {
	rdb goredis.Cmdable
}

// NewRedisKV adapts a go-redis client.
func NewRedisKV(rdb goredis.Cmdable) KV {
	return &redisKV{rdb: rdb}
}

func (r *redisKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrMiss
	}
	return b, err
}

func (r *redisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

// NopKV never stores anything. It stands in when redis is unavailable.
type NopKV struct{}

func (NopKV) Get(context.Context, string) ([]byte, error) { return nil, ErrMiss }
func (NopKV) Set(context.Context, string, []byte, time.Duration) error { return nil }
