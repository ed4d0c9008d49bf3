package storage

import (
	"context"
	"time"
)

// KV is the subset of the Redis service the tier needs.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// RedisTier stores values under a key prefix so several clients can share one Redis.
type RedisTier struct {
	kv     KV
	prefix string
}

func NewRedisTier(kv KV, prefix string) *RedisTier {
	return &RedisTier{kv: kv, prefix: prefix}
}

func (r *RedisTier) Name() string { return "redis" }

func (r *RedisTier) Get(ctx context.Context, key string) (string, bool, error) {
	return r.kv.Get(ctx, r.prefix+key)
}

// Set writes without expiration. Token lifetimes are tracked by the store itself.
func (r *RedisTier) Set(ctx context.Context, key, value string) error {
	return r.kv.Set(ctx, r.prefix+key, value, 0)
}

func (r *RedisTier) Remove(ctx context.Context, key string) error {
	return r.kv.Delete(ctx, r.prefix+key)
}

func (r *RedisTier) Close() error {
	return r.kv.Close()
}
