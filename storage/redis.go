package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/nidhogg/engram/memory"
)

// DefaultRedisKey is where RedisBackend stores the snapshot blob unless a
// key is configured.
const DefaultRedisKey = "engram:snapshot"

// RedisBackend persists snapshots as a single JSON blob under one key.
// Redis works well when the store is small enough that whole-snapshot
// writes stay cheap and restarts need to be fast.
type RedisBackend struct {
	client *redis.Client
	key    string
}

var _ Backend = (*RedisBackend)(nil)

// NewRedisBackend parses a redis:// URL, pings the server, and returns a
// backend bound to key. An empty key falls back to DefaultRedisKey.
func NewRedisBackend(ctx context.Context, url, key string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisBackend{client: client, key: key}, nil
}

func (b *RedisBackend) Load(ctx context.Context) (*Snapshot, error) {
	data, err := b.client.Get(ctx, b.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return emptySnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w: %w", b.key, memory.ErrStorage, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w: %w", b.key, memory.ErrSerialization, err)
	}
	if err := checkVersion(snap.Version); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (b *RedisBackend) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w: %w", memory.ErrSerialization, err)
	}
	if err := b.client.Set(ctx, b.key, data, 0).Err(); err != nil {
		return fmt.Errorf("write snapshot %s: %w: %w", b.key, memory.ErrStorage, err)
	}
	return nil
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
