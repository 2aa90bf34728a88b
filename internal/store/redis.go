package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/gravitas-games/gridstash/pkg/inventory"
)

// RedisStore keeps one compressed snapshot per owner under prefix+owner.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	codec  *Codec
}

// NewRedisStore wraps an existing client. The client is owned by the caller.
func NewRedisStore(rdb *redis.Client, prefix string, codec *Codec) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix, codec: codec}
}

func (s *RedisStore) key(owner inventory.OwnerID) string {
	return fmt.Sprintf("%s%s", s.prefix, owner)
}

func (s *RedisStore) Save(ctx context.Context, snap inventory.Snapshot) error {
	b, err := s.codec.Encode(snap)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key(snap.Owner), b, 0).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, owner inventory.OwnerID) (inventory.Snapshot, error) {
	b, err := s.rdb.Get(ctx, s.key(owner)).Bytes()
	if errors.Is(err, redis.Nil) {
		return inventory.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return inventory.Snapshot{}, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return s.codec.Decode(b)
}

// Close is a no-op; the redis client is shared with the server.
func (s *RedisStore) Close() error { return nil }
