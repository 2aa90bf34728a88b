// Package store persists inventory snapshots between sessions.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/gravitas-games/gridstash/internal/config"
	"github.com/gravitas-games/gridstash/pkg/inventory"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned by Load when no snapshot exists for an owner.
var ErrNotFound = errors.New("store: snapshot not found")

// Store keeps the latest snapshot of each player's inventory.
type Store interface {
	// Save replaces the stored snapshot for snap.Owner.
	Save(ctx context.Context, snap inventory.Snapshot) error

	// Load returns the stored snapshot for owner or ErrNotFound.
	Load(ctx context.Context, owner inventory.OwnerID) (inventory.Snapshot, error)

	// Close releases the backend.
	Close() error
}

// Open builds the store selected by cfg. rdb is only used by the redis driver.
func Open(cfg config.StorageConfig, rdb *redis.Client, log logrus.FieldLogger) (Store, error) {
	codec, err := NewCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}
	log = log.WithField("driver", cfg.Driver)

	switch cfg.Driver {
	case "memory":
		log.Info("Using in-memory inventory store")
		return NewMemoryStore(codec), nil
	case "sqlite":
		s, err := OpenSQLite(cfg.SQLitePath, codec)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		log.WithField("path", cfg.SQLitePath).Info("Using SQLite inventory store")
		return s, nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis store requires a redis client")
		}
		log.WithField("prefix", cfg.RedisPrefix).Info("Using Redis inventory store")
		return NewRedisStore(rdb, cfg.RedisPrefix, codec), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
