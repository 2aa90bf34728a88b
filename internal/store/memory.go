package store

import (
	"context"
	"sync"

	"github.com/gravitas-games/gridstash/pkg/inventory"
)

// MemoryStore keeps encoded snapshots in a map. Snapshots still go through
// the codec so callers never share slices with the store.
type MemoryStore struct {
	codec *Codec
	mu    sync.RWMutex
	data  map[inventory.OwnerID][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(codec *Codec) *MemoryStore {
	return &MemoryStore{codec: codec, data: make(map[inventory.OwnerID][]byte)}
}

func (m *MemoryStore) Save(ctx context.Context, snap inventory.Snapshot) error {
	b, err := m.codec.Encode(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[snap.Owner] = b
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Load(ctx context.Context, owner inventory.OwnerID) (inventory.Snapshot, error) {
	m.mu.RLock()
	b, ok := m.data[owner]
	m.mu.RUnlock()
	if !ok {
		return inventory.Snapshot{}, ErrNotFound
	}
	return m.codec.Decode(b)
}

// Len returns the number of stored snapshots.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *MemoryStore) Close() error { return nil }
