package store

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/gravitas-games/gridstash/internal/config"
	"github.com/gravitas-games/gridstash/pkg/inventory"
	"github.com/sirupsen/logrus"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func sampleSnapshot(t *testing.T, owner inventory.OwnerID) inventory.Snapshot {
	t.Helper()
	inv := inventory.New("inv-"+string(owner), owner, inventory.SampleCatalog())
	defer inv.Close()
	if _, err := inv.AddItemAuto("bread", 3); err != nil {
		t.Fatalf("add bread: %v", err)
	}
	if _, err := inv.AddItemAuto("sword", 1); err != nil {
		t.Fatalf("add sword: %v", err)
	}
	return inv.Snapshot()
}

func mustCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec("default")
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	return c
}

func TestCodecRoundTrip(t *testing.T) {
	c := mustCodec(t)
	snap := sampleSnapshot(t, "p1")
	b, err := c.Encode(snap)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := c.Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Owner != snap.Owner || back.Revision != snap.Revision || len(back.Containers) != len(snap.Containers) {
		t.Fatalf("snapshot changed: %+v vs %+v", back, snap)
	}
	if len(back.Containers[0].Entries) != 2 {
		t.Fatalf("expected 2 backpack entries, got %d", len(back.Containers[0].Entries))
	}
	if _, err := c.Decode([]byte("not zstd")); err == nil {
		t.Fatalf("garbage must not decode")
	}
	if _, err := NewCodec("ultra"); err == nil {
		t.Fatalf("unknown level must fail")
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore(mustCodec(t))
	ctx := context.Background()
	if _, err := s.Load(ctx, "p1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	snap := sampleSnapshot(t, "p1")
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(ctx, "p1")
	if err != nil || got.ID != snap.ID {
		t.Fatalf("load: %+v %v", got, err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected one snapshot")
	}
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "inv.db")
	s, err := OpenSQLite(path, mustCodec(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	if _, err := s.Load(ctx, "p1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	snap := sampleSnapshot(t, "p1")
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap.Revision++
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("second save: %v", err)
	}
	got, err := s.Load(ctx, "p1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Revision != snap.Revision {
		t.Fatalf("expected latest revision %d, got %d", snap.Revision, got.Revision)
	}
	inv, err := inventory.Restore(got, inventory.SampleCatalog())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	defer inv.Close()
	if inv.UnitCount("bread") != 3 {
		t.Fatalf("expected 3 bread after restore")
	}

	hist, err := s.History(ctx, "p1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 || hist[1].Revision != snap.Revision || hist[0].Size == 0 {
		t.Fatalf("unexpected journal %+v", hist)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	s, err := Open(config.StorageConfig{Driver: "memory", Compression: "fastest"}, nil, quietLogger())
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Fatalf("expected a MemoryStore, got %T", s)
	}
	if _, err := Open(config.StorageConfig{Driver: "redis", Compression: "default"}, nil, quietLogger()); err == nil {
		t.Fatalf("redis driver without a client must fail")
	}
	sq, err := Open(config.StorageConfig{Driver: "sqlite", Compression: "best", SQLitePath: filepath.Join(t.TempDir(), "a.db")}, nil, quietLogger())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sq.Close()
}

func TestRedisKey(t *testing.T) {
	s := NewRedisStore(nil, "inventory:", mustCodec(t))
	if got := s.key("42"); got != "inventory:42" {
		t.Fatalf("unexpected key %q", got)
	}
}
