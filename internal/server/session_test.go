package server

import (
	"context"
	"errors"
	"testing"

	"github.com/gravitas-games/gridstash/internal/store"
	"github.com/gravitas-games/gridstash/pkg/inventory"
	"github.com/gravitas-games/gridstash/pkg/models"
)

func newTestSession(t *testing.T) (*Session, *store.MemoryStore) {
	t.Helper()
	codec, err := store.NewCodec("default")
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	mem := store.NewMemoryStore(codec)
	grid := inventory.ContainerMeta{Grid: inventory.Size{W: 3, H: 3}, PerishMultiplier: 1}
	return NewSession("test", mem, testCatalog(), quietLogger(), inventory.WithBackpack(grid)), mem
}

func TestSessionAttachDetach(t *testing.T) {
	s, mem := newTestSession(t)
	ctx := context.Background()
	p := &models.Player{ID: "7", Username: "g"}

	inv, err := s.Attach(ctx, p, nil)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if !p.IsConnected() || p.InventoryID != inv.ID() {
		t.Fatalf("player state not updated: %+v", p)
	}
	if _, err := s.Attach(ctx, &models.Player{ID: "7"}, nil); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}
	if got := s.GetStatus().PlayerCount; got != 1 {
		t.Fatalf("expected one player, got %d", got)
	}
	if _, err := inv.AddItemAuto("rock", 4); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.SaveAll(ctx); err != nil || mem.Len() != 1 {
		t.Fatalf("save all: %v (len %d)", err, mem.Len())
	}

	if err := s.Detach(ctx, "7"); err != nil {
		t.Fatalf("detach: %v", err)
	}
	if p.IsConnected() || len(s.GetPlayers()) != 0 {
		t.Fatalf("player should be gone")
	}
	if err := s.Detach(ctx, "7"); err != nil {
		t.Fatalf("second detach must be a no-op: %v", err)
	}

	again, err := s.Attach(ctx, &models.Player{ID: "7"}, nil)
	if err != nil {
		t.Fatalf("reattach: %v", err)
	}
	defer again.Close()
	if again.UnitCount("rock") != 4 || again.Revision() != inv.Revision() {
		t.Fatalf("reattach should restore the saved inventory")
	}
	if m, _ := again.Meta(inventory.Backpack()); m.Grid != (inventory.Size{W: 3, H: 3}) {
		t.Fatalf("unexpected backpack %+v", m.Grid)
	}
	if live, ok := s.Inventory("7"); !ok || live != again {
		t.Fatalf("live inventory lookup failed")
	}
}
