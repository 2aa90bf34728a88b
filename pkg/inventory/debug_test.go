package inventory

import (
	"errors"
	"strings"
	"testing"
)

func TestParseContainerID(t *testing.T) {
	cases := map[string]ContainerID{
		"bp":       Backpack(),
		"B":        Backpack(),
		"Backpack": Backpack(),
		"p0":       Pocket(0),
		"pocket_2": Pocket(2),
		"Pocket3":  Pocket(3),
	}
	for in, want := range cases {
		got, err := ParseContainerID(in)
		if err != nil || got != want {
			t.Errorf("ParseContainerID(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "x1", "p", "pocket_-1", "pz"} {
		if _, err := ParseContainerID(bad); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("ParseContainerID(%q) should fail, got %v", bad, err)
		}
	}
}

func TestApplyFilterOps(t *testing.T) {
	meta := grid(2, 2)
	meta.FiltersEditable = true
	meta.Whitelist = []string{"junk"}
	inv, _, _ := newTestInventory(t, WithPocket(meta))
	if err := inv.ApplyFilterOps(0, "+ammo, -junk, -food"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	m, _ := inv.Meta(Pocket(0))
	if strings.Join(m.Whitelist, ",") != "ammunition" || strings.Join(m.Blacklist, ",") != "food,junk" {
		t.Fatalf("unexpected filters %+v", m)
	}
	if err := inv.ApplyFilterOps(0, "*food"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if err := inv.ApplyFilterOps(3, "+food"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOverlayAndSummary(t *testing.T) {
	inv, _, _ := newTestInventory(t, WithBackpack(grid(3, 3)))
	inv.AddItemAuto("stick", 1)
	inv.AddItemAuto("apple", 2)
	out, err := inv.Overlay(Backpack())
	if err != nil {
		t.Fatalf("overlay: %v", err)
	}
	want := "**.\nS..\nS..\n"
	if out != want {
		t.Fatalf("unexpected overlay:\n%s\nwant:\n%s", out, want)
	}
	if _, err := inv.Overlay(Pocket(0)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a missing pocket")
	}
	s := inv.Summary()
	if !strings.Contains(s, "Backpack 3x3") || !strings.Contains(s, "apple x2 at (1,0)") || !strings.Contains(s, "perish 1 in 60s") {
		t.Fatalf("unexpected summary:\n%s", s)
	}
}
