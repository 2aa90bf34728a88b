package models

import "testing"

func TestPlayerStatus(t *testing.T) {
	p := &Player{ID: "42", Activated: 1700000000}
	if !p.IsActive() || p.IsBanned() {
		t.Fatalf("activated player should be active")
	}
	if p.Owner() != "42" {
		t.Fatalf("owner should be the player id, got %q", p.Owner())
	}
	p.Activated = -1
	if p.IsActive() || !p.IsBanned() {
		t.Fatalf("banned player should not be active")
	}
	p.Activated = 0
	if p.IsActive() || p.IsBanned() {
		t.Fatalf("pending player is neither active nor banned")
	}
}
