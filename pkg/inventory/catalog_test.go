package inventory

import (
	"strings"
	"testing"
)

const catalogYAML = `
items:
  - id: apple
    name: Apple
    tags: [Food, consumable]
    max_stack: 5
    footprint: {w: 1, h: 1}
    perishable: true
    perish_seconds: 600
    perish_to: rotten_apple
  - id: rotten_apple
    max_stack: 10
    footprint: {w: 1, h: 1}
  - id: quiver
    footprint: {w: 1, h: 2}
    pocket:
      grid: {w: 2, h: 3}
      whitelist: [ammunition]
`

func TestLoadRegistry(t *testing.T) {
	reg, err := LoadRegistry(strings.NewReader(catalogYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if reg.Len() != 3 {
		t.Fatalf("expected 3 items, got %d", reg.Len())
	}
	apple, ok := reg.Lookup("apple")
	if !ok || !apple.CanPerish() || apple.StackLimit() != 5 || !apple.HasTag("food") {
		t.Fatalf("unexpected apple %+v", apple)
	}
	q, _ := reg.Lookup("quiver")
	if q.StackLimit() != 1 || q.Pocket == nil || q.Pocket.Meta().Grid != (Size{W: 2, H: 3}) {
		t.Fatalf("unexpected quiver %+v", q)
	}
	if q.Pocket.Meta().PerishMultiplier != 1 {
		t.Fatalf("missing multiplier should mean normal decay, got %v", q.Pocket.Meta().PerishMultiplier)
	}
	tiny := PocketSpec{Grid: Size{W: 1, H: 1}, PerishMultiplier: 0.0001}
	if tiny.Meta().PerishMultiplier != minPerishMultiplier {
		t.Fatalf("tiny multiplier should clamp, got %v", tiny.Meta().PerishMultiplier)
	}
	exported := reg.Export()
	if len(exported) != 3 || exported[0].ID != "apple" {
		t.Fatalf("export should be ordered by numeric id, got %+v", exported)
	}
}

func TestLoadRegistryRejectsDanglingPerishTarget(t *testing.T) {
	_, err := LoadRegistry(strings.NewReader("items:\n  - id: a\n    perish_to: b\n"))
	if err == nil {
		t.Fatalf("expected an error for an unknown perish_to target")
	}
}

func TestRegistryNumericIDs(t *testing.T) {
	reg := NewRegistry(ItemDetails{ID: "a"}, ItemDetails{ID: "b", NumericID: 10})
	if a, _ := reg.Lookup("a"); a.NumericID != 1 {
		t.Fatalf("expected numeric id 1 for a, got %d", a.NumericID)
	}
	if err := reg.RegisterDetails(ItemDetails{ID: "c", NumericID: 10}); err == nil {
		t.Fatalf("expected collision error")
	}
	if d, ok := reg.LookupByRegistryID(10); !ok || d.ID != "b" {
		t.Fatalf("lookup by numeric id failed")
	}
	if err := reg.RegisterDetails(ItemDetails{ID: "d"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if d, _ := reg.Lookup("d"); d.NumericID != 11 {
		t.Fatalf("expected next id 11, got %d", d.NumericID)
	}
}

func TestSampleCatalogIsConsistent(t *testing.T) {
	reg := SampleCatalog()
	for _, d := range reg.Export() {
		if d.PerishTo != "" {
			if _, ok := reg.Lookup(d.PerishTo); !ok {
				t.Errorf("%s perishes into unknown %s", d.ID, d.PerishTo)
			}
		}
	}
	inv := New("demo", "demo", reg, WithLogger(quietLogger()), WithTimerFunc((&timerRecorder{}).arm))
	if _, err := inv.AddPocketFromItem("quiver"); err != nil {
		t.Fatalf("pocket from quiver: %v", err)
	}
	if _, err := inv.AddPocketFromItem("apple"); err == nil {
		t.Fatalf("apple does not provide a pocket")
	}
	if res, err := inv.AddItemAuto("arrow", 30); err != nil || res.Placed != 30 {
		t.Fatalf("arrows: %+v %v", res, err)
	}
	if inv.UnitCount("arrow") != 30 {
		t.Fatalf("expected 30 arrows")
	}
	pocket, _ := inv.Entries(Pocket(0))
	if len(pocket) != 2 {
		t.Fatalf("expected arrows to fill the quiver first, got %d stacks", len(pocket))
	}
}
