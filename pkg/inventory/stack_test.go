package inventory

import (
	"errors"
	"testing"
)

func TestNewInstance(t *testing.T) {
	cat := testCatalog()
	if _, err := NewInstance(cat, "ghost", 1, 1, t0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := NewInstance(cat, "rock", 0, 1, t0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	sword, err := NewInstance(cat, "sword", 1, 1, t0)
	if err != nil {
		t.Fatalf("sword: %v", err)
	}
	if sword.Durability != 100 || sword.Wear != 50 {
		t.Fatalf("expected durability 100 and wear 50, got %d/%d", sword.Durability, sword.Wear)
	}
	apples, _ := NewInstance(cat, "apple", 4, 1, t0)
	if apples.Perish.Next.Epoch != t0.Unix()+60 || apples.Perish.Next.Count != 1 || apples.Perish.HasLater() {
		t.Fatalf("unexpected perish buckets %+v", apples.Perish)
	}
	slow, _ := NewInstance(cat, "apple", 1, 0, t0)
	if slow.Perish.Next.Epoch != t0.Unix()+6000 {
		t.Fatalf("multiplier should clamp to 0.01, got +%d", slow.Perish.Next.Epoch-t0.Unix())
	}
	if apples.ID == slow.ID {
		t.Fatalf("instance ids must be unique")
	}
}

func TestMergeRules(t *testing.T) {
	cat := testCatalog()
	a, _ := NewInstance(cat, "rock", 7, 1, t0)
	b, _ := NewInstance(cat, "rock", 6, 1, t0)
	moved, err := Merge(cat, &a, &b)
	if err != nil || moved != 3 {
		t.Fatalf("expected 3 moved, got %d (%v)", moved, err)
	}
	if a.Count != 10 || b.Count != 3 {
		t.Fatalf("expected 10 and 3, got %d and %d", a.Count, b.Count)
	}
	moved, err = Merge(cat, &a, &b)
	if err != nil || moved != 0 {
		t.Fatalf("full target should move nothing without error, got %d (%v)", moved, err)
	}

	arrow, _ := NewInstance(cat, "arrow", 1, 1, t0)
	if _, err := Merge(cat, &a, &arrow); !errors.Is(err, ErrPolicyRejected) {
		t.Fatalf("expected ErrPolicyRejected for different items, got %v", err)
	}

	r1, _ := NewInstance(cat, "ring", 1, 1, t0)
	r2, _ := NewInstance(cat, "ring", 1, 1, t0)
	r1.BoundOwner = "alice"
	if _, err := Merge(cat, &r1, &r2); !errors.Is(err, ErrPolicyRejected) {
		t.Fatalf("expected ErrPolicyRejected for one-sided binding, got %v", err)
	}
	r2.BoundOwner = "bob"
	if _, err := Merge(cat, &r1, &r2); !errors.Is(err, ErrPolicyRejected) {
		t.Fatalf("expected ErrPolicyRejected for different owners, got %v", err)
	}
	r2.BoundOwner = "alice"
	if moved, err := Merge(cat, &r1, &r2); err != nil || moved != 1 {
		t.Fatalf("same owner should merge, got %d (%v)", moved, err)
	}
}

func TestMergeCombinesPerishBuckets(t *testing.T) {
	cat := testCatalog()
	target := ItemInstance{ID: "t", Item: "apple", Count: 2, Perish: PerishBuckets{
		Next: PerishBucket{Epoch: 100, Count: 1}, Later: PerishBucket{Epoch: 300, Count: 1}}}
	source := ItemInstance{ID: "s", Item: "apple", Count: 3, Perish: PerishBuckets{
		Next: PerishBucket{Epoch: 100, Count: 1}, Later: PerishBucket{Epoch: 200, Count: 1}}}
	moved, err := Merge(cat, &target, &source)
	if err != nil || moved != 3 {
		t.Fatalf("expected 3 moved, got %d (%v)", moved, err)
	}
	if target.Perish.Next != (PerishBucket{Epoch: 100, Count: 2}) {
		t.Fatalf("equal epochs should accumulate, got %+v", target.Perish.Next)
	}
	// 300 is the third epoch and folds into the later bucket
	if target.Perish.Later != (PerishBucket{Epoch: 200, Count: 2}) {
		t.Fatalf("unexpected later bucket %+v", target.Perish.Later)
	}
	if source.Count != 0 || source.Perish.HasNext() {
		t.Fatalf("drained source should keep no deadlines, got %+v", source.Perish)
	}
}

func TestSplitRules(t *testing.T) {
	cat := testCatalog()
	apples, _ := NewInstance(cat, "apple", 5, 1, t0)
	if _, err := Split(&apples, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for 0, got %v", err)
	}
	if _, err := Split(&apples, 5); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for whole stack, got %v", err)
	}
	part, err := Split(&apples, 2)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if part.Count != 2 || apples.Count != 3 || part.ID == apples.ID {
		t.Fatalf("unexpected split result %+v / %+v", part, apples)
	}
	if part.Perish != apples.Perish {
		t.Fatalf("split must copy perish buckets")
	}

	pair := ItemInstance{ID: "p", Item: "sword", Count: 3, Durability: 40, Wear: 10}
	one, _ := Split(&pair, 1)
	if pair.Durability != 0 || one.Durability != 40 {
		t.Fatalf("durability resets only on stacks above one, got %d and %d", pair.Durability, one.Durability)
	}
}

func TestRescaleDeadlines(t *testing.T) {
	p := PerishBuckets{Next: PerishBucket{Epoch: t0.Unix() + 10, Count: 1}, Later: PerishBucket{Epoch: t0.Unix() + 40, Count: 1}}
	rescaleDeadlines(&p, 2, t0)
	if p.Next.Epoch != t0.Unix()+20 || p.Later.Epoch != t0.Unix()+80 {
		t.Fatalf("unexpected rescale %+v", p)
	}
}

func TestMergeScaledOnlyStretchesMovedUnits(t *testing.T) {
	n := t0.Unix()
	target := ItemInstance{ID: "t", Item: "apple", Count: 4,
		Perish: PerishBuckets{Next: PerishBucket{Epoch: n + 30, Count: 1}}}
	source := ItemInstance{ID: "s", Item: "apple", Count: 3,
		Perish: PerishBuckets{Next: PerishBucket{Epoch: n + 57, Count: 1}, Later: PerishBucket{Epoch: n + 119, Count: 2}}}
	moved, err := mergeScaled(testCatalog(), &target, &source, 0.5, t0)
	if err != nil || moved != 1 {
		t.Fatalf("expected one unit moved, got %d %v", moved, err)
	}
	if source.Perish.Later.Epoch != n+119 || source.Perish.Later.Count != 2 {
		t.Fatalf("units left behind must keep their deadline, got %+v", source.Perish)
	}
	if target.Perish.Next.Epoch != n+29 || target.Perish.Later.Epoch != n+30 {
		t.Fatalf("moved unit should carry a halved deadline, got %+v", target.Perish)
	}
}
