package inventory

// Package inventory implements a server-authoritative grid inventory: a
// backpack plus any number of pockets, each a rectangular grid holding item
// stacks. Stacks merge and split under catalog rules, perishable stacks decay
// on a timer, and every committed change is recorded for incremental sync.

import (
	"fmt"
	"strconv"
	"strings"
)

// ItemID identifies an item definition in the catalog.
type ItemID string

// OwnerID identifies the player (or character) an inventory or instance is
// bound to.
type OwnerID string

// InstanceID uniquely identifies a single stack instance.
type InstanceID string

// RegistryID is a numeric handle suitable for compact storage (e.g. databases).
// IDs start at 1 and increment as new items are registered unless explicitly
// provided via ItemDetails.NumericID.
type RegistryID int64

// Point represents a grid coordinate (x, y) with origin at top-left.
type Point struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Size is a rectangular footprint or grid dimension in cells.
type Size struct {
	W int `json:"w" yaml:"w"`
	H int `json:"h" yaml:"h"`
}

// Rotated returns the size turned by 90 degrees.
func (s Size) Rotated() Size { return Size{W: s.H, H: s.W} }

// Area returns the number of cells covered.
func (s Size) Area() int { return s.W * s.H }

// Square reports whether rotating the size is a no-op.
func (s Size) Square() bool { return s.W == s.H }

func (s Size) normalized() Size {
	if s.W <= 0 {
		s.W = 1
	}
	if s.H <= 0 {
		s.H = 1
	}
	return s
}

// PerishBucket is a group of units of one instance that perish at the same
// unix epoch (seconds).
type PerishBucket struct {
	Epoch int64 `json:"epoch,omitempty"`
	Count int   `json:"count,omitempty"`
}

func (b PerishBucket) valid() bool { return b.Epoch > 0 && b.Count > 0 }

// PerishBuckets tracks the two earliest perish deadlines of an instance.
type PerishBuckets struct {
	Next  PerishBucket `json:"next"`
	Later PerishBucket `json:"later"`
}

// HasNext reports whether a next deadline is scheduled.
func (p PerishBuckets) HasNext() bool { return p.Next.valid() }

// HasLater reports whether a second deadline is scheduled.
func (p PerishBuckets) HasLater() bool { return p.Later.valid() }

// PromoteLater moves the later bucket into next and clears later.
func (p *PerishBuckets) PromoteLater() {
	p.Next = p.Later
	p.Later = PerishBucket{}
}

// Clear drops both deadlines.
func (p *PerishBuckets) Clear() {
	p.Next = PerishBucket{}
	p.Later = PerishBucket{}
}

// ItemInstance is one stack of a single item.
type ItemInstance struct {
	ID         InstanceID    `json:"id"`
	Item       ItemID        `json:"item"`
	Count      int           `json:"count"`
	BoundOwner OwnerID       `json:"boundOwner,omitempty"`
	Durability int           `json:"durability,omitempty"`
	Wear       int           `json:"wear,omitempty"`
	Perish     PerishBuckets `json:"perish"`
}

// Bound reports whether the instance is bound to an owner.
func (in ItemInstance) Bound() bool { return in.BoundOwner != "" }

// Entry is an instance placed inside a container grid. Footprint is the
// placed footprint, already rotated when Rotated is set.
type Entry struct {
	Instance  ItemInstance `json:"instance"`
	TopLeft   Point        `json:"topLeft"`
	Rotated   bool         `json:"rotated,omitempty"`
	Footprint Size         `json:"footprint"`
}

// BaseFootprint returns the unrotated footprint of the entry.
func (e Entry) BaseFootprint() Size {
	if e.Rotated {
		return e.Footprint.Rotated()
	}
	return e.Footprint
}

// ContainerKind distinguishes the backpack from pockets.
type ContainerKind int

const (
	// KindBackpack is the single main grid of an inventory.
	KindBackpack ContainerKind = iota
	// KindPocket is one of the indexed secondary grids.
	KindPocket
)

// ContainerID names a container inside an inventory.
type ContainerID struct {
	Kind  ContainerKind
	Index int
}

// Backpack returns the backpack container id.
func Backpack() ContainerID { return ContainerID{Kind: KindBackpack} }

// Pocket returns the container id for pocket i.
func Pocket(i int) ContainerID { return ContainerID{Kind: KindPocket, Index: i} }

// String renders the id as "Backpack" or "Pocket_<i>".
func (c ContainerID) String() string {
	if c.Kind == KindBackpack {
		return "Backpack"
	}
	return "Pocket_" + strconv.Itoa(c.Index)
}

// MarshalText implements encoding.TextMarshaler.
func (c ContainerID) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It accepts every form
// ParseContainerID accepts.
func (c *ContainerID) UnmarshalText(b []byte) error {
	id, err := ParseContainerID(string(b))
	if err != nil {
		return err
	}
	*c = id
	return nil
}

// ParseContainerID parses "bp", "b", "backpack", "pN", "pocketN" or
// "pocket_N" (case-insensitive).
func ParseContainerID(s string) (ContainerID, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "bp", "b", "backpack":
		return Backpack(), nil
	}
	var digits string
	switch {
	case strings.HasPrefix(v, "pocket_"):
		digits = v[len("pocket_"):]
	case strings.HasPrefix(v, "pocket"):
		digits = v[len("pocket"):]
	case strings.HasPrefix(v, "p"):
		digits = v[1:]
	default:
		return ContainerID{}, fmt.Errorf("%w: unknown container %q", ErrInvalidArgument, s)
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return ContainerID{}, fmt.Errorf("%w: bad pocket index in %q", ErrInvalidArgument, s)
	}
	return Pocket(n), nil
}

// ContainerMeta holds the policy of a container.
type ContainerMeta struct {
	Grid             Size     `json:"grid" yaml:"grid"`
	PerishMultiplier float64  `json:"perishMultiplier" yaml:"perish_multiplier"`
	Whitelist        []string `json:"whitelist,omitempty" yaml:"whitelist"`
	Blacklist        []string `json:"blacklist,omitempty" yaml:"blacklist"`
	FiltersEditable  bool     `json:"filtersEditable,omitempty" yaml:"filters_editable"`
}

// DefaultBackpackMeta is a 6x6 backpack with no filters.
func DefaultBackpackMeta() ContainerMeta {
	return ContainerMeta{Grid: Size{W: 6, H: 6}, PerishMultiplier: 1}
}

// DefaultPocketMeta is a 4x3 pocket with editable filters.
func DefaultPocketMeta() ContainerMeta {
	return ContainerMeta{Grid: Size{W: 4, H: 3}, PerishMultiplier: 1, FiltersEditable: true}
}

func (m ContainerMeta) clone() ContainerMeta {
	m.Whitelist = append([]string(nil), m.Whitelist...)
	m.Blacklist = append([]string(nil), m.Blacklist...)
	return m
}

func (m ContainerMeta) normalized() ContainerMeta {
	m.PerishMultiplier = clampMultiplier(m.PerishMultiplier)
	m.Whitelist = normalizeTags(m.Whitelist)
	m.Blacklist = normalizeTags(m.Blacklist)
	return m
}
