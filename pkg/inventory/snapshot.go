package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Snapshot is the persistent form of an inventory.
type Snapshot struct {
	ID         string              `json:"id"`
	Owner      OwnerID             `json:"owner,omitempty"`
	Revision   uint64              `json:"revision"`
	Containers []ContainerSnapshot `json:"containers"`
}

// ContainerSnapshot is the persistent form of one container.
type ContainerSnapshot struct {
	ID      ContainerID   `json:"id"`
	Meta    ContainerMeta `json:"meta"`
	Entries []Entry       `json:"entries"`
}

// Snapshot captures the full inventory state, backpack first.
func (i *Inventory) Snapshot() Snapshot {
	i.mu.Lock()
	defer i.mu.Unlock()
	s := Snapshot{
		ID:         i.id,
		Owner:      i.owner,
		Revision:   i.tracker.Revision(),
		Containers: make([]ContainerSnapshot, 0, 1+len(i.pockets)),
	}
	for _, c := range i.all() {
		s.Containers = append(s.Containers, ContainerSnapshot{
			ID:      c.ID,
			Meta:    c.Meta.clone(),
			Entries: append(make([]Entry, 0, len(c.Entries)), c.Entries...),
		})
	}
	return s
}

// Serialize encodes the inventory to JSON.
func (i *Inventory) Serialize() ([]byte, error) {
	return json.Marshal(i.Snapshot())
}

// Deserialize decodes JSON produced by Serialize and restores it.
func Deserialize(b []byte, cat Catalog, opts ...Option) (*Inventory, error) {
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("failed to decode inventory snapshot: %w", err)
	}
	return Restore(s, cat, opts...)
}

// Restore rebuilds an inventory from a snapshot. Every entry is checked
// against the catalog and the grid; the perish schedule is rebuilt from the
// stored deadlines. Container options in opts are replaced by the snapshot.
func Restore(s Snapshot, cat Catalog, opts ...Option) (*Inventory, error) {
	var backpack *ContainerSnapshot
	var pockets []ContainerSnapshot
	for k := range s.Containers {
		cs := s.Containers[k]
		if cs.ID.Kind == KindBackpack {
			if backpack != nil {
				return nil, errors.New("inventory: snapshot has two backpacks")
			}
			backpack = &s.Containers[k]
			continue
		}
		pockets = append(pockets, cs)
	}
	if backpack == nil {
		return nil, errors.New("inventory: snapshot has no backpack")
	}
	sort.Slice(pockets, func(a, b int) bool { return pockets[a].ID.Index < pockets[b].ID.Index })
	for k, p := range pockets {
		if p.ID.Index != k {
			return nil, fmt.Errorf("inventory: snapshot pockets are not contiguous at %s", p.ID)
		}
	}

	inv := New(s.ID, s.Owner, cat, opts...)
	inv.backpack = newContainer(Backpack(), backpack.Meta, inv.tracker)
	inv.pockets = inv.pockets[:0]
	for _, p := range pockets {
		inv.pockets = append(inv.pockets, newContainer(p.ID, p.Meta, inv.tracker))
	}

	seen := make(map[InstanceID]bool)
	var instances []ItemInstance
	for _, cs := range append([]ContainerSnapshot{*backpack}, pockets...) {
		c, _ := inv.container(cs.ID)
		occ := NewOccupancy(c.Meta.Grid)
		for _, e := range cs.Entries {
			if err := checkEntry(cat, e); err != nil {
				return nil, fmt.Errorf("%s: %w", cs.ID, err)
			}
			if seen[e.Instance.ID] {
				return nil, fmt.Errorf("%w: duplicate instance %s", ErrInvalidArgument, e.Instance.ID)
			}
			seen[e.Instance.ID] = true
			if !occ.Fits(e.TopLeft, e.Footprint) {
				return nil, fmt.Errorf("%w: %s overlaps or leaves %s", ErrNoCapacity, e.Instance.ID, cs.ID)
			}
			occ.Mark(e.TopLeft, e.Footprint)
			c.Entries = append(c.Entries, e)
			instances = append(instances, e.Instance)
		}
	}

	inv.tracker.revision = s.Revision
	inv.perish.Rebuild(instances)
	inv.perish.ScheduleNext(inv.clock.Now())
	return inv, nil
}

func checkEntry(cat Catalog, e Entry) error {
	d, ok := cat.Lookup(e.Instance.Item)
	if !ok {
		return fmt.Errorf("%w: item %s", ErrNotFound, e.Instance.Item)
	}
	if e.Instance.ID == "" {
		return fmt.Errorf("%w: instance without id", ErrInvalidArgument)
	}
	if e.Instance.Count <= 0 || e.Instance.Count > d.StackLimit() {
		return fmt.Errorf("%w: %s holds %d of max %d", ErrInvalidArgument, e.Instance.ID, e.Instance.Count, d.StackLimit())
	}
	if e.BaseFootprint() != d.Size() {
		return fmt.Errorf("%w: %s footprint %dx%d does not match %s", ErrInvalidArgument,
			e.Instance.ID, e.Footprint.W, e.Footprint.H, d.ID)
	}
	return nil
}
