package inventory

import (
	"fmt"
	"strings"
	"time"
)

// tag aliases accepted by filter ops
var tagAliases = map[string]string{
	"consumable":  "consumable",
	"consumables": "consumable",
	"ammo":        "ammunition",
	"ammunition":  "ammunition",
}

// ApplyFilterOps edits the filters of a pocket with a comma separated list
// of "+tag" (whitelist, and drop from the blacklist) and "-tag" (blacklist,
// and drop from the whitelist) operations.
func (i *Inventory) ApplyFilterOps(index int, ops string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if index < 0 || index >= len(i.pockets) {
		return i.reject("set_pocket_filters", fmt.Errorf("%w: pocket %d", ErrNotFound, index))
	}
	meta := i.pockets[index].Meta
	white := toSet(meta.Whitelist)
	black := toSet(meta.Blacklist)
	for _, op := range strings.Split(ops, ",") {
		op = strings.TrimSpace(op)
		if len(op) < 2 {
			continue
		}
		tag := strings.ToLower(op[1:])
		if alias, ok := tagAliases[tag]; ok {
			tag = alias
		}
		switch op[0] {
		case '+':
			white[tag] = struct{}{}
			delete(black, tag)
		case '-':
			black[tag] = struct{}{}
			delete(white, tag)
		default:
			return i.reject("set_pocket_filters", fmt.Errorf("%w: filter op %q", ErrInvalidArgument, op))
		}
	}
	return i.setPocketFilters(index, fromSet(white), fromSet(black))
}

func toSet(tags []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		out[t] = struct{}{}
	}
	return out
}

func fromSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	return normalizeTags(out)
}

// InstanceAt returns the instance id of the entry at index in a container.
func (i *Inventory) InstanceAt(id ContainerID, index int) (InstanceID, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	c, err := i.container(id)
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(c.Entries) {
		return "", fmt.Errorf("%w: entry %d in %s", ErrNotFound, index, id)
	}
	return c.Entries[index].Instance.ID, nil
}

// PerishQueue reports the number of scheduled instances and the earliest
// deadline (0 when nothing is scheduled).
func (i *Inventory) PerishQueue() (size int, next int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if head, ok := i.perish.Peek(); ok {
		next = head.Epoch
	}
	return i.perish.Len(), next
}

// Summary renders every container and entry as text.
func (i *Inventory) Summary() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	now := i.clock.Now().Unix()
	var b strings.Builder
	fmt.Fprintf(&b, "inventory %s owner=%s rev=%d\n", i.id, i.owner, i.tracker.Revision())
	for _, c := range i.all() {
		m := c.Meta
		fmt.Fprintf(&b, "%s %dx%d mult=%.2f entries=%d", c.ID, m.Grid.W, m.Grid.H, m.PerishMultiplier, len(c.Entries))
		if len(m.Whitelist) > 0 {
			fmt.Fprintf(&b, " allow=%s", strings.Join(m.Whitelist, ","))
		}
		if len(m.Blacklist) > 0 {
			fmt.Fprintf(&b, " deny=%s", strings.Join(m.Blacklist, ","))
		}
		b.WriteByte('\n')
		for idx, e := range c.Entries {
			in := e.Instance
			fmt.Fprintf(&b, "  [%d] %s x%d at (%d,%d) %dx%d", idx, in.Item, in.Count, e.TopLeft.X, e.TopLeft.Y, e.Footprint.W, e.Footprint.H)
			if e.Rotated {
				b.WriteString(" rotated")
			}
			if in.Perish.HasNext() {
				fmt.Fprintf(&b, " perish %d in %ds", in.Perish.Next.Count, in.Perish.Next.Epoch-now)
			}
			if in.Perish.HasLater() {
				fmt.Fprintf(&b, " then %d in %ds", in.Perish.Later.Count, in.Perish.Later.Epoch-now)
			}
			fmt.Fprintf(&b, " id=%s\n", in.ID)
		}
	}
	return b.String()
}

// Overlay draws a container grid: '.' for free cells, the upper-cased first
// letter of the item for occupied cells and '*' at each anchor.
func (i *Inventory) Overlay(id ContainerID) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	c, err := i.container(id)
	if err != nil {
		return "", err
	}
	w, h := c.Meta.Grid.W, c.Meta.Grid.H
	cells := make([][]byte, h)
	for y := range cells {
		cells[y] = []byte(strings.Repeat(".", w))
	}
	for _, e := range c.Entries {
		letter := byte('?')
		if s := string(e.Instance.Item); s != "" {
			letter = strings.ToUpper(s[:1])[0]
		}
		for y := e.TopLeft.Y; y < e.TopLeft.Y+e.Footprint.H && y < h; y++ {
			for x := e.TopLeft.X; x < e.TopLeft.X+e.Footprint.W && x < w; x++ {
				cells[y][x] = letter
			}
		}
		if e.TopLeft.Y < h && e.TopLeft.X < w {
			cells[e.TopLeft.Y][e.TopLeft.X] = '*'
		}
	}
	var b strings.Builder
	for _, row := range cells {
		b.Write(row)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// Validate checks the structural invariants: entries stay inside their grid
// without overlapping, counts respect the stack limit, instance ids are
// unique and the perish schedule is sorted.
func (i *Inventory) Validate() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	seen := make(map[InstanceID]ContainerID)
	for _, c := range i.all() {
		occ := NewOccupancy(c.Meta.Grid)
		for _, e := range c.Entries {
			if prev, dup := seen[e.Instance.ID]; dup {
				return fmt.Errorf("instance %s in both %s and %s", e.Instance.ID, prev, c.ID)
			}
			seen[e.Instance.ID] = c.ID
			if !occ.Fits(e.TopLeft, e.Footprint) {
				return fmt.Errorf("instance %s overlaps or leaves %s", e.Instance.ID, c.ID)
			}
			occ.Mark(e.TopLeft, e.Footprint)
			if d, ok := i.catalog.Lookup(e.Instance.Item); ok && (e.Instance.Count < 1 || e.Instance.Count > d.StackLimit()) {
				return fmt.Errorf("instance %s holds %d of max %d", e.Instance.ID, e.Instance.Count, d.StackLimit())
			}
		}
	}
	if !i.perish.Sorted() {
		return fmt.Errorf("perish schedule out of order")
	}
	return nil
}

// ExpireNow is ForceExpire with no delay.
func (i *Inventory) ExpireNow(id ContainerID, index int) error {
	return i.ForceExpire(id, index, 0)
}

// ExpireIn is ForceExpire with a delay in seconds.
func (i *Inventory) ExpireIn(id ContainerID, index int, seconds float64) error {
	return i.ForceExpire(id, index, time.Duration(seconds*float64(time.Second)))
}
