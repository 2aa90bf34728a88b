package inventory

// Container is one grid (backpack or pocket) with its placed entries.
type Container struct {
	ID      ContainerID
	Meta    ContainerMeta
	Entries []Entry

	tracker *ChangeTracker
}

func newContainer(id ContainerID, meta ContainerMeta, tracker *ChangeTracker) *Container {
	meta.Grid = meta.Grid.normalized()
	return &Container{ID: id, Meta: meta.normalized(), tracker: tracker}
}

// Find returns the entry index of an instance, or -1.
func (c *Container) Find(id InstanceID) int {
	for i := range c.Entries {
		if c.Entries[i].Instance.ID == id {
			return i
		}
	}
	return -1
}

// Place appends an entry and returns its index. Callers check the fit first.
func (c *Container) Place(e Entry) int {
	c.Entries = append(c.Entries, e)
	c.tracker.markAdded(c.ID, e.Instance.ID)
	return len(c.Entries) - 1
}

// Remove deletes the entry at index by swapping the last entry into its
// slot, and returns the removed instance id.
func (c *Container) Remove(index int) InstanceID {
	id := c.Entries[index].Instance.ID
	last := len(c.Entries) - 1
	c.Entries[index] = c.Entries[last]
	c.Entries[last] = Entry{}
	c.Entries = c.Entries[:last]
	c.tracker.markRemoved(c.ID, id)
	return id
}

// touch records that the entry at index changed in place.
func (c *Container) touch(index int) {
	c.tracker.markChanged(c.ID, c.Entries[index].Instance.ID)
}

// BuildOccupancy rasterizes the current entries.
func (c *Container) BuildOccupancy() *Occupancy {
	o := NewOccupancy(c.Meta.Grid)
	for _, e := range c.Entries {
		o.Mark(e.TopLeft, e.Footprint)
	}
	return o
}

// FindFreeSlot returns the first anchor where an item with the given base
// footprint fits, trying the rotated footprint when useful.
func (c *Container) FindFreeSlot(needed Size) (Point, bool, bool) {
	return c.BuildOccupancy().FindFree(needed)
}

// FitsAt checks whether size fits at pos given the current entries.
func (c *Container) FitsAt(pos Point, size Size) bool {
	return c.BuildOccupancy().Fits(pos, size)
}

// Accepts applies the tag filters: any blacklisted tag rejects, and a
// non-empty whitelist requires at least one whitelisted tag.
func (c *Container) Accepts(tags []string) bool {
	has := func(set []string, t string) bool {
		for _, s := range set {
			if s == t {
				return true
			}
		}
		return false
	}
	tags = normalizeTags(tags)
	for _, t := range tags {
		if has(c.Meta.Blacklist, t) {
			return false
		}
	}
	if len(c.Meta.Whitelist) == 0 {
		return true
	}
	for _, t := range tags {
		if has(c.Meta.Whitelist, t) {
			return true
		}
	}
	return false
}

// UnitCount sums the units of item held in the container.
func (c *Container) UnitCount(item ItemID) int {
	n := 0
	for _, e := range c.Entries {
		if e.Instance.Item == item {
			n += e.Instance.Count
		}
	}
	return n
}

type containerState struct {
	c       *Container
	meta    ContainerMeta
	entries []Entry
}

func (c *Container) save() containerState {
	return containerState{
		c:       c,
		meta:    c.Meta.clone(),
		entries: append([]Entry(nil), c.Entries...),
	}
}

func (s containerState) restore() {
	s.c.Meta = s.meta
	s.c.Entries = s.entries
}
