package inventory

// Diff is the set of changes committed since the previous diff was taken.
type Diff struct {
	Revision   uint64          `json:"revision"`
	Containers []ContainerDiff `json:"containers,omitempty"`
}

// Empty reports whether the diff carries no changes.
func (d Diff) Empty() bool { return len(d.Containers) == 0 }

// ContainerDiff lists the changes of one container. Added and Changed carry
// the current entries; Meta is set when the container policy changed.
type ContainerDiff struct {
	Container ContainerID    `json:"container"`
	Revision  uint64         `json:"revision"`
	Added     []Entry        `json:"added,omitempty"`
	Changed   []Entry        `json:"changed,omitempty"`
	Removed   []InstanceID   `json:"removed,omitempty"`
	Meta      *ContainerMeta `json:"meta,omitempty"`
}

// TakeDiff returns the changes committed since the last call and clears
// them.
func (i *Inventory) TakeDiff() Diff {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := Diff{Revision: i.tracker.Revision()}
	for _, cc := range i.tracker.Take() {
		c, err := i.container(cc.Container)
		if err != nil {
			continue
		}
		cd := ContainerDiff{
			Container: cc.Container,
			Revision:  cc.Revision,
			Removed:   cc.Removed,
		}
		for _, id := range cc.Added {
			if idx := c.Find(id); idx >= 0 {
				cd.Added = append(cd.Added, c.Entries[idx])
			}
		}
		for _, id := range cc.Changed {
			if idx := c.Find(id); idx >= 0 {
				cd.Changed = append(cd.Changed, c.Entries[idx])
			}
		}
		if cc.Structure {
			meta := c.Meta.clone()
			cd.Meta = &meta
		}
		out.Containers = append(out.Containers, cd)
	}
	return out
}
