package inventory

import "sort"

type idSet map[InstanceID]struct{}

func (s idSet) sorted() []InstanceID {
	if len(s) == 0 {
		return nil
	}
	out := make([]InstanceID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type containerChanges struct {
	added     idSet
	changed   idSet
	removed   idSet
	structure bool
}

func newContainerChanges() *containerChanges {
	return &containerChanges{added: idSet{}, changed: idSet{}, removed: idSet{}}
}

func (cc *containerChanges) clone() *containerChanges {
	out := newContainerChanges()
	for id := range cc.added {
		out.added[id] = struct{}{}
	}
	for id := range cc.changed {
		out.changed[id] = struct{}{}
	}
	for id := range cc.removed {
		out.removed[id] = struct{}{}
	}
	out.structure = cc.structure
	return out
}

func (cc *containerChanges) empty() bool {
	return len(cc.added) == 0 && len(cc.changed) == 0 && len(cc.removed) == 0 && !cc.structure
}

// ChangeTracker accumulates per-container changes between two diffs and
// versions the inventory. Marks made inside an intent only become visible
// once the intent commits; an aborted intent leaves no trace.
type ChangeTracker struct {
	revision   uint64
	containers map[ContainerID]uint64
	pending    map[ContainerID]*containerChanges

	open    bool
	backup  map[ContainerID]*containerChanges
	dirty   map[ContainerID]bool
	touched idSet
}

// NewChangeTracker returns a tracker at revision 0.
func NewChangeTracker() *ChangeTracker {
	return &ChangeTracker{
		containers: make(map[ContainerID]uint64),
		pending:    make(map[ContainerID]*containerChanges),
	}
}

// Revision returns the inventory revision.
func (t *ChangeTracker) Revision() uint64 { return t.revision }

// ContainerRevision returns the revision of one container.
func (t *ChangeTracker) ContainerRevision(id ContainerID) uint64 { return t.containers[id] }

// Begin opens an intent.
func (t *ChangeTracker) Begin() {
	t.backup = make(map[ContainerID]*containerChanges, len(t.pending))
	for id, cc := range t.pending {
		t.backup[id] = cc.clone()
	}
	t.dirty = make(map[ContainerID]bool)
	t.touched = idSet{}
	t.open = true
}

// Commit closes the intent. When anything was marked it bumps the inventory
// revision once and each touched container revision once. It returns the
// instance ids touched by the intent.
func (t *ChangeTracker) Commit() ([]InstanceID, bool) {
	if !t.open {
		return nil, false
	}
	t.open = false
	t.backup = nil
	if len(t.dirty) == 0 {
		return nil, false
	}
	t.revision++
	for id := range t.dirty {
		t.containers[id]++
	}
	touched := t.touched.sorted()
	t.dirty = nil
	t.touched = nil
	return touched, true
}

// Abort closes the intent and discards its marks.
func (t *ChangeTracker) Abort() {
	if !t.open {
		return
	}
	t.pending = t.backup
	if t.pending == nil {
		t.pending = make(map[ContainerID]*containerChanges)
	}
	t.open = false
	t.backup = nil
	t.dirty = nil
	t.touched = nil
}

func (t *ChangeTracker) entry(id ContainerID) *containerChanges {
	cc, ok := t.pending[id]
	if !ok {
		cc = newContainerChanges()
		t.pending[id] = cc
	}
	if t.open {
		t.dirty[id] = true
	}
	return cc
}

func (t *ChangeTracker) touch(id InstanceID) {
	if t.open {
		t.touched[id] = struct{}{}
	}
}

func (t *ChangeTracker) markAdded(c ContainerID, id InstanceID) {
	if t == nil {
		return
	}
	cc := t.entry(c)
	t.touch(id)
	if _, ok := cc.removed[id]; ok {
		delete(cc.removed, id)
		cc.changed[id] = struct{}{}
		return
	}
	cc.added[id] = struct{}{}
}

func (t *ChangeTracker) markChanged(c ContainerID, id InstanceID) {
	if t == nil {
		return
	}
	cc := t.entry(c)
	t.touch(id)
	if _, ok := cc.added[id]; ok {
		return
	}
	cc.changed[id] = struct{}{}
}

func (t *ChangeTracker) markRemoved(c ContainerID, id InstanceID) {
	if t == nil {
		return
	}
	cc := t.entry(c)
	t.touch(id)
	delete(cc.changed, id)
	if _, ok := cc.added[id]; ok {
		delete(cc.added, id)
		return
	}
	cc.removed[id] = struct{}{}
}

func (t *ChangeTracker) markStructure(c ContainerID) {
	if t == nil {
		return
	}
	t.entry(c).structure = true
}

// ContainerChanges lists the instance ids that changed in one container.
type ContainerChanges struct {
	Container ContainerID
	Revision  uint64
	Added     []InstanceID
	Changed   []InstanceID
	Removed   []InstanceID
	Structure bool
}

// Take returns the accumulated changes, ordered backpack first then pockets
// by index, and resets them.
func (t *ChangeTracker) Take() []ContainerChanges {
	ids := make([]ContainerID, 0, len(t.pending))
	for id, cc := range t.pending {
		if !cc.empty() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Kind != ids[j].Kind {
			return ids[i].Kind < ids[j].Kind
		}
		return ids[i].Index < ids[j].Index
	})
	out := make([]ContainerChanges, 0, len(ids))
	for _, id := range ids {
		cc := t.pending[id]
		out = append(out, ContainerChanges{
			Container: id,
			Revision:  t.containers[id],
			Added:     cc.added.sorted(),
			Changed:   cc.changed.sorted(),
			Removed:   cc.removed.sorted(),
			Structure: cc.structure,
		})
	}
	t.pending = make(map[ContainerID]*containerChanges)
	return out
}
