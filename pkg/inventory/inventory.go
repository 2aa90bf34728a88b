package inventory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now returns f().
func (f ClockFunc) Now() time.Time { return f() }

// Option configures inventory construction.
type Option func(*Inventory)

// WithBackpack sets the backpack grid and policy. Defaults to a 6x6 grid.
func WithBackpack(meta ContainerMeta) Option {
	return func(inv *Inventory) { inv.backpackMeta = meta }
}

// WithPocket appends a pocket. Pockets are indexed in the order added.
func WithPocket(meta ContainerMeta) Option {
	return func(inv *Inventory) { inv.pocketMetas = append(inv.pocketMetas, meta) }
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(inv *Inventory) { inv.clock = c }
}

// WithLogger sets the logger used for rejected intents and perish ticks.
func WithLogger(l logrus.FieldLogger) Option {
	return func(inv *Inventory) { inv.log = l }
}

// WithEventBus attaches an event bus that receives change, perish and
// rejection events.
func WithEventBus(bus EventBus) Option {
	return func(inv *Inventory) { inv.events = bus }
}

// WithTimerFunc replaces time.AfterFunc for the perish timer.
func WithTimerFunc(f TimerFunc) Option {
	return func(inv *Inventory) { inv.timerFunc = f }
}

// WithMinPerishDelay sets the shortest delay the perish timer is armed with.
func WithMinPerishDelay(d time.Duration) Option {
	return func(inv *Inventory) { inv.minDelay = d }
}

func applyOptions(inv *Inventory, opts ...Option) {
	for _, opt := range opts {
		if opt != nil {
			opt(inv)
		}
	}
}

// Inventory is the backpack and pockets of a single owner. All intents and
// perish ticks are serialized by the inventory's mutex; each intent either
// commits completely or leaves no trace.
type Inventory struct {
	mu sync.Mutex

	id      string
	owner   OwnerID
	catalog Catalog

	backpack *Container
	pockets  []*Container

	tracker *ChangeTracker
	perish  *PerishScheduler
	clock   Clock
	log     logrus.FieldLogger
	events  EventBus
	closed  bool

	backpackMeta ContainerMeta
	pocketMetas  []ContainerMeta
	timerFunc    TimerFunc
	minDelay     time.Duration
}

// New creates an empty inventory for owner backed by cat.
func New(id string, owner OwnerID, cat Catalog, opts ...Option) *Inventory {
	inv := &Inventory{
		id:           id,
		owner:        owner,
		catalog:      cat,
		tracker:      NewChangeTracker(),
		clock:        ClockFunc(time.Now),
		log:          logrus.StandardLogger(),
		events:       NewNullEventBus(),
		backpackMeta: DefaultBackpackMeta(),
	}
	applyOptions(inv, opts...)
	inv.log = inv.log.WithFields(logrus.Fields{"inventory": id, "owner": owner})
	inv.backpack = newContainer(Backpack(), inv.backpackMeta, inv.tracker)
	for i, meta := range inv.pocketMetas {
		inv.pockets = append(inv.pockets, newContainer(Pocket(i), meta, inv.tracker))
	}
	inv.perish = NewPerishScheduler(inv.timerFunc, inv.minDelay, inv.onPerishTimer)
	return inv
}

// ID returns the inventory id.
func (i *Inventory) ID() string { return i.id }

// Owner returns the owning player.
func (i *Inventory) Owner() OwnerID { return i.owner }

// Catalog returns the catalog the inventory resolves items with.
func (i *Inventory) Catalog() Catalog { return i.catalog }

// Revision returns the inventory revision.
func (i *Inventory) Revision() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.tracker.Revision()
}

// PocketCount returns the number of pockets.
func (i *Inventory) PocketCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.pockets)
}

// Entries returns a copy of the entries of a container.
func (i *Inventory) Entries(id ContainerID) ([]Entry, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	c, err := i.container(id)
	if err != nil {
		return nil, err
	}
	return append([]Entry(nil), c.Entries...), nil
}

// Meta returns a copy of a container's policy.
func (i *Inventory) Meta(id ContainerID) (ContainerMeta, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	c, err := i.container(id)
	if err != nil {
		return ContainerMeta{}, err
	}
	return c.Meta.clone(), nil
}

// Find locates an instance.
func (i *Inventory) Find(id InstanceID) (ContainerID, Entry, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	c, idx, ok := i.locate(id)
	if !ok {
		return ContainerID{}, Entry{}, false
	}
	return c.ID, c.Entries[idx], true
}

// UnitCount sums the units of item across all containers.
func (i *Inventory) UnitCount(item ItemID) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	n := 0
	for _, c := range i.all() {
		n += c.UnitCount(item)
	}
	return n
}

// Close stops the perish timer. Intents still work but nothing decays on its
// own afterwards.
func (i *Inventory) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed = true
	i.perish.Stop()
}

// AddResult reports how many units an AddItemAuto placed.
type AddResult struct {
	Placed    int `json:"placed"`
	Remaining int `json:"remaining"`
}

// AddItemAuto stores count units of item, filling eligible pockets in order
// before the backpack. Each container first tops up compatible stacks, then
// places new stacks at the first free slot. When only part of the units fit
// the placed part is committed and the rest reported in Remaining.
func (i *Inventory) AddItemAuto(item ItemID, count int) (AddResult, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	const intent = "add_item_auto"

	d, err := i.details(item)
	if err != nil {
		return AddResult{}, i.reject(intent, err)
	}
	if count <= 0 {
		return AddResult{}, i.reject(intent, fmt.Errorf("%w: count must be positive, got %d", ErrInvalidArgument, count))
	}
	if len(i.accepting(d)) == 0 {
		return AddResult{Remaining: count}, i.reject(intent, fmt.Errorf("%w: no container accepts %s", ErrPolicyRejected, item))
	}

	now := i.clock.Now()
	states := i.begin(i.all()...)
	remaining := i.addUnits(d, count, now)
	if remaining == count {
		return AddResult{Remaining: count}, i.rollback(intent, states, fmt.Errorf("%w: no room for %d x %s", ErrNoCapacity, count, item))
	}
	i.commit(intent, now)
	return AddResult{Placed: count - remaining, Remaining: remaining}, nil
}

// MoveRequest describes a MoveItem intent. A nil Position requests automatic
// placement, which merges into compatible stacks first.
type MoveRequest struct {
	Instance InstanceID  `json:"instance"`
	From     ContainerID `json:"from"`
	To       ContainerID `json:"to"`
	Position *Point      `json:"position,omitempty"`
	Rotate   bool        `json:"rotate,omitempty"`
}

// MoveItem relocates an instance inside a container or between containers.
// Remaining perish time is rescaled by the ratio of the container
// multipliers when the container changes.
func (i *Inventory) MoveItem(req MoveRequest) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	const intent = "move_item"

	src, err := i.container(req.From)
	if err != nil {
		return i.reject(intent, err)
	}
	dst, err := i.container(req.To)
	if err != nil {
		return i.reject(intent, err)
	}
	idx := src.Find(req.Instance)
	if idx < 0 {
		return i.reject(intent, fmt.Errorf("%w: instance %s in %s", ErrNotFound, req.Instance, req.From))
	}
	d, err := i.details(src.Entries[idx].Instance.Item)
	if err != nil {
		return i.reject(intent, err)
	}
	if src != dst && !dst.Accepts(d.Tags) {
		return i.reject(intent, fmt.Errorf("%w: %s does not accept %s", ErrPolicyRejected, req.To, d.ID))
	}

	now := i.clock.Now()
	states := i.begin(src, dst)
	orig := src.Entries[idx]
	src.Remove(idx)
	inst := orig.Instance
	if src != dst {
		rescaleDeadlines(&inst.Perish, src.Meta.PerishMultiplier/dst.Meta.PerishMultiplier, now)
	}

	if req.Position == nil {
		rest, placed := i.stowInstance(dst, d, inst, now)
		if !placed {
			if rest.Count == orig.Instance.Count {
				return i.rollback(intent, states, fmt.Errorf("%w: no room for %s in %s", ErrNoCapacity, req.Instance, req.To))
			}
			// part of the stack merged; the remainder stays where it was
			back := orig
			back.Instance.Count = rest.Count
			takeBuckets(&back.Instance.Perish, orig.Instance.Count-rest.Count)
			settlePerish(&back.Instance, d, src.Meta.PerishMultiplier, now)
			resetWearIfStacked(&back.Instance)
			src.Place(back)
		}
		i.commit(intent, now)
		return nil
	}

	size := d.Size()
	rotated := req.Rotate && !size.Square()
	fp := size
	if rotated {
		fp = size.Rotated()
	}
	if !dst.FitsAt(*req.Position, fp) {
		return i.rollback(intent, states, fmt.Errorf("%w: %s does not fit at (%d,%d) in %s",
			ErrNoCapacity, req.Instance, req.Position.X, req.Position.Y, req.To))
	}
	settlePerish(&inst, d, dst.Meta.PerishMultiplier, now)
	dst.Place(Entry{Instance: inst, TopLeft: *req.Position, Rotated: rotated, Footprint: fp})
	i.commit(intent, now)
	return nil
}

// SplitItem detaches amount units of an instance into a new stack placed in
// the same container, and returns the new instance id.
func (i *Inventory) SplitItem(from ContainerID, id InstanceID, amount int) (InstanceID, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	const intent = "split_item"

	c, err := i.container(from)
	if err != nil {
		return "", i.reject(intent, err)
	}
	idx := c.Find(id)
	if idx < 0 {
		return "", i.reject(intent, fmt.Errorf("%w: instance %s in %s", ErrNotFound, id, from))
	}
	d, err := i.details(c.Entries[idx].Instance.Item)
	if err != nil {
		return "", i.reject(intent, err)
	}

	now := i.clock.Now()
	states := i.begin(c)
	split, err := Split(&c.Entries[idx].Instance, amount)
	if err != nil {
		return "", i.rollback(intent, states, err)
	}
	pos, rot, ok := c.FindFreeSlot(d.Size())
	if !ok {
		return "", i.rollback(intent, states, fmt.Errorf("%w: no room to split %s in %s", ErrNoCapacity, id, from))
	}
	settlePerish(&c.Entries[idx].Instance, d, c.Meta.PerishMultiplier, now)
	settlePerish(&split, d, c.Meta.PerishMultiplier, now)
	c.touch(idx)
	c.Place(placedEntry(split, pos, rot, d.Size()))
	i.commit(intent, now)
	return split.ID, nil
}

// MergeInstances moves units from source into target. Both may live in any
// container. A full target is not an error; nothing changes.
func (i *Inventory) MergeInstances(source, target InstanceID) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	const intent = "merge_instances"

	if target == source {
		return i.reject(intent, fmt.Errorf("%w: cannot merge %s into itself", ErrInvalidArgument, target))
	}
	tc, ti, ok := i.locate(target)
	if !ok {
		return i.reject(intent, fmt.Errorf("%w: instance %s", ErrNotFound, target))
	}
	sc, si, ok := i.locate(source)
	if !ok {
		return i.reject(intent, fmt.Errorf("%w: instance %s", ErrNotFound, source))
	}

	now := i.clock.Now()
	states := i.begin(tc, sc)
	t := &tc.Entries[ti].Instance
	s := &sc.Entries[si].Instance
	ratio := 1.0
	if tc != sc {
		ratio = sc.Meta.PerishMultiplier / tc.Meta.PerishMultiplier
	}
	moved, err := mergeScaled(i.catalog, t, s, ratio, now)
	if err != nil {
		return i.rollback(intent, states, err)
	}
	if moved == 0 {
		for _, st := range states {
			st.restore()
		}
		i.tracker.Abort()
		return nil
	}
	d, err := i.details(t.Item)
	if err != nil {
		return i.rollback(intent, states, err)
	}
	settlePerish(t, d, tc.Meta.PerishMultiplier, now)
	tc.touch(ti)
	if s.Count == 0 {
		sc.Remove(si)
	} else {
		settlePerish(s, d, sc.Meta.PerishMultiplier, now)
		sc.touch(si)
	}
	i.commit(intent, now)
	return nil
}

// SetPocketFilters replaces the tag filters of a pocket. Items already in
// the pocket stay where they are.
func (i *Inventory) SetPocketFilters(index int, whitelist, blacklist []string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.setPocketFilters(index, whitelist, blacklist)
}

func (i *Inventory) setPocketFilters(index int, whitelist, blacklist []string) error {
	const intent = "set_pocket_filters"
	if index < 0 || index >= len(i.pockets) {
		return i.reject(intent, fmt.Errorf("%w: pocket %d", ErrNotFound, index))
	}
	c := i.pockets[index]
	if !c.Meta.FiltersEditable {
		return i.reject(intent, fmt.Errorf("%w: filters of %s are locked", ErrPolicyRejected, c.ID))
	}
	i.tracker.Begin()
	c.Meta.Whitelist = normalizeTags(whitelist)
	c.Meta.Blacklist = normalizeTags(blacklist)
	i.tracker.markStructure(c.ID)
	i.commit(intent, i.clock.Now())
	return nil
}

// MergeAll consolidates stacks of the same item inside each container.
// Running it twice in a row changes nothing the second time.
func (i *Inventory) MergeAll() {
	i.mu.Lock()
	defer i.mu.Unlock()
	now := i.clock.Now()
	i.tracker.Begin()
	for _, c := range i.all() {
		i.mergeContainer(c, now)
	}
	i.commit("merge_all", now)
}

func (i *Inventory) mergeContainer(c *Container, now time.Time) {
	for a := 0; a < len(c.Entries); a++ {
		for b := a + 1; b < len(c.Entries); {
			ta, tb := &c.Entries[a].Instance, &c.Entries[b].Instance
			if ta.Item != tb.Item {
				b++
				continue
			}
			moved, err := Merge(i.catalog, ta, tb)
			if err != nil || moved == 0 {
				b++
				continue
			}
			d, _ := i.catalog.Lookup(ta.Item)
			settlePerish(ta, d, c.Meta.PerishMultiplier, now)
			c.touch(a)
			if tb.Count == 0 {
				// the last entry is swapped into b; look at it next
				c.Remove(b)
				continue
			}
			settlePerish(tb, d, c.Meta.PerishMultiplier, now)
			c.touch(b)
			b++
		}
	}
}

// AutoArrangeAll repacks every container, largest footprints first. A
// container whose entries cannot all be repacked keeps its layout.
func (i *Inventory) AutoArrangeAll() {
	i.mu.Lock()
	defer i.mu.Unlock()
	now := i.clock.Now()
	i.tracker.Begin()
	for _, c := range i.all() {
		arrangeContainer(c)
	}
	i.commit("auto_arrange_all", now)
}

func arrangeContainer(c *Container) {
	order := append([]Entry(nil), c.Entries...)
	sort.SliceStable(order, func(a, b int) bool {
		ea, eb := order[a], order[b]
		if ea.Footprint.Area() != eb.Footprint.Area() {
			return ea.Footprint.Area() > eb.Footprint.Area()
		}
		if ea.Instance.Item != eb.Instance.Item {
			return ea.Instance.Item < eb.Instance.Item
		}
		return ea.Instance.ID < eb.Instance.ID
	})

	occ := NewOccupancy(c.Meta.Grid)
	out := make([]Entry, 0, len(order))
	for _, e := range order {
		base := e.BaseFootprint()
		pos, rot, ok := occ.FindFree(base)
		if !ok {
			if occ.Fits(e.TopLeft, e.Footprint) {
				occ.Mark(e.TopLeft, e.Footprint)
				out = append(out, e)
				continue
			}
			return
		}
		ne := placedEntry(e.Instance, pos, rot, base)
		occ.Mark(ne.TopLeft, ne.Footprint)
		out = append(out, ne)
	}

	before := make(map[InstanceID]Entry, len(c.Entries))
	for _, e := range c.Entries {
		before[e.Instance.ID] = e
	}
	c.Entries = out
	for idx, e := range c.Entries {
		old := before[e.Instance.ID]
		if old.TopLeft != e.TopLeft || old.Rotated != e.Rotated {
			c.touch(idx)
		}
	}
}

// AddPocket appends a pocket and returns its id.
func (i *Inventory) AddPocket(meta ContainerMeta) ContainerID {
	i.mu.Lock()
	defer i.mu.Unlock()
	id := Pocket(len(i.pockets))
	i.tracker.Begin()
	i.pockets = append(i.pockets, newContainer(id, meta, i.tracker))
	i.tracker.markStructure(id)
	i.commit("add_pocket", i.clock.Now())
	return id
}

// AddPocketFromItem appends a pocket shaped by the pocket spec of item.
func (i *Inventory) AddPocketFromItem(item ItemID) (ContainerID, error) {
	i.mu.Lock()
	d, err := i.details(item)
	i.mu.Unlock()
	if err != nil {
		return ContainerID{}, err
	}
	if d.Pocket == nil {
		return ContainerID{}, fmt.Errorf("%w: %s does not provide a pocket", ErrInvalidArgument, item)
	}
	return i.AddPocket(d.Pocket.Meta()), nil
}

// ForceExpire moves the next perish deadline of the entry at index to
// now+after. A later deadline that is no longer later is folded in.
func (i *Inventory) ForceExpire(id ContainerID, index int, after time.Duration) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	const intent = "force_expire"

	c, err := i.container(id)
	if err != nil {
		return i.reject(intent, err)
	}
	if index < 0 || index >= len(c.Entries) {
		return i.reject(intent, fmt.Errorf("%w: entry %d in %s", ErrNotFound, index, id))
	}
	inst := &c.Entries[index].Instance
	d, err := i.details(inst.Item)
	if err != nil {
		return i.reject(intent, err)
	}
	if !d.CanPerish() {
		return i.reject(intent, fmt.Errorf("%w: %s does not perish", ErrInvalidArgument, inst.Item))
	}
	if after < 0 {
		after = 0
	}

	now := i.clock.Now()
	i.tracker.Begin()
	p := &inst.Perish
	if p.Next.Count <= 0 {
		p.Next.Count = 1
	}
	p.Next.Epoch = now.Add(after).Unix()
	if p.HasLater() && p.Later.Epoch <= p.Next.Epoch {
		p.Next.Count += p.Later.Count
		p.Later = PerishBucket{}
	}
	if p.Next.Count > inst.Count {
		p.Next.Count = inst.Count
	}
	c.touch(index)
	i.commit(intent, now)
	return nil
}

// Tick drains every perish deadline due at now.
func (i *Inventory) Tick(now time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.tick(now)
}

func (i *Inventory) onPerishTimer(generation uint64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed || generation != i.perish.Generation() {
		return
	}
	i.tick(i.clock.Now())
}

type perishLoss struct {
	item     ItemID
	instance InstanceID
	count    int
}

func (i *Inventory) tick(now time.Time) {
	due := i.perish.popDue(now.Unix())
	if len(due) == 0 {
		i.perish.ScheduleNext(now)
		return
	}

	i.tracker.Begin()
	var losses []perishLoss
	// a promoted later bucket may itself be overdue, so keep draining until
	// the head of the schedule lies in the future
	for len(due) > 0 {
		for _, n := range due {
			if loss, ok := i.perishOne(n, now); ok {
				losses = append(losses, loss)
			}
		}
		due = i.perish.popDue(now.Unix())
	}

	for _, l := range losses {
		d, ok := i.catalog.Lookup(l.item)
		if !ok || d.PerishTo == "" {
			continue
		}
		to, ok := i.catalog.Lookup(d.PerishTo)
		if !ok {
			continue
		}
		if left := i.addUnits(to, l.count, now); left > 0 {
			i.log.WithFields(logrus.Fields{"item": to.ID, "lost": left}).Info("no room for perished remains")
		}
	}

	i.commit(IntentPerishTick, now)
	for _, l := range losses {
		i.events.Publish(Event{
			Type:      EventPerished,
			Inventory: i.id,
			Owner:     i.owner,
			Revision:  i.tracker.Revision(),
			Item:      l.item,
			Instance:  l.instance,
			Count:     l.count,
			Timestamp: now,
		})
	}
	i.perish.ScheduleNext(now)
}

// perishOne consumes the due next bucket of one scheduled instance and
// puts the instance back on the schedule if it still has a deadline.
func (i *Inventory) perishOne(n PerishNode, now time.Time) (perishLoss, bool) {
	c, idx, ok := i.locate(n.Instance)
	if !ok {
		return perishLoss{}, false
	}
	inst := &c.Entries[idx].Instance
	if !inst.Perish.HasNext() {
		return perishLoss{}, false
	}
	if inst.Perish.Next.Epoch > now.Unix() {
		i.perish.Enqueue(*inst)
		return perishLoss{}, false
	}
	take := inst.Perish.Next.Count
	if take > inst.Count {
		take = inst.Count
	}
	inst.Count -= take
	loss := perishLoss{item: inst.Item, instance: inst.ID, count: take}
	if inst.Count <= 0 {
		c.Remove(idx)
		return loss, true
	}
	d, known := i.catalog.Lookup(inst.Item)
	switch {
	case inst.Perish.HasLater():
		inst.Perish.PromoteLater()
	case known && d.CanPerish():
		inst.Perish.Next = PerishBucket{Epoch: freshDeadline(d, c.Meta.PerishMultiplier, now), Count: 1}
	default:
		inst.Perish.Clear()
	}
	if known {
		settlePerish(inst, d, c.Meta.PerishMultiplier, now)
	}
	c.touch(idx)
	i.perish.Enqueue(*inst)
	return loss, true
}

// all returns the backpack followed by the pockets.
func (i *Inventory) all() []*Container {
	out := make([]*Container, 0, 1+len(i.pockets))
	out = append(out, i.backpack)
	return append(out, i.pockets...)
}

// accepting returns the containers AddItemAuto fills, pockets first.
func (i *Inventory) accepting(d ItemDetails) []*Container {
	var out []*Container
	for _, c := range i.pockets {
		if c.Accepts(d.Tags) {
			out = append(out, c)
		}
	}
	if i.backpack.Accepts(d.Tags) {
		out = append(out, i.backpack)
	}
	return out
}

func (i *Inventory) container(id ContainerID) (*Container, error) {
	switch id.Kind {
	case KindBackpack:
		return i.backpack, nil
	case KindPocket:
		if id.Index >= 0 && id.Index < len(i.pockets) {
			return i.pockets[id.Index], nil
		}
	}
	return nil, fmt.Errorf("%w: container %s", ErrNotFound, id)
}

func (i *Inventory) locate(id InstanceID) (*Container, int, bool) {
	for _, c := range i.all() {
		if idx := c.Find(id); idx >= 0 {
			return c, idx, true
		}
	}
	return nil, -1, false
}

func (i *Inventory) details(item ItemID) (ItemDetails, error) {
	d, ok := i.catalog.Lookup(item)
	if !ok {
		return ItemDetails{}, fmt.Errorf("%w: item %s", ErrNotFound, item)
	}
	return d, nil
}

func (i *Inventory) bindOwner(d ItemDetails) OwnerID {
	if d.Bind == BindOnPickup {
		return i.owner
	}
	return ""
}

// addUnits stores n fresh units of d and returns how many did not fit.
func (i *Inventory) addUnits(d ItemDetails, n int, now time.Time) int {
	for _, c := range i.accepting(d) {
		if n == 0 {
			break
		}
		n = i.stowUnits(c, d, n, now)
	}
	return n
}

// stowUnits tops up compatible stacks in c, then places new stacks of at
// most the stack limit. It returns the units left over.
func (i *Inventory) stowUnits(c *Container, d ItemDetails, n int, now time.Time) int {
	owner := i.bindOwner(d)
	mult := c.Meta.PerishMultiplier
	limit := d.StackLimit()
	for idx := range c.Entries {
		if n == 0 {
			break
		}
		t := &c.Entries[idx].Instance
		if t.Item != d.ID || t.BoundOwner != owner || t.Count >= limit {
			continue
		}
		fresh, err := newInstance(d, min(limit-t.Count, n), mult, now)
		if err != nil {
			break
		}
		fresh.BoundOwner = owner
		moved, err := Merge(i.catalog, t, &fresh)
		if err != nil || moved == 0 {
			continue
		}
		settlePerish(t, d, mult, now)
		c.touch(idx)
		n -= moved
	}
	size := d.Size()
	for n > 0 {
		pos, rot, ok := c.FindFreeSlot(size)
		if !ok {
			break
		}
		inst, err := newInstance(d, min(n, limit), mult, now)
		if err != nil {
			break
		}
		inst.BoundOwner = owner
		c.Place(placedEntry(inst, pos, rot, size))
		n -= inst.Count
	}
	return n
}

// stowInstance merges inst into compatible stacks of c and places whatever
// is left as one stack. It returns the leftover instance and whether it was
// fully stored.
func (i *Inventory) stowInstance(c *Container, d ItemDetails, inst ItemInstance, now time.Time) (ItemInstance, bool) {
	mult := c.Meta.PerishMultiplier
	for idx := range c.Entries {
		if inst.Count == 0 {
			break
		}
		t := &c.Entries[idx].Instance
		if t.Item != inst.Item {
			continue
		}
		moved, err := Merge(i.catalog, t, &inst)
		if err != nil || moved == 0 {
			continue
		}
		settlePerish(t, d, mult, now)
		c.touch(idx)
	}
	if inst.Count == 0 {
		return inst, true
	}
	pos, rot, ok := c.FindFreeSlot(d.Size())
	if !ok {
		return inst, false
	}
	settlePerish(&inst, d, mult, now)
	c.Place(placedEntry(inst, pos, rot, d.Size()))
	return inst, true
}

func placedEntry(inst ItemInstance, pos Point, rotated bool, base Size) Entry {
	fp := base
	if rotated {
		fp = base.Rotated()
	}
	return Entry{Instance: inst, TopLeft: pos, Rotated: rotated, Footprint: fp}
}

func (i *Inventory) begin(cs ...*Container) []containerState {
	i.tracker.Begin()
	states := make([]containerState, 0, len(cs))
	for _, c := range cs {
		states = append(states, c.save())
	}
	return states
}

// commit closes the open intent, reschedules the perish deadlines of every
// touched instance and publishes a change event. It reports whether
// anything changed.
func (i *Inventory) commit(intent string, now time.Time) bool {
	touched, changed := i.tracker.Commit()
	if !changed {
		return false
	}
	for _, id := range touched {
		i.perish.Remove(id)
		if c, idx, ok := i.locate(id); ok {
			i.perish.Enqueue(c.Entries[idx].Instance)
		}
	}
	i.perish.ScheduleNext(now)
	i.events.Publish(Event{
		Type:      EventChanged,
		Inventory: i.id,
		Owner:     i.owner,
		Revision:  i.tracker.Revision(),
		Intent:    intent,
		Timestamp: now,
	})
	return true
}

func (i *Inventory) rollback(intent string, states []containerState, err error) error {
	// restore in reverse so a container saved twice ends in its first state
	for k := len(states) - 1; k >= 0; k-- {
		states[k].restore()
	}
	i.tracker.Abort()
	return i.reject(intent, err)
}

func (i *Inventory) reject(intent string, err error) error {
	i.log.WithField("intent", intent).WithError(err).Debug("intent rejected")
	i.events.Publish(Event{
		Type:      EventRejected,
		Inventory: i.id,
		Owner:     i.owner,
		Revision:  i.tracker.Revision(),
		Intent:    intent,
		Err:       err.Error(),
		Timestamp: i.clock.Now(),
	})
	return err
}
