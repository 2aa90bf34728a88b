package inventory

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

const minPerishMultiplier = 0.01

func clampMultiplier(m float64) float64 {
	if math.IsNaN(m) || m < minPerishMultiplier {
		return minPerishMultiplier
	}
	return m
}

// freshDeadline returns the unix epoch at which a unit created at now
// perishes in a container with the given multiplier. Higher multipliers
// decay faster.
func freshDeadline(d ItemDetails, mult float64, now time.Time) int64 {
	secs := math.Ceil(d.PerishSeconds / clampMultiplier(mult))
	if secs < 1 {
		secs = 1
	}
	return now.Unix() + int64(secs)
}

func newInstanceID() InstanceID { return InstanceID(uuid.NewString()) }

// NewInstance creates a stack of count units of item. Durability and wear
// are only tracked for single units; perishable items get a next deadline
// for one unit.
func NewInstance(cat Catalog, item ItemID, count int, mult float64, now time.Time) (ItemInstance, error) {
	d, ok := cat.Lookup(item)
	if !ok {
		return ItemInstance{}, fmt.Errorf("%w: item %s", ErrNotFound, item)
	}
	return newInstance(d, count, mult, now)
}

func newInstance(d ItemDetails, count int, mult float64, now time.Time) (ItemInstance, error) {
	if count <= 0 {
		return ItemInstance{}, fmt.Errorf("%w: count must be positive, got %d", ErrInvalidArgument, count)
	}
	inst := ItemInstance{
		ID:    newInstanceID(),
		Item:  d.ID,
		Count: count,
	}
	if count == 1 && d.MaxDurability > 0 {
		inst.Durability = d.MaxDurability
		inst.Wear = int(math.Round(float64(d.MaxDurability) * d.MaxWear))
	}
	if d.CanPerish() {
		inst.Perish.Next = PerishBucket{Epoch: freshDeadline(d, mult, now), Count: 1}
	}
	return inst, nil
}

func bindingCompatible(a, b ItemInstance) bool {
	return a.BoundOwner == b.BoundOwner
}

// Merge moves as many units from source into target as the target's stack
// limit allows and returns how many moved. A full target moves nothing and
// is not an error. The perish deadlines of the moved units travel with them.
func Merge(cat Catalog, target, source *ItemInstance) (int, error) {
	return mergeScaled(cat, target, source, 1, time.Time{})
}

// mergeScaled is Merge for stacks in containers with different perish
// multipliers. Only the deadlines of the moved units are stretched by ratio;
// the units left in source keep theirs.
func mergeScaled(cat Catalog, target, source *ItemInstance, ratio float64, now time.Time) (int, error) {
	if target.Item != source.Item {
		return 0, fmt.Errorf("%w: cannot merge %s into %s", ErrPolicyRejected, source.Item, target.Item)
	}
	if !bindingCompatible(*target, *source) {
		return 0, fmt.Errorf("%w: owner binding differs", ErrPolicyRejected)
	}
	d, ok := cat.Lookup(target.Item)
	if !ok {
		return 0, fmt.Errorf("%w: item %s", ErrNotFound, target.Item)
	}
	room := d.StackLimit() - target.Count
	if room <= 0 || source.Count <= 0 {
		return 0, nil
	}
	moved := source.Count
	if room < moved {
		moved = room
	}

	carried := takeBuckets(&source.Perish, moved)
	for k := range carried {
		carried[k].Epoch = rescaleEpoch(carried[k].Epoch, ratio, now.Unix())
	}
	target.Count += moved
	source.Count -= moved
	target.Perish = combineBuckets(target.Perish, carried...)

	resetWearIfStacked(target)
	resetWearIfStacked(source)
	return moved, nil
}

// Split detaches amount units from source into a new instance. The new
// instance copies the perish deadlines of the source.
func Split(source *ItemInstance, amount int) (ItemInstance, error) {
	if amount <= 0 || amount >= source.Count {
		return ItemInstance{}, fmt.Errorf("%w: split %d of %d", ErrInvalidArgument, amount, source.Count)
	}
	out := *source
	out.ID = newInstanceID()
	out.Count = amount
	source.Count -= amount
	resetWearIfStacked(source)
	resetWearIfStacked(&out)
	return out, nil
}

func resetWearIfStacked(in *ItemInstance) {
	if in.Count > 1 {
		in.Durability = 0
		in.Wear = 0
	}
}

// takeBuckets removes up to n units from the source buckets, next first,
// and returns what was taken.
func takeBuckets(p *PerishBuckets, n int) []PerishBucket {
	var out []PerishBucket
	for _, b := range []*PerishBucket{&p.Next, &p.Later} {
		if n <= 0 || !b.valid() {
			continue
		}
		take := b.Count
		if take > n {
			take = n
		}
		out = append(out, PerishBucket{Epoch: b.Epoch, Count: take})
		b.Count -= take
		n -= take
		if b.Count == 0 {
			*b = PerishBucket{}
		}
	}
	if !p.HasNext() && p.HasLater() {
		p.PromoteLater()
	}
	return out
}

// combineBuckets merges extra buckets into p. Equal epochs accumulate and
// the two earliest epochs are kept; counts of any further epoch fold into
// the later bucket so no scheduled unit is dropped.
func combineBuckets(p PerishBuckets, extra ...PerishBucket) PerishBuckets {
	byEpoch := make(map[int64]int, 4)
	add := func(b PerishBucket) {
		if b.valid() {
			byEpoch[b.Epoch] += b.Count
		}
	}
	add(p.Next)
	add(p.Later)
	for _, b := range extra {
		add(b)
	}
	epochs := make([]int64, 0, len(byEpoch))
	for e := range byEpoch {
		epochs = append(epochs, e)
	}
	sort.Slice(epochs, func(i, j int) bool { return epochs[i] < epochs[j] })

	var out PerishBuckets
	for i, e := range epochs {
		switch i {
		case 0:
			out.Next = PerishBucket{Epoch: e, Count: byEpoch[e]}
		case 1:
			out.Later = PerishBucket{Epoch: e, Count: byEpoch[e]}
		default:
			out.Later.Count += byEpoch[e]
		}
	}
	return out
}

// settlePerish makes the buckets consistent with the instance count: counts
// never exceed the stack, a lone later bucket is promoted, and a perishable
// stack always has a next deadline.
func settlePerish(in *ItemInstance, d ItemDetails, mult float64, now time.Time) {
	if !d.CanPerish() || in.Count <= 0 {
		in.Perish.Clear()
		return
	}
	p := &in.Perish
	if !p.Next.valid() {
		p.Next = PerishBucket{}
	}
	if !p.Later.valid() {
		p.Later = PerishBucket{}
	}
	if !p.HasNext() && p.HasLater() {
		p.PromoteLater()
	}
	if p.Next.Count > in.Count {
		p.Next.Count = in.Count
	}
	if p.HasLater() {
		left := in.Count - p.Next.Count
		if left <= 0 {
			p.Later = PerishBucket{}
		} else if p.Later.Count > left {
			p.Later.Count = left
		}
	}
	if !p.HasNext() {
		p.Next = PerishBucket{Epoch: freshDeadline(d, mult, now), Count: 1}
	}
}

// rescaleDeadlines stretches the remaining time of each deadline by ratio,
// used when an instance moves between containers with different perish
// multipliers.
func rescaleDeadlines(p *PerishBuckets, ratio float64, now time.Time) {
	if ratio == 1 {
		return
	}
	n := now.Unix()
	for _, b := range []*PerishBucket{&p.Next, &p.Later} {
		if b.valid() {
			b.Epoch = rescaleEpoch(b.Epoch, ratio, n)
		}
	}
	if p.HasNext() && p.HasLater() && p.Later.Epoch < p.Next.Epoch {
		p.Next, p.Later = p.Later, p.Next
	}
}

// rescaleEpoch stretches the time left until epoch by ratio. Deadlines
// already due are left alone.
func rescaleEpoch(epoch int64, ratio float64, now int64) int64 {
	if ratio == 1 || epoch <= now {
		return epoch
	}
	scaled := int64(math.Ceil(float64(epoch-now) * ratio))
	if scaled < 1 {
		scaled = 1
	}
	return now + scaled
}
