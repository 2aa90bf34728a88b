package inventory

import (
	"sort"
	"time"
)

// Timer is a pending one-shot callback.
type Timer interface {
	Stop() bool
}

// TimerFunc arms a one-shot timer that calls f after d.
type TimerFunc func(d time.Duration, f func()) Timer

func afterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// DefaultMinPerishDelay is the shortest delay the perish timer is armed with.
const DefaultMinPerishDelay = 10 * time.Millisecond

// PerishNode is one scheduled deadline.
type PerishNode struct {
	Epoch    int64
	Instance InstanceID
}

// PerishScheduler keeps the next perish deadline of every perishable
// instance in ascending epoch order and drives a single timer for the
// earliest one.
type PerishScheduler struct {
	nodes []PerishNode
	index map[InstanceID]int

	timerFunc  TimerFunc
	minDelay   time.Duration
	timer      Timer
	generation uint64
	fire       func(generation uint64)
}

// NewPerishScheduler builds an empty scheduler. fire is invoked from the
// timer goroutine with the generation the timer was armed under.
func NewPerishScheduler(timerFunc TimerFunc, minDelay time.Duration, fire func(uint64)) *PerishScheduler {
	if timerFunc == nil {
		timerFunc = afterFunc
	}
	if minDelay <= 0 {
		minDelay = DefaultMinPerishDelay
	}
	return &PerishScheduler{
		index:     make(map[InstanceID]int),
		timerFunc: timerFunc,
		minDelay:  minDelay,
		fire:      fire,
	}
}

// Len returns the number of scheduled instances.
func (s *PerishScheduler) Len() int { return len(s.nodes) }

// Generation identifies the currently armed timer.
func (s *PerishScheduler) Generation() uint64 { return s.generation }

// Peek returns the earliest node without removing it.
func (s *PerishScheduler) Peek() (PerishNode, bool) {
	if len(s.nodes) == 0 {
		return PerishNode{}, false
	}
	return s.nodes[0], true
}

// Enqueue schedules the next deadline of inst. Instances without a next
// deadline, and instances already scheduled, are ignored.
func (s *PerishScheduler) Enqueue(inst ItemInstance) {
	if !inst.Perish.HasNext() {
		return
	}
	if _, ok := s.index[inst.ID]; ok {
		return
	}
	n := PerishNode{Epoch: inst.Perish.Next.Epoch, Instance: inst.ID}
	// insert after every node with an epoch <= n.Epoch
	i := sort.Search(len(s.nodes), func(i int) bool { return s.nodes[i].Epoch > n.Epoch })
	s.nodes = append(s.nodes, PerishNode{})
	copy(s.nodes[i+1:], s.nodes[i:])
	s.nodes[i] = n
	s.reindex(i)
}

// Remove unschedules an instance. Returns true if it was scheduled.
func (s *PerishScheduler) Remove(id InstanceID) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	delete(s.index, id)
	copy(s.nodes[i:], s.nodes[i+1:])
	s.nodes[len(s.nodes)-1] = PerishNode{}
	s.nodes = s.nodes[:len(s.nodes)-1]
	s.reindex(i)
	return true
}

// Rebuild replaces the schedule with the next deadlines of instances.
func (s *PerishScheduler) Rebuild(instances []ItemInstance) {
	s.nodes = s.nodes[:0]
	s.index = make(map[InstanceID]int, len(instances))
	for _, in := range instances {
		if in.Perish.HasNext() {
			s.nodes = append(s.nodes, PerishNode{Epoch: in.Perish.Next.Epoch, Instance: in.ID})
		}
	}
	sort.SliceStable(s.nodes, func(i, j int) bool { return s.nodes[i].Epoch < s.nodes[j].Epoch })
	s.reindex(0)
}

// popDue removes and returns every node due at or before now, earliest
// first.
func (s *PerishScheduler) popDue(now int64) []PerishNode {
	n := 0
	for n < len(s.nodes) && s.nodes[n].Epoch <= now {
		n++
	}
	if n == 0 {
		return nil
	}
	due := append([]PerishNode(nil), s.nodes[:n]...)
	for _, d := range due {
		delete(s.index, d.Instance)
	}
	s.nodes = append(s.nodes[:0], s.nodes[n:]...)
	s.reindex(0)
	return due
}

// ScheduleNext cancels any pending timer and, if anything is scheduled, arms
// a new one for the earliest deadline, never sooner than the minimum delay.
func (s *PerishScheduler) ScheduleNext(now time.Time) {
	s.Stop()
	head, ok := s.Peek()
	if !ok {
		return
	}
	delay := time.Unix(head.Epoch, 0).Sub(now)
	if delay < s.minDelay {
		delay = s.minDelay
	}
	gen := s.generation
	s.timer = s.timerFunc(delay, func() {
		if s.fire != nil {
			s.fire(gen)
		}
	})
}

// Stop cancels the pending timer. A callback already in flight sees a
// stale generation.
func (s *PerishScheduler) Stop() {
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Sorted reports whether the nodes are in ascending epoch order and the
// index agrees with their positions.
func (s *PerishScheduler) Sorted() bool {
	for i := range s.nodes {
		if i > 0 && s.nodes[i-1].Epoch > s.nodes[i].Epoch {
			return false
		}
		if s.index[s.nodes[i].Instance] != i {
			return false
		}
	}
	return len(s.index) == len(s.nodes)
}

func (s *PerishScheduler) reindex(from int) {
	for i := from; i < len(s.nodes); i++ {
		s.index[s.nodes[i].Instance] = i
	}
}
