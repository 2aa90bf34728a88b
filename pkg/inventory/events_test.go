package inventory

import (
	"sync"
	"testing"
	"time"
)

func TestSimpleEventBusKeepsOrderPerOwner(t *testing.T) {
	bus := NewSimpleEventBus()
	var mu sync.Mutex
	var got []uint64
	done := make(chan struct{})
	const total = 200
	bus.Subscribe("p1", func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Revision)
		if len(got) == total {
			close(done)
		}
	})
	bus.Publish(Event{Owner: "nobody", Revision: 999})
	for rev := uint64(1); rev <= total; rev++ {
		bus.Publish(Event{Owner: "p1", Revision: rev})
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("events not delivered")
	}
	mu.Lock()
	defer mu.Unlock()
	for i, rev := range got {
		if rev != uint64(i+1) {
			t.Fatalf("event %d delivered out of order: got revision %d", i, rev)
		}
	}
}

func TestSimpleEventBusHandlerMayCallBack(t *testing.T) {
	bus := NewSimpleEventBus()
	inv := New("inv-1", "p1", testCatalog(), WithEventBus(bus), WithLogger(quietLogger()),
		WithTimerFunc((&timerRecorder{}).arm))
	seen := make(chan Diff, 1)
	bus.Subscribe("p1", func(e Event) {
		if e.Type == EventChanged {
			seen <- inv.TakeDiff()
		}
	})
	if _, err := inv.AddItemAuto("rock", 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	select {
	case d := <-seen:
		if d.Empty() {
			t.Fatalf("handler should see the committed diff")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("handler calling into the inventory deadlocked")
	}
	bus.Unsubscribe("p1")
}
