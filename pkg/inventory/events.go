package inventory

import (
	"sync"
	"time"
)

// EventType represents the type of inventory event.
type EventType int

const (
	// EventChanged is emitted after an intent or perish tick commits changes.
	EventChanged EventType = iota
	// EventPerished is emitted for each instance that lost units to decay.
	EventPerished
	// EventRejected is emitted when an intent fails and is rolled back.
	EventRejected
)

// String returns a human-readable representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventChanged:
		return "InventoryChanged"
	case EventPerished:
		return "ItemPerished"
	case EventRejected:
		return "IntentRejected"
	default:
		return "Unknown"
	}
}

// IntentPerishTick is the intent name of commits made by perish ticks.
const IntentPerishTick = "perish_tick"

// Event describes something that happened to an inventory.
type Event struct {
	Type      EventType  `json:"type"`
	Inventory string     `json:"inventory"`
	Owner     OwnerID    `json:"owner"`
	Revision  uint64     `json:"revision"`
	Intent    string     `json:"intent,omitempty"`
	Item      ItemID     `json:"item,omitempty"`
	Instance  InstanceID `json:"instance,omitempty"`
	Count     int        `json:"count,omitempty"`
	Err       string     `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// EventBus manages event subscriptions and delivery.
type EventBus interface {
	// Subscribe registers a handler for events of a specific owner.
	Subscribe(owner OwnerID, handler func(Event))

	// Unsubscribe removes the handler for an owner.
	Unsubscribe(owner OwnerID)

	// Publish sends an event to subscribed handlers.
	Publish(event Event)
}

// SimpleEventBus is a basic in-memory event bus implementation. Each owner
// has its own delivery queue: handlers run on a separate goroutine, so they
// may call back into the inventory that published the event, and see the
// owner's events in publish order.
type SimpleEventBus struct {
	mu       sync.RWMutex
	handlers map[OwnerID]*subscriber
}

type subscriber struct {
	handler func(Event)

	mu      sync.Mutex
	queue   []Event
	running bool
}

// NewSimpleEventBus creates a new event bus.
func NewSimpleEventBus() *SimpleEventBus {
	return &SimpleEventBus{handlers: make(map[OwnerID]*subscriber)}
}

// Subscribe registers a handler for events of a specific owner.
func (bus *SimpleEventBus) Subscribe(owner OwnerID, handler func(Event)) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.handlers[owner] = &subscriber{handler: handler}
}

// Unsubscribe removes the handler for an owner. Events already queued are
// still delivered.
func (bus *SimpleEventBus) Unsubscribe(owner OwnerID) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.handlers, owner)
}

// Publish queues an event for the owner's handler without waiting for it.
func (bus *SimpleEventBus) Publish(event Event) {
	bus.mu.RLock()
	sub, exists := bus.handlers[event.Owner]
	bus.mu.RUnlock()
	if exists {
		sub.push(event)
	}
}

func (s *subscriber) push(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, e)
	if !s.running {
		s.running = true
		go s.drain()
	}
}

func (s *subscriber) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		e := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()
		s.handler(e)
	}
}

// NullEventBus is an event bus that does nothing (for testing or when events not needed).
type NullEventBus struct{}

// NewNullEventBus creates a new null event bus.
func NewNullEventBus() *NullEventBus {
	return &NullEventBus{}
}

// Subscribe does nothing.
func (bus *NullEventBus) Subscribe(owner OwnerID, handler func(Event)) {}

// Unsubscribe does nothing.
func (bus *NullEventBus) Unsubscribe(owner OwnerID) {}

// Publish does nothing.
func (bus *NullEventBus) Publish(event Event) {}
