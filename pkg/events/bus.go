package events

import (
	"slices"
	"sync"

	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

// Subscriber receives events from the bus.
type Subscriber interface {
	Receive(ev Event)
	Closed() bool
}

// Func adapts a function to a Subscriber that never closes.
type Func func(ev Event)

func (f Func) Receive(ev Event) { f(ev) }
func (f Func) Closed() bool     { return false }

// Bus routes events to subscribers of their target entity and to global
// subscribers such as the event log and metrics.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[gamedb.DBRef][]Subscriber
	global      []Subscriber
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[gamedb.DBRef][]Subscriber),
	}
}

// Subscribe registers a subscriber for events targeted at one entity.
func (b *Bus) Subscribe(ref gamedb.DBRef, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[ref] = append(b.subscribers[ref], sub)
}

// Unsubscribe removes a subscriber for one entity.
func (b *Bus) Unsubscribe(ref gamedb.DBRef, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[ref]
	if i := slices.Index(subs, sub); i >= 0 {
		subs = slices.Delete(slices.Clone(subs), i, i+1)
	}
	if len(subs) == 0 {
		delete(b.subscribers, ref)
	} else {
		b.subscribers[ref] = subs
	}
}

// SubscribeGlobal registers a subscriber that receives all events.
func (b *Bus) SubscribeGlobal(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global = append(b.global, sub)
}

func deliver(subs []Subscriber, ev Event) {
	for _, s := range subs {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
}

// Emit sends an event to the subscribers of ev.Target and all global
// subscribers.
func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	var subs []Subscriber
	if ev.Target != gamedb.Nothing {
		subs = b.subscribers[ev.Target]
	}
	globals := b.global
	b.mu.RUnlock()

	deliver(subs, ev)
	deliver(globals, ev)
}

// EmitTo sends an event to a specific entity (overriding ev.Target).
func (b *Bus) EmitTo(ref gamedb.DBRef, ev Event) {
	ev.Target = ref
	b.Emit(ev)
}

// EmitNear sends an event to every subscribed entity within r tiles of
// center, except the one named by except. Global subscribers get the
// original event once.
func (b *Bus) EmitNear(w *gamedb.World, center *gamedb.Entity, r int, except gamedb.DBRef, ev Event) {
	if center == nil {
		return
	}
	w.Each(func(e *gamedb.Entity) {
		if e.Serial == except || !w.InRange(center, e, r) {
			return
		}
		b.mu.RLock()
		subs := b.subscribers[e.Serial]
		b.mu.RUnlock()
		if len(subs) == 0 {
			return
		}
		near := ev
		near.Target = e.Serial
		deliver(subs, near)
	})

	b.mu.RLock()
	globals := b.global
	b.mu.RUnlock()
	deliver(globals, ev)
}

// Subscribers returns the number of subscribers for an entity.
func (b *Bus) Subscribers(ref gamedb.DBRef) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[ref])
}

// Cleanup drops closed subscribers, and entities left with none.
func (b *Bus) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()
	closed := func(s Subscriber) bool { return s.Closed() }
	for ref, subs := range b.subscribers {
		if subs = slices.DeleteFunc(slices.Clone(subs), closed); len(subs) == 0 {
			delete(b.subscribers, ref)
		} else {
			b.subscribers[ref] = subs
		}
	}
	b.global = slices.DeleteFunc(slices.Clone(b.global), closed)
}
