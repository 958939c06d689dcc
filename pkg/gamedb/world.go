package gamedb

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownType is returned by Spawn for a type name with no template.
var ErrUnknownType = errors.New("unknown entity type")

// Template describes how to build an entity of a catalog type.
type Template struct {
	Kind     Kind
	Name     string
	Hue      int
	Hits     int
	Props    map[string]string
	Behavior func() Behavior
}

// World is the in-memory registry of live entities. It owns serial
// allocation and the spawn catalog.
type World struct {
	mu        sync.RWMutex
	entities  map[DBRef]*Entity
	next      DBRef
	catalog   map[string]Template
	listeners []func(to *Entity, msg string)
}

// NewWorld creates an empty world whose first serial is 1.
func NewWorld() *World {
	return &World{
		entities: make(map[DBRef]*Entity),
		next:     1,
		catalog:  make(map[string]Template),
	}
}

// Define adds or replaces a catalog template. Type names are case-insensitive.
func (w *World) Define(typeName string, t Template) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.catalog[strings.ToLower(typeName)] = t
}

// HasType reports whether the catalog defines typeName.
func (w *World) HasType(typeName string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.catalog[strings.ToLower(typeName)]
	return ok
}

// Spawn builds a catalog entity and adds it at the given location.
func (w *World) Spawn(typeName string, at Point3D, mapName string) (*Entity, error) {
	w.mu.RLock()
	t, ok := w.catalog[strings.ToLower(typeName)]
	w.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("gamedb: spawn %q: %w", typeName, ErrUnknownType)
	}
	name := t.Name
	if name == "" {
		name = typeName
	}
	e := NewEntity(t.Kind, name)
	e.TypeName = typeName
	e.Hue = t.Hue
	e.Hits = t.Hits
	e.Location = at
	e.Map = mapName
	for k, v := range t.Props {
		e.Props[k] = v
	}
	if t.Behavior != nil {
		e.Behavior = t.Behavior()
	}
	w.Add(e)
	return e, nil
}

// Add registers e. An entity without a serial gets the next free one; an
// entity with a serial (from a load) advances the allocator past it.
func (w *World) Add(e *Entity) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e.Serial <= 0 {
		e.Serial = w.next
		w.next++
	} else if e.Serial >= w.next {
		w.next = e.Serial + 1
	}
	if e.Props == nil {
		e.Props = make(map[string]string)
	}
	if e.Skills == nil {
		e.Skills = make(map[string]float64)
	}
	w.entities[e.Serial] = e
}

// Lookup returns a live entity by serial.
func (w *World) Lookup(ref DBRef) (*Entity, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.entities[ref]
	return e, ok
}

// Delete marks e deleted and removes it and everything it contains.
func (w *World) Delete(e *Entity) {
	if e == nil || e.Deleted {
		return
	}
	for _, c := range w.Contents(e) {
		w.Delete(c)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	e.Deleted = true
	delete(w.entities, e.Serial)
}

// Contents returns the entities whose parent is e, in serial order.
func (w *World) Contents(e *Entity) []*Entity {
	var out []*Entity
	w.Each(func(c *Entity) {
		if c.Parent == e.Serial {
			out = append(out, c)
		}
	})
	return out
}

// Each calls fn for every live entity in serial order.
func (w *World) Each(fn func(*Entity)) {
	w.mu.RLock()
	refs := make([]int, 0, len(w.entities))
	for ref := range w.entities {
		refs = append(refs, int(ref))
	}
	w.mu.RUnlock()
	sort.Ints(refs)
	for _, ref := range refs {
		if e, ok := w.Lookup(DBRef(ref)); ok {
			fn(e)
		}
	}
}

// ByType returns live entities whose TypeName matches, case-insensitively.
func (w *World) ByType(typeName string) []*Entity {
	var out []*Entity
	w.Each(func(e *Entity) {
		if strings.EqualFold(e.TypeName, typeName) {
			out = append(out, e)
		}
	})
	return out
}

// Len returns the number of live entities.
func (w *World) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.entities)
}

// NextSerial returns the serial the next new entity will receive.
func (w *World) NextSerial() DBRef {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.next
}

// SetNextSerial restores the allocator after a load. It never moves the
// allocator below a serial already in use.
func (w *World) SetNextSerial(n DBRef) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n > w.next {
		w.next = n
	}
}

// Reset drops every entity. The catalog and listeners are kept.
func (w *World) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entities = make(map[DBRef]*Entity)
	w.next = 1
}

// OnTell registers a listener called for every message told to an entity.
func (w *World) OnTell(fn func(to *Entity, msg string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Tell sends a message to an entity.
func (w *World) Tell(to *Entity, msg string) {
	if to.IsDeleted() {
		return
	}
	to.Messages = append(to.Messages, msg)
	w.mu.RLock()
	ls := w.listeners
	w.mu.RUnlock()
	for _, fn := range ls {
		fn(to, msg)
	}
}

// Tellf formats and sends a message.
func (w *World) Tellf(to *Entity, format string, args ...any) {
	w.Tell(to, fmt.Sprintf(format, args...))
}

// RootParent walks the containment chain up to the outermost holder.
// It returns e itself when e is not contained.
func (w *World) RootParent(e *Entity) *Entity {
	seen := map[DBRef]bool{}
	cur := e
	for cur != nil && cur.Parent != Nothing && !seen[cur.Serial] {
		seen[cur.Serial] = true
		p, ok := w.Lookup(cur.Parent)
		if !ok {
			break
		}
		cur = p
	}
	return cur
}

// WorldLocation returns where e effectively is: its own location, or its
// root holder's when contained.
func (w *World) WorldLocation(e *Entity) (Point3D, string) {
	r := w.RootParent(e)
	return r.Location, r.Map
}

// InRange reports whether a and b share a map and are within r tiles on
// both axes. A negative range never matches.
func (w *World) InRange(a, b *Entity, r int) bool {
	if a == nil || b == nil || r < 0 {
		return false
	}
	la, ma := w.WorldLocation(a)
	lb, mb := w.WorldLocation(b)
	if ma != mb {
		return false
	}
	return abs(la.X-lb.X) <= r && abs(la.Y-lb.Y) <= r
}

// IsEquipped reports whether ref names an item currently worn or wielded.
func (w *World) IsEquipped(ref DBRef) bool {
	e, ok := w.Lookup(ref)
	return ok && e.Equipped()
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
