package codec

import (
	"log"

	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

// Resolver maps serials to live entities once a whole world is resident.
type Resolver interface {
	Lookup(ref gamedb.DBRef) (*gamedb.Entity, bool)
}

type pendingRef struct {
	ref    gamedb.DBRef
	assign func(*gamedb.Entity)
}

// Fixups collects entity back-references read during a load. Referenced
// entities may be decoded after their referrer, so nothing is resolved until
// Run is called at the end of the load.
type Fixups struct {
	refs  []pendingRef
	after []func()
}

// Defer queues assign to be called with the entity for ref. Nothing is
// never queued; the field keeps its zero value.
func (f *Fixups) Defer(ref gamedb.DBRef, assign func(*gamedb.Entity)) {
	if ref == gamedb.Nothing || assign == nil {
		return
	}
	f.refs = append(f.refs, pendingRef{ref: ref, assign: assign})
}

// After queues fn to run once every reference has been resolved.
func (f *Fixups) After(fn func()) {
	f.after = append(f.after, fn)
}

// Len returns the number of references waiting to be resolved.
func (f *Fixups) Len() int { return len(f.refs) }

// Run resolves every queued reference, then runs the After hooks in the
// order they were registered. References that cannot be resolved are
// assigned nil and logged; the count is returned. Run drains the queue.
func (f *Fixups) Run(res Resolver) int {
	unresolved := 0
	for _, p := range f.refs {
		e, ok := res.Lookup(p.ref)
		if !ok || e.IsDeleted() {
			log.Printf("codec: unresolved reference %s", p.ref)
			unresolved++
			p.assign(nil)
			continue
		}
		p.assign(e)
	}
	f.refs = nil
	hooks := f.after
	f.after = nil
	for _, fn := range hooks {
		fn()
	}
	return unresolved
}
