package attach

import (
	"log"

	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

// The interfaces below are optional for entity behaviors. Handlers receive
// self, the entity carrying the behavior.

// Usable is a behavior with a double-click action of its own.
type Usable interface {
	Use(env *Env, self, from *gamedb.Entity)
}

// Listener is a behavior that hears speech within HearingRange. It reports
// whether it handled the speech.
type Listener interface {
	Hear(env *Env, self *gamedb.Entity, ev SpeechEvent) bool
}

// Restorer is a behavior with work to do once a load has resolved every
// reference and re-indexed every attachment.
type Restorer interface {
	Restore(env *Env, self *gamedb.Entity)
}

// UseEntity is a full double-click of target by from: attachment handlers
// first, then the entity's own behavior unless a handler blocked it. It
// reports whether the default use was blocked.
func (r *Registry) UseEntity(from, target *gamedb.Entity) bool {
	if from == nil || target.IsDeleted() {
		return true
	}
	if r.DispatchUse(from, target) {
		return true
	}
	if u, ok := target.Behavior.(Usable); ok {
		r.behave(target, "use", func() { u.Use(&r.env, target, from) })
	}
	return false
}

// HearSpeech delivers speech to listening behaviors near the speaker and
// returns how many handled it.
func (r *Registry) HearSpeech(ev SpeechEvent) int {
	if ev.Speaker == nil || r.env.World == nil {
		return 0
	}
	var near []*gamedb.Entity
	r.env.World.Each(func(e *gamedb.Entity) {
		if _, ok := e.Behavior.(Listener); ok && e != ev.Speaker && r.env.World.InRange(e, ev.Speaker, HearingRange) {
			near = append(near, e)
		}
	})
	n := 0
	for _, e := range near {
		l := e.Behavior.(Listener)
		r.behave(e, "hear", func() {
			if l.Hear(&r.env, e, ev) {
				n++
			}
		})
	}
	return n
}

// RestoreBehaviors runs the post-load hook of every behavior that has one
// and returns how many ran.
func (r *Registry) RestoreBehaviors() int {
	if r.env.World == nil {
		return 0
	}
	var list []*gamedb.Entity
	r.env.World.Each(func(e *gamedb.Entity) {
		if _, ok := e.Behavior.(Restorer); ok {
			list = append(list, e)
		}
	})
	for _, e := range list {
		res := e.Behavior.(Restorer)
		r.behave(e, "restore", func() { res.Restore(&r.env, e) })
	}
	return len(list)
}

func (r *Registry) behave(e *gamedb.Entity, what string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("attach: %s %s on %s panic: %v", e.Behavior.RecordType(), what, e.Serial, p)
		}
	}()
	fn()
}
