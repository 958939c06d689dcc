package npc

import (
	"fmt"
	"strings"
	"time"

	"github.com/crystal-mush/xmlattach/pkg/attach"
	"github.com/crystal-mush/xmlattach/pkg/codec"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
	"github.com/crystal-mush/xmlattach/pkg/timer"
)

const (
	// EscortRange is how close a player must stand to talk to an escort.
	EscortRange = 3

	// ArrivalDelay is how long an escort lingers after arriving.
	ArrivalDelay = 30 * time.Second
)

// Escortable is a mobile that asks to be led to a destination map.
type Escortable struct {
	Destination string

	escorter *gamedb.Entity
	deleteAt time.Time
	timer    *timer.Handle
}

var escortSchema = codec.NewSchema("Escortable", codec.Fallthrough,
	codec.Group[Escortable]{
		Since: 0,
		Write: func(w codec.Writer, e *Escortable) {
			w.WriteBool(e.Destination != "")
			if e.Destination != "" {
				w.WriteString(e.Destination)
			}
			w.WriteBool(!e.deleteAt.IsZero())
			if !e.deleteAt.IsZero() {
				w.WriteTime(e.deleteAt)
			}
		},
		Read: func(d *codec.Decoder, e *Escortable) {
			if d.ReadBool() {
				e.Destination = d.ReadString()
			}
			if d.ReadBool() {
				e.deleteAt = d.ReadTime()
			}
		},
	},
)

func (e *Escortable) RecordType() string                  { return "Escortable" }
func (e *Escortable) EncodeRecord(w codec.Writer) error   { return escortSchema.Encode(w, e) }
func (e *Escortable) DecodeRecord(d *codec.Decoder) error { return escortSchema.Decode(d, e) }

// Escorter returns the mobile leading this one, if any.
func (e *Escortable) Escorter() *gamedb.Entity {
	if e.escorter.IsDeleted() {
		e.escorter = nil
	}
	return e.escorter
}

// DeleteAt returns when the escort will leave, or the zero time.
func (e *Escortable) DeleteAt() time.Time { return e.deleteAt }

// Hear answers "destination" and "I will take thee".
func (e *Escortable) Hear(env *attach.Env, self *gamedb.Entity, ev attach.SpeechEvent) bool {
	if e.Destination == "" || env.World == nil || !env.World.InRange(self, ev.Speaker, EscortRange) {
		return false
	}
	text := strings.ToLower(ev.Text)
	switch {
	case strings.Contains(text, "destination"):
		return e.SayDestinationTo(env, self, ev.Speaker)
	case strings.Contains(text, "i will take thee"):
		return e.AcceptEscorter(env, self, ev.Speaker)
	}
	return false
}

func (e *Escortable) SayDestinationTo(env *attach.Env, self, m *gamedb.Entity) bool {
	if e.Destination == "" || !m.Alive() {
		return false
	}
	switch e.Escorter() {
	case nil:
		env.Tell(m, fmt.Sprintf("%s: I am looking to go to %s, will you take me?", self.Name, e.Destination))
	case m:
		env.Tell(m, fmt.Sprintf("%s: Lead on! Payment will be made when we arrive in %s.", self.Name, e.Destination))
	default:
		return false
	}
	return true
}

func (e *Escortable) AcceptEscorter(env *attach.Env, self, m *gamedb.Entity) bool {
	if e.Destination == "" || e.Escorter() != nil || !m.Alive() {
		return false
	}
	e.escorter = m
	env.Tell(m, fmt.Sprintf("%s: Lead on! Payment will be made when we arrive in %s.", self.Name, e.Destination))
	return true
}

// CheckAtDestination ends the escort when self has reached its
// destination map, and schedules self to leave.
func (e *Escortable) CheckAtDestination(env *attach.Env, self *gamedb.Entity) bool {
	m := e.Escorter()
	if e.Destination == "" || m == nil || !strings.EqualFold(self.Map, e.Destination) {
		return false
	}
	env.Tell(m, fmt.Sprintf("%s: We have arrived! I thank thee, %s! I have no further need of thy services.", self.Name, m.Name))
	e.Destination = ""
	e.escorter = nil
	e.beginDelete(env, self, env.Now().Add(ArrivalDelay))
	return true
}

func (e *Escortable) beginDelete(env *attach.Env, self *gamedb.Entity, at time.Time) {
	e.timer.Stop()
	e.deleteAt = at
	e.timer = env.Timers.ScheduleOnce(at.Sub(env.Now()), func() { env.Registry.DeleteEntity(self) })
}

// Restore restarts a pending departure.
func (e *Escortable) Restore(env *attach.Env, self *gamedb.Entity) {
	if !e.deleteAt.IsZero() {
		e.beginDelete(env, self, e.deleteAt)
	}
}
