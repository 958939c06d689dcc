// Package items holds the entity behaviors for interactive items: levers,
// switches, combination locks, maps and the quest leader board.
package items

import (
	"log"

	"github.com/crystal-mush/xmlattach/pkg/attach"
	"github.com/crystal-mush/xmlattach/pkg/codec"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
	"github.com/crystal-mush/xmlattach/pkg/script"
)

// UseRange is how close a mobile must stand to throw a lever or dial a lock.
const UseRange = 2

// Linkable is a behavior that another lever or switch can drive. visited
// holds the entities already activated by the current throw.
type Linkable interface {
	Activate(env *attach.Env, self, from *gamedb.Entity, state int, visited map[*gamedb.Entity]bool)
}

// Target is a property string applied to an entity when a lever or switch
// reaches the matching state.
type Target struct {
	Entity   *gamedb.Entity
	Property string
}

func writeTarget(w codec.Writer, t Target) {
	codec.WriteEntity(w, t.Entity)
	w.WriteString(t.Property)
}

func readTarget(d *codec.Decoder, t *Target) {
	d.ReadEntity(func(e *gamedb.Entity) { t.Entity = e })
	t.Property = d.ReadString()
}

// apply sets t's property string on its entity. Failures are reported to
// staff and logged.
func (t Target) apply(env *attach.Env, from *gamedb.Entity) {
	if t.Entity.IsDeleted() || t.Property == "" {
		return
	}
	if err := script.ApplyProperties(t.Entity, t.Property); err != nil {
		log.Printf("items: apply %q to %s: %v", t.Property, t.Entity.Serial, err)
		if from != nil && from.Access > gamedb.Player {
			env.Tell(from, err.Error())
		}
	}
}

// propagate activates link with state unless self already ran in this
// chain.
func propagate(env *attach.Env, self, from, link *gamedb.Entity, state int, visited map[*gamedb.Entity]bool) {
	if link.IsDeleted() {
		return
	}
	l, ok := link.Behavior.(Linkable)
	if !ok {
		return
	}
	if visited == nil {
		visited = make(map[*gamedb.Entity]bool)
	}
	if visited[self] {
		return
	}
	visited[self] = true
	l.Activate(env, link, from, state, visited)
}

func inReach(env *attach.Env, from, self *gamedb.Entity) bool {
	if env.World == nil {
		return true
	}
	return env.World.InRange(from, self, UseRange)
}

// LeverType selects how many positions a lever has.
type LeverType int

const (
	TwoState LeverType = iota
	ThreeState
)

func (t LeverType) String() string {
	if t == ThreeState {
		return "ThreeState"
	}
	return "TwoState"
}

// Lever cycles through two or three states, applying a property string to
// the state's target entity on each throw.
type Lever struct {
	State    int
	Sound    int
	Type     LeverType
	Targets  [3]Target
	Link     *gamedb.Entity
	Disabled bool
}

// NewLever returns a two-state lever with the stock sound.
func NewLever() *Lever { return &Lever{Sound: 936} }

var leverSchema = codec.NewSchema("Lever", codec.Fallthrough,
	codec.Group[Lever]{
		Since: 0,
		Write: func(w codec.Writer, l *Lever) {
			w.WriteInt(l.State)
			w.WriteInt(l.Sound)
			w.WriteInt(int(l.Type))
			for _, t := range l.Targets {
				writeTarget(w, t)
			}
		},
		Read: func(d *codec.Decoder, l *Lever) {
			l.State = d.ReadInt()
			l.Sound = d.ReadInt()
			if t := LeverType(d.ReadInt()); t == TwoState || t == ThreeState {
				l.Type = t
			}
			for i := range l.Targets {
				readTarget(d, &l.Targets[i])
			}
		},
	},
	codec.Group[Lever]{
		Since: 1,
		Write: func(w codec.Writer, l *Lever) { codec.WriteEntity(w, l.Link) },
		Read: func(d *codec.Decoder, l *Lever) {
			d.ReadEntity(func(e *gamedb.Entity) { l.Link = e })
		},
	},
	codec.Group[Lever]{
		Since: 2,
		Write: func(w codec.Writer, l *Lever) { w.WriteBool(l.Disabled) },
		Read:  func(d *codec.Decoder, l *Lever) { l.Disabled = d.ReadBool() },
	},
)

func (l *Lever) RecordType() string                  { return "Lever" }
func (l *Lever) EncodeRecord(w codec.Writer) error   { return leverSchema.Encode(w, l) }
func (l *Lever) DecodeRecord(d *codec.Decoder) error { return leverSchema.Decode(d, l) }

// EncodeRecordAt writes the lever as an older version would have.
func (l *Lever) EncodeRecordAt(w codec.Writer, version int) error {
	return leverSchema.EncodeAt(w, l, version)
}

func (l *Lever) maxState() int {
	if l.Type == TwoState {
		return 1
	}
	return 2
}

// Activate moves the lever to state, clamped to its positions, and drives
// the linked entity to the same state.
func (l *Lever) Activate(env *attach.Env, self, from *gamedb.Entity, state int, visited map[*gamedb.Entity]bool) {
	if l.Disabled {
		return
	}
	l.State = min(max(state, 0), l.maxState())
	l.Targets[l.State].apply(env, from)
	propagate(env, self, from, l.Link, l.State, visited)
}

// Use throws the lever to its next position.
func (l *Lever) Use(env *attach.Env, self, from *gamedb.Entity) {
	if from == nil || l.Disabled {
		return
	}
	if !inReach(env, from, self) {
		env.Tell(from, attach.TooFarMessage)
		return
	}
	next := l.State + 1
	if next > l.maxState() {
		next = 0
	}
	l.Activate(env, self, from, next, nil)
}

// Switch is a two-position lever.
type Switch struct {
	State    int
	Sound    int
	Targets  [2]Target
	Link     *gamedb.Entity
	Disabled bool
}

func NewSwitch() *Switch { return &Switch{Sound: 939} }

var switchSchema = codec.NewSchema("Switch", codec.Fallthrough,
	codec.Group[Switch]{
		Since: 0,
		Write: func(w codec.Writer, s *Switch) {
			w.WriteInt(s.State)
			w.WriteInt(s.Sound)
			for _, t := range s.Targets {
				writeTarget(w, t)
			}
		},
		Read: func(d *codec.Decoder, s *Switch) {
			s.State = d.ReadInt()
			s.Sound = d.ReadInt()
			for i := range s.Targets {
				readTarget(d, &s.Targets[i])
			}
		},
	},
	codec.Group[Switch]{
		Since: 1,
		Write: func(w codec.Writer, s *Switch) { codec.WriteEntity(w, s.Link) },
		Read: func(d *codec.Decoder, s *Switch) {
			d.ReadEntity(func(e *gamedb.Entity) { s.Link = e })
		},
	},
	codec.Group[Switch]{
		Since: 2,
		Write: func(w codec.Writer, s *Switch) { w.WriteBool(s.Disabled) },
		Read:  func(d *codec.Decoder, s *Switch) { s.Disabled = d.ReadBool() },
	},
)

func (s *Switch) RecordType() string                  { return "Switch" }
func (s *Switch) EncodeRecord(w codec.Writer) error   { return switchSchema.Encode(w, s) }
func (s *Switch) DecodeRecord(d *codec.Decoder) error { return switchSchema.Decode(d, s) }

func (s *Switch) Activate(env *attach.Env, self, from *gamedb.Entity, state int, visited map[*gamedb.Entity]bool) {
	if s.Disabled {
		return
	}
	s.State = min(max(state, 0), 1)
	s.Targets[s.State].apply(env, from)
	propagate(env, self, from, s.Link, s.State, visited)
}

// use flips the switch and reports whether it moved.
func (s *Switch) use(env *attach.Env, self, from *gamedb.Entity) bool {
	if from == nil || s.Disabled {
		return false
	}
	if !inReach(env, from, self) {
		env.Tell(from, attach.TooFarMessage)
		return false
	}
	s.Activate(env, self, from, 1-s.State, nil)
	return true
}

func (s *Switch) Use(env *attach.Env, self, from *gamedb.Entity) { s.use(env, self, from) }

// SingleUseSwitch is a switch that crumbles after one throw.
type SingleUseSwitch struct {
	Switch
}

func NewSingleUseSwitch() *SingleUseSwitch { return &SingleUseSwitch{Switch: *NewSwitch()} }

var singleUseSchema = codec.NewSchema[SingleUseSwitch]("SingleUseSwitch", codec.Fallthrough,
	codec.Group[SingleUseSwitch]{Since: 0},
)

func (s *SingleUseSwitch) RecordType() string { return "SingleUseSwitch" }

func (s *SingleUseSwitch) EncodeRecord(w codec.Writer) error {
	if err := switchSchema.Encode(w, &s.Switch); err != nil {
		return err
	}
	return singleUseSchema.Encode(w, s)
}

func (s *SingleUseSwitch) DecodeRecord(d *codec.Decoder) error {
	if err := switchSchema.Decode(d, &s.Switch); err != nil {
		return err
	}
	return singleUseSchema.Decode(d, s)
}

// Use flips the switch and schedules its removal.
func (s *SingleUseSwitch) Use(env *attach.Env, self, from *gamedb.Entity) {
	if s.use(env, self, from) {
		env.Delete(self)
	}
}
