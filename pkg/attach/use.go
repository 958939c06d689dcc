package attach

import (
	"time"

	"github.com/crystal-mush/xmlattach/pkg/codec"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

// TooFarMessage is told to a mobile out of range of something it tried to
// use.
const TooFarMessage = "That is too far away."

// Use gates the use of an entity behind range, condition, use-count and
// refractory checks, and runs action lists on success or failure. With
// targeting enabled a successful use asks for a target first.
type Use struct {
	Base

	RequireLOS       bool
	MaxRange         int
	Refractory       time.Duration
	MaxUses          int
	NUses            int
	BlockDefault     bool
	Condition        string
	SuccessAction    string
	FailureAction    string
	RefractoryAction string
	MaxUsesAction    string

	AllowCarried bool

	TargetingEnabled    bool
	TargetingAction     string
	TargetCondition     string
	TargetFailureAction string

	MaxTargetRange int

	refractoryEnd  time.Time
	refractoryLeft time.Duration // stored value until OnLoad converts it
}

// NewUse returns a Use with the stock limits: range 3, target range 30,
// usable from the backpack.
func NewUse() *Use {
	return &Use{MaxRange: 3, MaxTargetRange: 30, AllowCarried: true}
}

var useSchema = codec.NewSchema("Use", codec.Fallthrough,
	codec.Group[Use]{
		Since: 0,
		Write: func(w codec.Writer, a *Use) {
			w.WriteBool(a.RequireLOS)
			w.WriteInt(a.MaxRange)
			w.WriteDuration(a.Refractory)
			w.WriteDuration(a.refractoryRemaining())
			w.WriteInt(a.MaxUses)
			w.WriteInt(a.NUses)
			w.WriteBool(a.BlockDefault)
			w.WriteString(a.Condition)
			w.WriteString(a.SuccessAction)
			w.WriteString(a.FailureAction)
			w.WriteString(a.RefractoryAction)
			w.WriteString(a.MaxUsesAction)
		},
		Read: func(d *codec.Decoder, a *Use) {
			a.RequireLOS = d.ReadBool()
			a.MaxRange = d.ReadInt()
			a.Refractory = d.ReadDuration()
			a.refractoryLeft = d.ReadDuration()
			a.MaxUses = d.ReadInt()
			a.NUses = d.ReadInt()
			a.BlockDefault = d.ReadBool()
			a.Condition = d.ReadString()
			a.SuccessAction = d.ReadString()
			a.FailureAction = d.ReadString()
			a.RefractoryAction = d.ReadString()
			a.MaxUsesAction = d.ReadString()
		},
	},
	codec.Group[Use]{
		Since: 1,
		Write: func(w codec.Writer, a *Use) { w.WriteBool(a.AllowCarried) },
		Read:  func(d *codec.Decoder, a *Use) { a.AllowCarried = d.ReadBool() },
	},
	codec.Group[Use]{
		Since: 2,
		Write: func(w codec.Writer, a *Use) {
			w.WriteBool(a.TargetingEnabled)
			w.WriteString(a.TargetingAction)
			w.WriteString(a.TargetCondition)
			w.WriteString(a.TargetFailureAction)
		},
		Read: func(d *codec.Decoder, a *Use) {
			a.TargetingEnabled = d.ReadBool()
			a.TargetingAction = d.ReadString()
			a.TargetCondition = d.ReadString()
			a.TargetFailureAction = d.ReadString()
		},
	},
	codec.Group[Use]{
		Since: 3,
		Write: func(w codec.Writer, a *Use) { w.WriteInt(a.MaxTargetRange) },
		Read:  func(d *codec.Decoder, a *Use) { a.MaxTargetRange = d.ReadInt() },
	},
)

func (a *Use) RecordType() string                  { return "Use" }
func (a *Use) EncodeRecord(w codec.Writer) error   { return WriteRecord(w, &a.Base, useSchema, a) }
func (a *Use) DecodeRecord(d *codec.Decoder) error { return ReadRecord(d, &a.Base, useSchema, a) }
func (a *Use) Capabilities() Capability            { return HandlesUse | HandlesUser }

// EncodeRecordAt writes the Use part of the record at an older version.
func (a *Use) EncodeRecordAt(w codec.Writer, version int) error {
	return WriteRecordAt(w, &a.Base, useSchema, a, version)
}

func (a *Use) refractoryRemaining() time.Duration {
	if a.refractoryEnd.IsZero() {
		return a.refractoryLeft
	}
	if left := a.refractoryEnd.Sub(a.Now()); left > 0 {
		return left
	}
	return 0
}

// OnLoad restarts the refractory period from its stored remainder.
func (a *Use) OnLoad(env *Env) {
	if a.refractoryLeft > 0 {
		a.refractoryEnd = env.Now().Add(a.refractoryLeft)
	}
	a.refractoryLeft = 0
}

func (a *Use) inRange(env *Env, from, target *gamedb.Entity) bool {
	if from == nil || target == nil || a.MaxRange < 0 {
		return false
	}
	if env.World == nil {
		return true
	}
	if target.IsItem() {
		if env.World.RootParent(target) == from {
			return a.AllowCarried
		}
		if target.Parent != gamedb.Nothing {
			return false
		}
	}
	// No line-of-sight model exists; RequireLOS is stored but always passes.
	return env.World.InRange(from, target, a.MaxRange)
}

func (a *Use) conditionMet(env *Env, target *gamedb.Entity) bool {
	return a.Condition == "" || env.Check(target, a.Condition)
}

func (a *Use) usesLeft() bool {
	return a.MaxUses <= 0 || a.NUses < a.MaxUses
}

func (a *Use) rested(now time.Time) bool {
	return a.Refractory <= 0 || !now.Before(a.refractoryEnd)
}

// CanUse reports whether from may use target right now.
func (a *Use) CanUse(env *Env, from, target *gamedb.Entity) bool {
	return a.inRange(env, from, target) && a.conditionMet(env, target) && a.usesLeft() && a.rested(env.Now())
}

func (a *Use) succeed(env *Env, target *gamedb.Entity) {
	env.Run(target, a.SuccessAction)
	a.refractoryEnd = env.Now().Add(a.Refractory)
	a.NUses++
}

func (a *Use) try(env *Env, from, target *gamedb.Entity) {
	if a.CanUse(env, from, target) {
		if a.TargetingEnabled {
			a.beginTarget(env, from, target)
			return
		}
		a.succeed(env, target)
		return
	}
	switch {
	case !a.inRange(env, from, target):
		env.Tell(from, TooFarMessage)
	case !a.rested(env.Now()):
		env.Run(target, a.RefractoryAction)
	case !a.usesLeft():
		env.Run(target, a.MaxUsesAction)
	default:
		env.Run(target, a.FailureAction)
	}
}

func (a *Use) beginTarget(env *Env, from, target *gamedb.Entity) {
	if from == nil {
		return
	}
	env.Run(target, a.TargetingAction)
	env.Registry.BeginTarget(from, func(targeted *gamedb.Entity) {
		if targeted == nil || a.IsDeleted() {
			return
		}
		if env.World != nil && !env.World.InRange(from, targeted, a.MaxTargetRange) {
			env.Tell(from, TooFarMessage)
			return
		}
		if a.TargetCondition == "" || env.Check(targeted, a.TargetCondition) {
			a.succeed(env, targeted)
			return
		}
		env.Run(targeted, a.TargetFailureAction)
	})
}

// OnUse handles from using the entity this is attached to. A mobile using
// itself is left to OnUser.
func (a *Use) OnUse(env *Env, from *gamedb.Entity) bool {
	target := a.AttachedTo()
	blocked := a.BlockDefault || !a.CanUse(env, from, target)
	if target != from {
		a.try(env, from, target)
	}
	return blocked
}

// OnUser handles the carrying mobile using target.
func (a *Use) OnUser(env *Env, target *gamedb.Entity) bool {
	from := a.AttachedTo()
	blocked := a.BlockDefault || !a.CanUse(env, from, target)
	a.try(env, from, target)
	return blocked
}
