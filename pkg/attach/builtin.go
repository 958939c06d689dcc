package attach

import (
	"fmt"
	"time"

	"github.com/crystal-mush/xmlattach/pkg/codec"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
	"github.com/crystal-mush/xmlattach/pkg/script"
)

// AddKarma grants karma once to a player it is attached to, or to whoever
// kills the mobile carrying it.
type AddKarma struct {
	Base
	Value int
}

func NewAddKarma(value int) *AddKarma { return &AddKarma{Value: value} }

var addKarmaSchema = codec.NewSchema("AddKarma", codec.Fallthrough,
	codec.Group[AddKarma]{
		Since: 0,
		Write: func(w codec.Writer, a *AddKarma) { w.WriteInt(a.Value) },
		Read:  func(d *codec.Decoder, a *AddKarma) { a.Value = d.ReadInt() },
	},
)

func (a *AddKarma) RecordType() string                { return "AddKarma" }
func (a *AddKarma) EncodeRecord(w codec.Writer) error { return WriteRecord(w, &a.Base, addKarmaSchema, a) }
func (a *AddKarma) DecodeRecord(d *codec.Decoder) error {
	return ReadRecord(d, &a.Base, addKarmaSchema, a)
}
func (a *AddKarma) Capabilities() Capability {
	return HandlesAttach | HandlesKilled | HandlesIdentify
}

func (a *AddKarma) grant(env *Env, m *gamedb.Entity) {
	m.Karma += a.Value
	if a.Value < 0 {
		env.Tell(m, fmt.Sprintf("You have lost %d karma", -a.Value))
	} else {
		env.Tell(m, fmt.Sprintf("You have gained %d karma", a.Value))
	}
}

func (a *AddKarma) OnAttach(env *Env) {
	on := a.AttachedTo()
	switch {
	case on.IsMobile() && on.Player:
		a.grant(env, on)
		env.Registry.DeferDelete(a)
	case on.IsItem():
		env.Registry.Delete(a)
	}
}

func (a *AddKarma) OnKilled(env *Env, ev KillEvent) {
	if ev.Killer == nil {
		return
	}
	a.grant(env, ev.Killer)
}

func (a *AddKarma) OnIdentify(env *Env, from *gamedb.Entity) string {
	return fmt.Sprintf("%d Karma", a.Value)
}

// IsEnemy marks the entity it is on as hostile to mobiles its test accepts.
type IsEnemy struct {
	Base
	Test string
}

func NewIsEnemy(test string) *IsEnemy { return &IsEnemy{Test: test} }

var isEnemySchema = codec.NewSchema("IsEnemy", codec.Fallthrough,
	codec.Group[IsEnemy]{
		Since: 0,
		Write: func(w codec.Writer, a *IsEnemy) { w.WriteString(a.Test) },
		Read:  func(d *codec.Decoder, a *IsEnemy) { a.Test = d.ReadString() },
	},
)

func (a *IsEnemy) RecordType() string                { return "IsEnemy" }
func (a *IsEnemy) EncodeRecord(w codec.Writer) error { return WriteRecord(w, &a.Base, isEnemySchema, a) }
func (a *IsEnemy) DecodeRecord(d *codec.Decoder) error {
	return ReadRecord(d, &a.Base, isEnemySchema, a)
}
func (a *IsEnemy) Capabilities() Capability { return HandlesIdentify }

// IsEnemy evaluates the test against the attached entity. An empty test or
// a nil mobile is never an enemy.
func (a *IsEnemy) IsEnemy(from *gamedb.Entity) bool {
	if from == nil || a.Test == "" {
		return false
	}
	return script.EvaluateCondition(a.AttachedTo(), a.Test)
}

func (a *IsEnemy) OnIdentify(env *Env, from *gamedb.Entity) string {
	if from == nil || from.Access < gamedb.Counselor {
		return ""
	}
	if a.Expiration > 0 {
		return fmt.Sprintf("%s: IsEnemy '%s' %s", a.Name, a.Test, a.expiresIn())
	}
	return fmt.Sprintf("%s: IsEnemy '%s'", a.Name, a.Test)
}

// DefaultHueExpiration is the Hue lifetime a new Registry starts with.
const DefaultHueExpiration = 30 * time.Second

// Hue recolours an entity for a while and puts the old colour back when it
// goes away.
type Hue struct {
	Base
	OriginalHue int
	Hue         int

	stockLife bool // take Registry.HueExpiration if Expiration is unset at attach
}

// NewHue returns a Hue that lasts Registry.HueExpiration once attached,
// unless Expiration is set first.
func NewHue(hue int) *Hue {
	return &Hue{Hue: hue, stockLife: true}
}

var hueSchema = codec.NewSchema("Hue", codec.Fallthrough,
	codec.Group[Hue]{
		Since: 0,
		Write: func(w codec.Writer, a *Hue) {
			w.WriteInt(a.OriginalHue)
			w.WriteInt(a.Hue)
		},
		Read: func(d *codec.Decoder, a *Hue) {
			a.OriginalHue = d.ReadInt()
			a.Hue = d.ReadInt()
		},
	},
)

func (a *Hue) RecordType() string                  { return "Hue" }
func (a *Hue) EncodeRecord(w codec.Writer) error   { return WriteRecord(w, &a.Base, hueSchema, a) }
func (a *Hue) DecodeRecord(d *codec.Decoder) error { return ReadRecord(d, &a.Base, hueSchema, a) }
func (a *Hue) Capabilities() Capability {
	return HandlesAttach | HandlesDelete | HandlesIdentify
}

func (a *Hue) OnAttach(env *Env) {
	on := a.AttachedTo()
	a.OriginalHue = on.Hue
	on.Hue = a.Hue
}

func (a *Hue) OnDelete(env *Env) {
	if on := a.AttachedTo(); on != nil {
		on.Hue = a.OriginalHue
	}
}

func (a *Hue) OnIdentify(env *Env, from *gamedb.Entity) string {
	if from == nil || from.Access == gamedb.Player {
		return ""
	}
	if a.Expiration > 0 {
		return fmt.Sprintf("Hue %d %s", a.Hue, a.expiresIn())
	}
	return fmt.Sprintf("Hue %d", a.Hue)
}

// Freeze holds a mobile in place while attached.
type Freeze struct {
	Base
}

func NewFreeze() *Freeze { return &Freeze{} }

var freezeSchema = codec.NewSchema("Freeze", codec.Fallthrough, codec.Group[Freeze]{Since: 0})

func (a *Freeze) RecordType() string                  { return "Freeze" }
func (a *Freeze) EncodeRecord(w codec.Writer) error   { return WriteRecord(w, &a.Base, freezeSchema, a) }
func (a *Freeze) DecodeRecord(d *codec.Decoder) error { return ReadRecord(d, &a.Base, freezeSchema, a) }
func (a *Freeze) Capabilities() Capability {
	return HandlesAttach | HandlesDelete | HandlesIdentify
}

func (a *Freeze) OnAttach(env *Env) {
	on := a.AttachedTo()
	if !on.IsMobile() {
		env.Registry.Delete(a)
		return
	}
	on.Frozen = true
}

func (a *Freeze) OnDelete(env *Env) {
	if on := a.AttachedTo(); on.IsMobile() {
		on.Frozen = false
	}
}

func (a *Freeze) OnIdentify(env *Env, from *gamedb.Entity) string {
	if from == nil || from.Access == gamedb.Player {
		return ""
	}
	if a.Expiration > 0 {
		return "Frozen " + a.expiresIn()
	}
	return "Frozen"
}

// Poison gives a mobile poison immunity and a poisoned attack of the same
// strength.
type Poison struct {
	Base
	Level int
}

func NewPoison(level int) *Poison { return &Poison{Level: level} }

var poisonSchema = codec.NewSchema("Poison", codec.Fallthrough,
	codec.Group[Poison]{
		Since: 0,
		Write: func(w codec.Writer, a *Poison) { w.WriteInt(a.Level) },
		Read:  func(d *codec.Decoder, a *Poison) { a.Level = d.ReadInt() },
	},
)

func (a *Poison) RecordType() string                  { return "Poison" }
func (a *Poison) EncodeRecord(w codec.Writer) error   { return WriteRecord(w, &a.Base, poisonSchema, a) }
func (a *Poison) DecodeRecord(d *codec.Decoder) error { return ReadRecord(d, &a.Base, poisonSchema, a) }
func (a *Poison) Capabilities() Capability            { return HandlesAttach | HandlesDelete }

// PoisonLevel maps the stored level onto a poison strength. Out-of-range
// levels clamp to Lesser and Lethal.
func (a *Poison) PoisonLevel() gamedb.PoisonLevel {
	switch {
	case a.Level < 1:
		return gamedb.PoisonLesser
	case a.Level == 1:
		return gamedb.PoisonRegular
	case a.Level == 2:
		return gamedb.PoisonGreater
	case a.Level == 3:
		return gamedb.PoisonDeadly
	default:
		return gamedb.PoisonLethal
	}
}

func (a *Poison) OnAttach(env *Env) {
	on := a.AttachedTo()
	if !on.IsMobile() {
		env.Registry.Delete(a)
		return
	}
	on.PoisonImmune = a.PoisonLevel()
	on.HitPoison = a.PoisonLevel()
}

func (a *Poison) OnDelete(env *Env) {
	if on := a.AttachedTo(); on.IsMobile() {
		on.PoisonImmune = gamedb.PoisonNone
		on.HitPoison = gamedb.PoisonNone
	}
}

// FindAttachment is a marker carried by players. It stores nothing.
type FindAttachment struct {
	Base
}

func NewFindAttachment() *FindAttachment { return &FindAttachment{} }

func (a *FindAttachment) RecordType() string                { return "FindAttachment" }
func (a *FindAttachment) EncodeRecord(codec.Writer) error   { return nil }
func (a *FindAttachment) DecodeRecord(*codec.Decoder) error { return nil }
func (a *FindAttachment) Capabilities() Capability          { return HandlesAttach }

func (a *FindAttachment) OnAttach(env *Env) {
	if on := a.AttachedTo(); !(on.IsMobile() && on.Player) {
		env.Registry.Delete(a)
	}
}

// DefaultRestrictMessage is told to a mobile refused by RestrictEquip.
const DefaultRestrictMessage = "You cannot equip that"

// RestrictEquip refuses equipping its item to mobiles that fail the test.
type RestrictEquip struct {
	Base
	Test         string
	PropertyList string
	FailMsg      string
}

func NewRestrictEquip(test string) *RestrictEquip { return &RestrictEquip{Test: test} }

var restrictEquipSchema = codec.NewSchema("RestrictEquip", codec.Fallthrough,
	codec.Group[RestrictEquip]{
		Since: 0,
		Write: func(w codec.Writer, a *RestrictEquip) { w.WriteString(a.Test) },
		Read:  func(d *codec.Decoder, a *RestrictEquip) { a.Test = d.ReadString() },
	},
	codec.Group[RestrictEquip]{
		Since: 1,
		Write: func(w codec.Writer, a *RestrictEquip) {
			w.WriteString(a.PropertyList)
			w.WriteString(a.FailMsg)
		},
		Read: func(d *codec.Decoder, a *RestrictEquip) {
			a.PropertyList = d.ReadString()
			a.FailMsg = d.ReadString()
		},
	},
)

func (a *RestrictEquip) RecordType() string { return "RestrictEquip" }
func (a *RestrictEquip) EncodeRecord(w codec.Writer) error {
	return WriteRecord(w, &a.Base, restrictEquipSchema, a)
}
func (a *RestrictEquip) DecodeRecord(d *codec.Decoder) error {
	return ReadRecord(d, &a.Base, restrictEquipSchema, a)
}
func (a *RestrictEquip) Capabilities() Capability { return HandlesEquip | HandlesIdentify }

func (a *RestrictEquip) CanEquip(env *Env, from *gamedb.Entity) bool {
	if from == nil {
		return false
	}
	if a.Test == "" || script.EvaluateCondition(from, a.Test) {
		return true
	}
	msg := a.FailMsg
	if msg == "" {
		msg = DefaultRestrictMessage
	}
	env.Tell(from, msg)
	return false
}

func (a *RestrictEquip) OnIdentify(env *Env, from *gamedb.Entity) string {
	if from == nil || from.Access < gamedb.Counselor {
		return ""
	}
	if a.Expiration > 0 {
		return fmt.Sprintf("%s: RestrictEquip '%s' %s", a.Name, a.Test, a.expiresIn())
	}
	return fmt.Sprintf("%s: RestrictEquip '%s'", a.Name, a.Test)
}
