package attach

import (
	"fmt"
	"time"

	"github.com/crystal-mush/xmlattach/pkg/codec"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

// Skill grants a skill bonus when its trigger word is spoken. With no word
// it applies as soon as it lands on a mobile.
type Skill struct {
	Base
	Word                  string
	SkillName             string
	Value                 int
	Duration              time.Duration
	RequireIdentification bool
	Identified            bool
}

// NewSkill returns a Skill with the stock bonus of 10 for 30 minutes.
func NewSkill(word, skill string) *Skill {
	return &Skill{Word: word, SkillName: skill, Value: 10, Duration: 30 * time.Minute}
}

var skillSchema = codec.NewSchema("Skill", codec.Fallthrough,
	codec.Group[Skill]{
		Since: 0,
		Write: func(w codec.Writer, a *Skill) {
			w.WriteString(a.Word)
			w.WriteString(a.SkillName)
			w.WriteInt(a.Value)
			w.WriteDuration(a.Duration)
			w.WriteBool(a.RequireIdentification)
			w.WriteBool(a.Identified)
		},
		Read: func(d *codec.Decoder, a *Skill) {
			a.Word = d.ReadString()
			a.SkillName = d.ReadString()
			a.Value = d.ReadInt()
			a.Duration = d.ReadDuration()
			a.RequireIdentification = d.ReadBool()
			a.Identified = d.ReadBool()
		},
	},
)

func (a *Skill) RecordType() string                  { return "Skill" }
func (a *Skill) EncodeRecord(w codec.Writer) error   { return WriteRecord(w, &a.Base, skillSchema, a) }
func (a *Skill) DecodeRecord(d *codec.Decoder) error { return ReadRecord(d, &a.Base, skillSchema, a) }
func (a *Skill) Capabilities() Capability {
	return HandlesAttach | HandlesSpeech | HandlesIdentify
}

func (a *Skill) OnAttach(env *Env) {
	if a.Word != "" {
		return
	}
	on := a.AttachedTo()
	if on.IsMobile() {
		a.trigger(env, on)
		return
	}
	env.Registry.Delete(a)
}

func (a *Skill) OnSpeech(env *Env, ev SpeechEvent) {
	m := ev.Speaker
	if m == nil || m.Access > gamedb.Player || a.Word == "" {
		return
	}
	on := a.AttachedTo()
	if on.IsMobile() && on != m {
		return
	}
	if on.IsItem() && env.World != nil && env.World.RootParent(on) != m {
		return
	}
	if ev.Text == a.Word {
		a.trigger(env, m)
	}
}

// trigger applies the mod to m and removes the attachment.
func (a *Skill) trigger(env *Env, m *gamedb.Entity) {
	if m == nil || (a.RequireIdentification && !a.Identified) {
		return
	}
	on := a.AttachedTo()
	mod := gamedb.SkillMod{Skill: a.SkillName, Value: float64(a.Value), Item: gamedb.Nothing}
	if on.IsItem() && on.Equipped() {
		mod.Item = on.Serial
	} else {
		mod.Expires = env.Now().Add(a.Duration)
	}
	m.AddSkillMod(mod)
	env.Registry.DeferDelete(a)
}

func (a *Skill) OnIdentify(env *Env, from *gamedb.Entity) string {
	if a.AttachedTo().IsItem() {
		if from != nil && from.Access == gamedb.Player {
			a.Identified = true
		}
		return fmt.Sprintf("activated by %s : skill %s mod of %d when equipped", a.Word, a.SkillName, a.Value)
	}
	return fmt.Sprintf("activated by %s : skill %s mod of %d lasting %g mins", a.Word, a.SkillName, a.Value, a.Duration.Minutes())
}

// DeathAction runs an action list at the corpse when the mobile carrying it
// dies and its condition holds.
type DeathAction struct {
	Base
	Condition string
	Action    string
}

func NewDeathAction(action string) *DeathAction { return &DeathAction{Action: action} }

var deathActionSchema = codec.NewSchema("DeathAction", codec.Fallthrough,
	codec.Group[DeathAction]{
		Since: 0,
		Write: func(w codec.Writer, a *DeathAction) { w.WriteString(a.Action) },
		Read:  func(d *codec.Decoder, a *DeathAction) { a.Action = d.ReadString() },
	},
	codec.Group[DeathAction]{
		Since: 1,
		Write: func(w codec.Writer, a *DeathAction) { w.WriteString(a.Condition) },
		Read:  func(d *codec.Decoder, a *DeathAction) { a.Condition = d.ReadString() },
	},
)

func (a *DeathAction) RecordType() string { return "DeathAction" }
func (a *DeathAction) EncodeRecord(w codec.Writer) error {
	return WriteRecord(w, &a.Base, deathActionSchema, a)
}
func (a *DeathAction) DecodeRecord(d *codec.Decoder) error {
	return ReadRecord(d, &a.Base, deathActionSchema, a)
}
func (a *DeathAction) Capabilities() Capability { return HandlesAttach | HandlesKilled }

func (a *DeathAction) OnAttach(env *Env) {
	if a.AttachedTo().IsItem() {
		env.Registry.Delete(a)
	}
}

func (a *DeathAction) OnKilled(env *Env, ev KillEvent) {
	if ev.Victim == nil {
		return
	}
	if a.Condition != "" && !env.Check(ev.Victim, a.Condition) {
		return
	}
	at := ev.Corpse
	if at == nil {
		at = ev.Victim
	}
	env.Run(at, a.Action)
}
