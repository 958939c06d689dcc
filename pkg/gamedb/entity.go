package gamedb

import (
	"time"
)

// Behavior is type-specific state carried by an entity beyond its base
// fields (a lever, a quest token, a talking NPC). Behaviors that persist
// also implement codec.Record.
type Behavior interface {
	RecordType() string
}

// SkillMod is a temporary or equipment-bound change to a skill value.
type SkillMod struct {
	Skill   string
	Value   float64
	Expires time.Time // zero = no time limit
	Item    DBRef     // Nothing = not bound to an equipped item
}

// Entity is an item or mobile in the world.
type Entity struct {
	Serial   DBRef
	Kind     Kind
	Name     string
	TypeName string

	Hue    int
	Karma  int
	Fame   int
	Hits   int
	Frozen bool
	Player bool
	Access AccessLevel

	Location Point3D
	Map      string
	Parent   DBRef // container or carrying mobile, Nothing when on the ground
	Layer    int   // 0 when not equipped
	Movable  bool

	PoisonImmune PoisonLevel
	HitPoison    PoisonLevel

	Props     map[string]string
	Skills    map[string]float64
	SkillMods []SkillMod

	Behavior Behavior

	// Messages collects text told to this entity, oldest first.
	Messages []string

	Deleted bool
}

// NewEntity returns an entity of the given kind with no serial assigned.
func NewEntity(kind Kind, name string) *Entity {
	return &Entity{
		Serial:  Nothing,
		Kind:    kind,
		Name:    name,
		Parent:  Nothing,
		Movable: kind == KindItem,
		Props:   make(map[string]string),
		Skills:  make(map[string]float64),
	}
}

// IsMobile reports whether e is a mobile.
func (e *Entity) IsMobile() bool { return e != nil && e.Kind == KindMobile }

// IsItem reports whether e is an item.
func (e *Entity) IsItem() bool { return e != nil && e.Kind == KindItem }

// IsDeleted reports whether e has been removed from the world. A nil entity
// counts as deleted.
func (e *Entity) IsDeleted() bool { return e == nil || e.Deleted }

// Equipped reports whether an item is worn or wielded.
func (e *Entity) Equipped() bool { return e.IsItem() && e.Layer != 0 && e.Parent != Nothing }

// Alive reports whether a mobile is present and has hit points left.
func (e *Entity) Alive() bool { return !e.IsDeleted() && (e.Kind != KindMobile || e.Hits > 0) }

// LastMessage returns the most recent message told to e.
func (e *Entity) LastMessage() string {
	if len(e.Messages) == 0 {
		return ""
	}
	return e.Messages[len(e.Messages)-1]
}

// AddSkillMod attaches a skill modifier.
func (e *Entity) AddSkillMod(m SkillMod) {
	e.SkillMods = append(e.SkillMods, m)
}

// SkillValue returns the base skill plus every modifier still active at now.
// Equipment-bound modifiers are counted only while the item check passes.
func (e *Entity) SkillValue(skill string, now time.Time, equipped func(DBRef) bool) float64 {
	v := e.Skills[skill]
	for _, m := range e.SkillMods {
		if m.Skill != skill {
			continue
		}
		if !m.Expires.IsZero() && !now.Before(m.Expires) {
			continue
		}
		if m.Item != Nothing && (equipped == nil || !equipped(m.Item)) {
			continue
		}
		v += m.Value
	}
	return v
}

// PruneSkillMods drops modifiers that have expired at now.
func (e *Entity) PruneSkillMods(now time.Time) int {
	kept := e.SkillMods[:0]
	dropped := 0
	for _, m := range e.SkillMods {
		if !m.Expires.IsZero() && !now.Before(m.Expires) {
			dropped++
			continue
		}
		kept = append(kept, m)
	}
	e.SkillMods = kept
	return dropped
}
