package attach

import (
	"fmt"
	"strings"

	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

// Capability flags which world events an attachment wants to see. Each flag
// has a matching handler interface; the registry only calls handlers whose
// flag is set.
type Capability uint32

const (
	HandlesAttach Capability = 1 << iota
	HandlesDelete
	HandlesSpeech
	HandlesMovement
	HandlesKill
	HandlesKilled
	HandlesUse
	HandlesUser
	HandlesEquip
	HandlesWeaponHit
	HandlesIdentify
)

var capNames = []string{
	"attach", "delete", "speech", "movement", "kill", "killed",
	"use", "user", "equip", "weaponhit", "identify",
}

// Has reports whether every flag in f is set.
func (c Capability) Has(f Capability) bool { return c&f == f }

func (c Capability) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	for i, n := range capNames {
		if c&(1<<i) != 0 {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, "|")
}

// SpeechEvent is something said within hearing of an attachment's entity.
type SpeechEvent struct {
	Speaker *gamedb.Entity
	Text    string
}

// MoveEvent is a mobile moving near an attachment's entity.
type MoveEvent struct {
	Mover *gamedb.Entity
	From  gamedb.Point3D
}

// KillEvent describes a death. Corpse may be nil.
type KillEvent struct {
	Killer *gamedb.Entity
	Victim *gamedb.Entity
	Corpse *gamedb.Entity
}

// HitEvent describes a landed weapon hit.
type HitEvent struct {
	Attacker *gamedb.Entity
	Defender *gamedb.Entity
	Weapon   *gamedb.Entity
	Damage   int
}

type AttachHandler interface {
	OnAttach(env *Env)
}

type DeleteHandler interface {
	OnDelete(env *Env)
}

type SpeechHandler interface {
	OnSpeech(env *Env, ev SpeechEvent)
}

type MovementHandler interface {
	OnMovement(env *Env, ev MoveEvent)
}

// KillHandler runs for attachments on the killer.
type KillHandler interface {
	OnKill(env *Env, ev KillEvent)
}

// KilledHandler runs for attachments on the victim.
type KilledHandler interface {
	OnKilled(env *Env, ev KillEvent)
}

// UseHandler runs for attachments on the entity being used. It reports
// whether the default use of the entity should be blocked.
type UseHandler interface {
	OnUse(env *Env, from *gamedb.Entity) bool
}

// UserHandler runs for attachments on the mobile doing the using.
type UserHandler interface {
	OnUser(env *Env, target *gamedb.Entity) bool
}

// EquipHandler can veto equipping the entity it is attached to.
type EquipHandler interface {
	CanEquip(env *Env, from *gamedb.Entity) bool
}

// WeaponHitHandler returns extra damage dealt to the defender.
type WeaponHitHandler interface {
	OnWeaponHit(env *Env, ev HitEvent) int
}

// IdentifyHandler returns a description line for from, or "" to stay
// hidden.
type IdentifyHandler interface {
	OnIdentify(env *Env, from *gamedb.Entity) string
}

// LoadHandler is called by Registry.Load once a decoded attachment is back
// on its entity. It needs no capability flag.
type LoadHandler interface {
	OnLoad(env *Env)
}

// MissingHandlerError is returned when an attachment claims a capability
// without implementing its handler.
type MissingHandlerError struct {
	Type       string
	Capability Capability
}

func (e *MissingHandlerError) Error() string {
	return fmt.Sprintf("attach: %s claims %s but has no handler", e.Type, e.Capability)
}

// validate checks that every claimed capability has a handler.
func validate(a Attachment) error {
	caps := a.Capabilities()
	check := func(f Capability, ok bool) error {
		if caps&f != 0 && !ok {
			return &MissingHandlerError{Type: a.RecordType(), Capability: f}
		}
		return nil
	}
	var ok bool
	_, ok = a.(AttachHandler)
	if err := check(HandlesAttach, ok); err != nil {
		return err
	}
	_, ok = a.(DeleteHandler)
	if err := check(HandlesDelete, ok); err != nil {
		return err
	}
	_, ok = a.(SpeechHandler)
	if err := check(HandlesSpeech, ok); err != nil {
		return err
	}
	_, ok = a.(MovementHandler)
	if err := check(HandlesMovement, ok); err != nil {
		return err
	}
	_, ok = a.(KillHandler)
	if err := check(HandlesKill, ok); err != nil {
		return err
	}
	_, ok = a.(KilledHandler)
	if err := check(HandlesKilled, ok); err != nil {
		return err
	}
	_, ok = a.(UseHandler)
	if err := check(HandlesUse, ok); err != nil {
		return err
	}
	_, ok = a.(UserHandler)
	if err := check(HandlesUser, ok); err != nil {
		return err
	}
	_, ok = a.(EquipHandler)
	if err := check(HandlesEquip, ok); err != nil {
		return err
	}
	_, ok = a.(WeaponHitHandler)
	if err := check(HandlesWeaponHit, ok); err != nil {
		return err
	}
	_, ok = a.(IdentifyHandler)
	return check(HandlesIdentify, ok)
}
