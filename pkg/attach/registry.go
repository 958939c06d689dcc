package attach

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/crystal-mush/xmlattach/pkg/gamedb"
	"github.com/crystal-mush/xmlattach/pkg/script"
	"github.com/crystal-mush/xmlattach/pkg/timer"
)

// ErrNotAllowed is returned when an attachment cannot be placed: the entity
// is gone, or the attachment is already attached or deleted.
var ErrNotAllowed = errors.New("attach: not allowed")

// HearingRange is how far speech and movement carry to attachments.
const HearingRange = 12

// Registry tracks live attachments by serial and by the entity they are on.
// A Host creates one per world and calls Reset on unload.
type Registry struct {
	env Env

	// IdentifyAccess is the level from which Identify also lists every
	// attachment by type and name.
	IdentifyAccess gamedb.AccessLevel

	// HueExpiration is the lifetime given to a Hue from NewHue that was
	// attached without an Expiration.
	HueExpiration time.Duration

	mu        sync.RWMutex
	next      int
	all       map[int]Attachment
	byEntity  map[gamedb.DBRef][]Attachment
	targets   map[gamedb.DBRef]func(*gamedb.Entity)
	observers []func(a Attachment, attached bool)
}

// NewRegistry returns an empty registry bound to world and timers. If engine
// is non-nil its DELETE directive is routed through SafeDeleteEntity.
func NewRegistry(world *gamedb.World, timers *timer.Scheduler, engine *script.Engine) *Registry {
	r := &Registry{
		IdentifyAccess: gamedb.GameMaster,
		HueExpiration:  DefaultHueExpiration,
		all:            make(map[int]Attachment),
		byEntity:       make(map[gamedb.DBRef][]Attachment),
		targets:        make(map[gamedb.DBRef]func(*gamedb.Entity)),
	}
	r.env = Env{World: world, Timers: timers, Script: engine, Registry: r}
	if engine != nil {
		engine.SetDeleter(r.SafeDeleteEntity)
	}
	return r
}

// Env returns the environment handed to handlers.
func (r *Registry) Env() *Env { return &r.env }

// Observe registers fn to be called whenever an attachment is added or
// removed.
func (r *Registry) Observe(fn func(a Attachment, attached bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

func (r *Registry) notify(a Attachment, attached bool) {
	r.mu.RLock()
	obs := r.observers
	r.mu.RUnlock()
	for _, fn := range obs {
		fn(a, attached)
	}
}

func (r *Registry) index(a Attachment, e *gamedb.Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := a.Core()
	r.next++
	b.serial = r.next
	b.on = e
	b.clock = r.env.Now
	r.all[b.serial] = a
	r.byEntity[e.Serial] = append(r.byEntity[e.Serial], a)
}

func (r *Registry) unindex(a Attachment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := a.Core()
	delete(r.all, b.serial)
	if b.on == nil {
		return
	}
	list := r.byEntity[b.on.Serial]
	for i, x := range list {
		if x == a {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(r.byEntity, b.on.Serial)
	} else {
		r.byEntity[b.on.Serial] = list
	}
}

func (r *Registry) startTimer(a Attachment, d time.Duration) {
	b := a.Core()
	if d < 0 {
		d = 0
	}
	b.timer = r.env.Timers.ScheduleOnce(d, func() { r.Delete(a) })
	b.remaining = 0
}

// AttachTo places a on e, starts its expiration timer and then calls its
// OnAttach handler.
func (r *Registry) AttachTo(e *gamedb.Entity, a Attachment) error {
	if a == nil {
		return fmt.Errorf("%w: nil attachment", ErrNotAllowed)
	}
	b := a.Core()
	if e.IsDeleted() {
		return fmt.Errorf("%w: %s on a deleted entity", ErrNotAllowed, a.RecordType())
	}
	if b.deleted || b.on != nil {
		return fmt.Errorf("%w: %s is already attached or deleted", ErrNotAllowed, a.RecordType())
	}
	if err := validate(a); err != nil {
		return err
	}
	if b.CreationTime.IsZero() {
		b.CreationTime = r.env.Now()
	}
	if h, ok := a.(*Hue); ok && h.stockLife && b.Expiration == 0 {
		b.Expiration = r.HueExpiration
	}
	r.index(a, e)
	if b.Expiration > 0 {
		r.startTimer(a, b.Expiration)
	}
	r.notify(a, true)
	if a.Capabilities().Has(HandlesAttach) {
		r.call(a, "attach", func() { a.(AttachHandler).OnAttach(&r.env) })
	}
	return nil
}

// Load re-indexes an attachment decoded from storage. The expiration timer
// resumes from the stored remaining time; OnAttach is not called.
func (r *Registry) Load(a Attachment, e *gamedb.Entity) error {
	if e.IsDeleted() {
		return fmt.Errorf("%w: %s owner is missing", ErrNotAllowed, a.RecordType())
	}
	if err := validate(a); err != nil {
		return err
	}
	b := a.Core()
	r.index(a, e)
	if b.Expiration > 0 {
		r.startTimer(a, b.remaining)
	}
	if l, ok := a.(LoadHandler); ok {
		r.call(a, "load", func() { l.OnLoad(&r.env) })
	}
	r.notify(a, true)
	return nil
}

// Delete removes a at once. Handlers that delete the attachment they are
// running in should use DeferDelete.
func (r *Registry) Delete(a Attachment) {
	b := a.Core()
	if b.deleted {
		return
	}
	b.deleted = true
	b.timer.Stop()
	b.timer = nil
	if a.Capabilities().Has(HandlesDelete) {
		r.call(a, "delete", func() { a.(DeleteHandler).OnDelete(&r.env) })
	}
	r.unindex(a)
	r.notify(a, false)
}

// DeferDelete removes a on the next scheduler tick.
func (r *Registry) DeferDelete(a Attachment) *timer.Handle {
	return r.env.Timers.DelayCall(func() { r.Delete(a) })
}

// DeleteEntity removes e and its contents from the world along with every
// attachment left without an entity.
func (r *Registry) DeleteEntity(e *gamedb.Entity) {
	if e.IsDeleted() {
		return
	}
	if r.env.World != nil {
		r.env.World.Delete(e)
	} else {
		e.Deleted = true
	}
	r.CleanUp()
}

// SafeDeleteEntity schedules DeleteEntity for the next tick.
func (r *Registry) SafeDeleteEntity(e *gamedb.Entity) {
	r.env.Timers.DelayCall(func() { r.DeleteEntity(e) })
}

// CleanUp deletes attachments whose entity no longer exists and returns how
// many were removed.
func (r *Registry) CleanUp() int {
	n := 0
	for _, a := range r.snapshot() {
		on := a.Core().on
		gone := on.IsDeleted()
		if !gone && r.env.World != nil {
			_, ok := r.env.World.Lookup(on.Serial)
			gone = !ok
		}
		if gone {
			r.Delete(a)
			n++
		}
	}
	return n
}

// Reset drops every attachment and pending target without calling
// handlers. It is used when a world is unloaded.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.all {
		b := a.Core()
		b.timer.Stop()
		b.timer = nil
		b.deleted = true
	}
	r.next = 0
	r.all = make(map[int]Attachment)
	r.byEntity = make(map[gamedb.DBRef][]Attachment)
	r.targets = make(map[gamedb.DBRef]func(*gamedb.Entity))
}

// Count returns the number of live attachments.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.all)
}

// snapshot returns every live attachment in serial order.
func (r *Registry) snapshot() []Attachment {
	r.mu.RLock()
	out := make([]Attachment, 0, len(r.all))
	for _, a := range r.all {
		out = append(out, a)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Core().serial < out[j].Core().serial })
	return out
}

// Each calls fn for every live attachment in serial order.
func (r *Registry) Each(fn func(a Attachment)) {
	for _, a := range r.snapshot() {
		fn(a)
	}
}

// On returns the attachments on e in the order they were attached.
func (r *Registry) On(e *gamedb.Entity) []Attachment {
	if e == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.byEntity[e.Serial]
	out := make([]Attachment, len(list))
	copy(out, list)
	return out
}

// Find returns the first attachment on e matching typeName and name. Empty
// strings match anything; both are case-insensitive.
func (r *Registry) Find(e *gamedb.Entity, typeName, name string) Attachment {
	for _, a := range r.On(e) {
		if typeName != "" && !strings.EqualFold(a.RecordType(), typeName) {
			continue
		}
		if name != "" && !strings.EqualFold(a.Core().Name, name) {
			continue
		}
		return a
	}
	return nil
}

// FindAll returns every attachment on e of the given type.
func (r *Registry) FindAll(e *gamedb.Entity, typeName string) []Attachment {
	var out []Attachment
	for _, a := range r.On(e) {
		if typeName == "" || strings.EqualFold(a.RecordType(), typeName) {
			out = append(out, a)
		}
	}
	return out
}

// call runs a handler and logs a panic instead of propagating it.
func (r *Registry) call(a Attachment, what string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("attach: %s %s handler panic: %v", a.RecordType(), what, p)
		}
	}()
	fn()
}

func withCap(list []Attachment, f Capability) []Attachment {
	out := list[:0:0]
	for _, a := range list {
		if a.Capabilities().Has(f) && !a.Core().deleted {
			out = append(out, a)
		}
	}
	return out
}

func (r *Registry) near(f Capability, who *gamedb.Entity) []Attachment {
	var out []Attachment
	for _, a := range withCap(r.snapshot(), f) {
		on := a.Core().on
		if on == who || r.env.World == nil || r.env.World.InRange(on, who, HearingRange) {
			out = append(out, a)
		}
	}
	return out
}

// DispatchSpeech delivers speech to attachments within hearing of the
// speaker, including those on the speaker. It returns how many handlers ran.
func (r *Registry) DispatchSpeech(ev SpeechEvent) int {
	if ev.Speaker == nil {
		return 0
	}
	list := r.near(HandlesSpeech, ev.Speaker)
	for _, a := range list {
		r.call(a, "speech", func() { a.(SpeechHandler).OnSpeech(&r.env, ev) })
	}
	return len(list)
}

// DispatchMovement delivers a move to attachments near the mover, except
// those on the mover itself.
func (r *Registry) DispatchMovement(ev MoveEvent) int {
	if ev.Mover == nil {
		return 0
	}
	n := 0
	for _, a := range r.near(HandlesMovement, ev.Mover) {
		if a.Core().on == ev.Mover {
			continue
		}
		r.call(a, "movement", func() { a.(MovementHandler).OnMovement(&r.env, ev) })
		n++
	}
	return n
}

// DispatchKill notifies attachments on the killer.
func (r *Registry) DispatchKill(ev KillEvent) int {
	list := withCap(r.On(ev.Killer), HandlesKill)
	for _, a := range list {
		r.call(a, "kill", func() { a.(KillHandler).OnKill(&r.env, ev) })
	}
	return len(list)
}

// DispatchKilled notifies attachments on the victim.
func (r *Registry) DispatchKilled(ev KillEvent) int {
	list := withCap(r.On(ev.Victim), HandlesKilled)
	for _, a := range list {
		r.call(a, "killed", func() { a.(KilledHandler).OnKilled(&r.env, ev) })
	}
	return len(list)
}

// DispatchUse runs use handlers on target and user handlers on from. It
// reports whether any of them blocks the default use of target.
func (r *Registry) DispatchUse(from, target *gamedb.Entity) bool {
	blocked := false
	for _, a := range withCap(r.On(target), HandlesUse) {
		r.call(a, "use", func() {
			if a.(UseHandler).OnUse(&r.env, from) {
				blocked = true
			}
		})
	}
	for _, a := range withCap(r.On(from), HandlesUser) {
		r.call(a, "user", func() {
			if a.(UserHandler).OnUser(&r.env, target) {
				blocked = true
			}
		})
	}
	return blocked
}

// CanEquip reports whether every attachment on item allows from to equip it.
func (r *Registry) CanEquip(from, item *gamedb.Entity) bool {
	for _, a := range withCap(r.On(item), HandlesEquip) {
		ok := true
		r.call(a, "equip", func() { ok = a.(EquipHandler).CanEquip(&r.env, from) })
		if !ok {
			return false
		}
	}
	return true
}

// DispatchWeaponHit runs weapon-hit handlers on the weapon and on the
// attacker and returns the total extra damage.
func (r *Registry) DispatchWeaponHit(ev HitEvent) int {
	list := withCap(r.On(ev.Weapon), HandlesWeaponHit)
	if ev.Attacker != ev.Weapon {
		list = append(list, withCap(r.On(ev.Attacker), HandlesWeaponHit)...)
	}
	extra := 0
	for _, a := range list {
		r.call(a, "weaponhit", func() { extra += a.(WeaponHitHandler).OnWeaponHit(&r.env, ev) })
	}
	return extra
}

// Identify returns what from learns by examining target. Staff at or above
// IdentifyAccess also get one line per attachment.
func (r *Registry) Identify(from, target *gamedb.Entity) []string {
	var lines []string
	staff := from != nil && from.Access >= r.IdentifyAccess
	for _, a := range r.On(target) {
		b := a.Core()
		if b.deleted {
			continue
		}
		if staff {
			lines = append(lines, fmt.Sprintf("[%d] %s %q", b.serial, a.RecordType(), b.Name))
		}
		if !a.Capabilities().Has(HandlesIdentify) {
			continue
		}
		var s string
		r.call(a, "identify", func() { s = a.(IdentifyHandler).OnIdentify(&r.env, from) })
		if s != "" {
			lines = append(lines, s)
		}
	}
	return lines
}

// BeginTarget arms a target request for from. The next CompleteTarget for
// from delivers the chosen entity to fn. A new request replaces an old one.
func (r *Registry) BeginTarget(from *gamedb.Entity, fn func(targeted *gamedb.Entity)) {
	if from == nil || fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[from.Serial] = fn
}

// CompleteTarget delivers targeted to from's pending request. It reports
// false if there was none.
func (r *Registry) CompleteTarget(from, targeted *gamedb.Entity) bool {
	if from == nil {
		return false
	}
	r.mu.Lock()
	fn, ok := r.targets[from.Serial]
	delete(r.targets, from.Serial)
	r.mu.Unlock()
	if !ok {
		return false
	}
	fn(targeted)
	return true
}

// HasTarget reports whether from has a pending target request.
func (r *Registry) HasTarget(from *gamedb.Entity) bool {
	if from == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.targets[from.Serial]
	return ok
}
