// Package server hosts one attachment world: it owns the live state, drives
// the tick loop and routes world events into the attachment registry.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"time"

	"github.com/crystal-mush/xmlattach/pkg/archive"
	"github.com/crystal-mush/xmlattach/pkg/attach"
	"github.com/crystal-mush/xmlattach/pkg/boltstore"
	"github.com/crystal-mush/xmlattach/pkg/codec"
	"github.com/crystal-mush/xmlattach/pkg/events"
	"github.com/crystal-mush/xmlattach/pkg/flatfile"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
	"github.com/crystal-mush/xmlattach/pkg/items"
	"github.com/crystal-mush/xmlattach/pkg/npc"
	"github.com/crystal-mush/xmlattach/pkg/quest"
	"github.com/crystal-mush/xmlattach/pkg/script"
	"github.com/crystal-mush/xmlattach/pkg/timer"
	"github.com/crystal-mush/xmlattach/pkg/validate"
)

var (
	// ErrNotOpen is returned by operations that need an open bolt store.
	ErrNotOpen = errors.New("server: world not open")
	// ErrNoLeaderDB is returned by ExportLeaders when sql_database is unset.
	ErrNoLeaderDB = errors.New("server: no leader database configured")
)

// Host owns one world and everything that acts on it. All world mutation
// happens on the goroutine running Run, or on the caller in tests.
type Host struct {
	World       *gamedb.World
	Timers      *timer.Scheduler
	Script      *script.Engine
	Registry    *attach.Registry
	Bus         *events.Bus
	Leaders     *quest.Leaders
	Behaviors   *codec.Registry
	Attachments *codec.Registry
	Metrics     *Metrics

	Store    *boltstore.Store // nil until Open
	LeaderDB *LeaderDB        // nil unless sql_database is set

	conf      atomic.Pointer[HostConf]
	stats     atomic.Pointer[worldSnapshot]
	logEvents atomic.Bool
	started   time.Time
}

// Conf returns the running configuration. It is safe to call from any
// goroutine; the returned value must not be modified.
func (h *Host) Conf() *HostConf { return h.conf.Load() }

// NewHost builds a host with an empty world from conf. A nil conf uses
// DefaultHostConf.
func NewHost(conf *HostConf) *Host {
	return newHost(conf, time.Now)
}

func newHost(conf *HostConf, clock func() time.Time) *Host {
	if conf == nil {
		conf = DefaultHostConf()
	}
	h := &Host{
		World:       gamedb.NewWorld(),
		Timers:      timer.New(clock),
		Bus:         events.NewBus(),
		Behaviors:   codec.NewRegistry(),
		Attachments: codec.NewRegistry(),
		started:     clock(),
	}
	h.conf.Store(conf)
	h.Script = script.NewEngine(h.World)
	h.Registry = attach.NewRegistry(h.World, h.Timers, h.Script)
	h.Leaders = quest.NewLeaders(h.Timers.Now)
	h.Registry.Env().Rankings = h.Leaders
	h.Metrics = NewMetrics(h, h.started)

	attach.RegisterBuiltins(h.Attachments)
	quest.RegisterAttachments(h.Attachments)
	npc.RegisterAttachments(h.Attachments)
	items.RegisterBehaviors(h.Behaviors)
	quest.RegisterBehaviors(h.Behaviors)
	npc.RegisterBehaviors(h.Behaviors)

	items.DefineCatalog(h.World)
	quest.DefineCatalog(h.World, h.Timers.Now)
	npc.DefineCatalog(h.World)

	h.World.OnTell(func(to *gamedb.Entity, msg string) {
		ev := events.New(events.EvMessage, msg)
		h.Bus.EmitTo(to.Serial, ev)
	})
	h.Registry.Observe(func(a attach.Attachment, attached bool) {
		t := events.EvDetach
		if attached {
			t = events.EvAttach
		}
		ev := events.New(t, a.RecordType())
		ev.Actor = refOf(a.Core().AttachedTo())
		ev.Data = map[string]any{"name": a.Core().Name}
		h.Bus.Emit(ev)
	})
	h.Script.OnFailure(func(string, error) { h.Metrics.actionFailed() })

	h.Bus.SubscribeGlobal(h.Metrics)
	h.Bus.SubscribeGlobal(eventLog{on: &h.logEvents})

	h.applySettings()
	h.refreshStats()
	return h
}

// applySettings pushes the runtime-tunable parts of Conf into the world.
func (h *Host) applySettings() {
	conf := h.Conf()
	h.Registry.IdentifyAccess = conf.IdentifyLevel()
	h.Registry.HueExpiration = conf.HueExpiration()
	h.Leaders.SetBoardSize(conf.LeadersTop)
	h.logEvents.Store(conf.LogEvents)
}

// ApplyConf replaces the running configuration. Paths take effect on the
// next Open; everything else applies immediately.
func (h *Host) ApplyConf(conf *HostConf) {
	if conf == nil {
		return
	}
	if prev := h.Conf(); conf.BoltPath != prev.BoltPath || conf.SQLDatabase != prev.SQLDatabase {
		log.Printf("server: storage paths changed, restart to apply")
	}
	h.conf.Store(conf)
	h.applySettings()
	h.refreshStats()
	log.Printf("server: configuration reloaded from %s", conf.ConfPath)
}

func refOf(e *gamedb.Entity) gamedb.DBRef {
	if e == nil {
		return gamedb.Nothing
	}
	return e.Serial
}

func (h *Host) event(t events.EventType, source, actor *gamedb.Entity, text string) events.Event {
	ev := events.New(t, text)
	ev.Source = refOf(source)
	ev.Actor = refOf(actor)
	return ev
}

// --- World-event entry points ---

// Speech delivers text spoken by from to attachments and listening
// behaviors in hearing range. It returns how many handlers ran.
func (h *Host) Speech(from *gamedb.Entity, text string) int {
	if from == nil {
		return 0
	}
	ev := attach.SpeechEvent{Speaker: from, Text: text}
	n := h.Registry.DispatchSpeech(ev)
	n += h.Registry.HearSpeech(ev)
	h.Bus.EmitNear(h.World, from, attach.HearingRange, gamedb.Nothing, h.event(events.EvSpeech, from, nil, text))
	return n
}

// Move tells attachments near who that it moved from from.
func (h *Host) Move(who *gamedb.Entity, from gamedb.Point3D) int {
	if who == nil {
		return 0
	}
	n := h.Registry.DispatchMovement(attach.MoveEvent{Mover: who, From: from})
	ev := h.event(events.EvMove, who, nil, "")
	ev.Data = map[string]any{"from": from, "to": who.Location}
	h.Bus.EmitNear(h.World, who, attach.HearingRange, who.Serial, ev)
	return n
}

// Kill runs the kill handlers on killer and the death handlers on victim.
// Killer and corpse may be nil.
func (h *Host) Kill(killer, victim, corpse *gamedb.Entity) {
	if victim == nil {
		return
	}
	ev := attach.KillEvent{Killer: killer, Victim: victim, Corpse: corpse}
	if killer != nil {
		h.Registry.DispatchKill(ev)
	}
	h.Registry.DispatchKilled(ev)
	h.Bus.Emit(h.event(events.EvKill, killer, victim, victim.Name))
}

// Use double-clicks target on behalf of from. It reports whether the
// default use was blocked.
func (h *Host) Use(from, target *gamedb.Entity) bool {
	blocked := h.Registry.UseEntity(from, target)
	ev := h.event(events.EvUse, from, target, "")
	ev.Data = map[string]any{"blocked": blocked}
	h.Bus.Emit(ev)
	return blocked
}

// Equip reports whether from may equip item.
func (h *Host) Equip(from, item *gamedb.Entity) bool {
	ok := h.Registry.CanEquip(from, item)
	ev := h.event(events.EvEquip, from, item, "")
	ev.Data = map[string]any{"allowed": ok}
	h.Bus.Emit(ev)
	return ok
}

// WeaponHit runs the weapon-hit handlers and returns the extra damage they
// add to damage.
func (h *Host) WeaponHit(attacker, defender, weapon *gamedb.Entity, damage int) int {
	extra := h.Registry.DispatchWeaponHit(attach.HitEvent{
		Attacker: attacker, Defender: defender, Weapon: weapon, Damage: damage,
	})
	ev := h.event(events.EvWeaponHit, attacker, defender, "")
	ev.Data = map[string]any{"damage": damage, "extra": extra}
	h.Bus.Emit(ev)
	return extra
}

// Target completes a pending target request of from. It reports false if
// from had none.
func (h *Host) Target(from, targeted *gamedb.Entity) bool {
	ok := h.Registry.CompleteTarget(from, targeted)
	if ok {
		h.Bus.Emit(h.event(events.EvTarget, from, targeted, ""))
	}
	return ok
}

// Identify tells from what it learns about target and returns the lines.
func (h *Host) Identify(from, target *gamedb.Entity) []string {
	lines := h.Registry.Identify(from, target)
	for _, l := range lines {
		h.World.Tell(from, l)
	}
	h.Bus.Emit(h.event(events.EvIdentify, from, target, ""))
	return lines
}

// Delete removes e, its contents and their attachments.
func (h *Host) Delete(e *gamedb.Entity) {
	if e == nil || e.IsDeleted() {
		return
	}
	ref := e.Serial
	h.Registry.DeleteEntity(e)
	ev := events.New(events.EvDelete, e.Name)
	ev.Actor = ref
	h.Bus.Emit(ev)
}

// --- Lifecycle ---

// Open opens the bolt store at path and loads the world from it if it
// holds one. An empty path uses Conf.BoltPath. The loaded world is checked
// for integrity problems, which are logged but not fixed.
func (h *Host) Open(path string) error {
	if h.Store != nil {
		return fmt.Errorf("server: %s already open", h.Store.Path())
	}
	conf := h.Conf()
	if path == "" {
		path = conf.BoltPath
	}
	store, err := boltstore.Open(path)
	if err != nil {
		return err
	}
	if store.HasData() {
		stats, err := store.LoadWorld(h.World, h.Registry, h.Behaviors, h.Attachments)
		if err != nil {
			store.Close()
			return err
		}
		h.Metrics.loaded(stats)
		h.check()
	}
	h.Store = store

	if conf.SQLDatabase != "" && h.LeaderDB == nil {
		db, err := OpenLeaderDB(conf.SQLDatabase, conf.SQLTimeout)
		if err != nil {
			log.Printf("server: leader export disabled: %v", err)
		} else {
			h.LeaderDB = db
		}
	}
	h.refreshStats()
	log.Printf("server: world %q open, %d entities, %d attachments",
		conf.WorldName, h.World.Len(), h.Registry.Count())
	return nil
}

// check runs the integrity checkers and logs what they find. It returns
// the number of errors.
func (h *Host) check() int {
	v := validate.New(h.World, h.Registry)
	for _, f := range v.Run() {
		log.Printf("server: %s %s %s: %s", f.Severity, f.ID, f.ObjectRef, f.Description)
	}
	return v.Errors()
}

// Save writes the live world to the bolt store.
func (h *Host) Save() error {
	if h.Store == nil {
		return ErrNotOpen
	}
	start := time.Now()
	if err := h.Store.SaveWorld(h.World, h.Registry); err != nil {
		return err
	}
	h.Metrics.saved(time.Since(start))
	return nil
}

// Dump writes the live world as a flatfile to w.
func (h *Host) Dump(w io.Writer) error {
	return flatfile.Write(w, h.World, h.Registry)
}

// Close saves the world, closes the stores and unloads everything.
func (h *Host) Close() error {
	var errs []error
	if h.Store != nil {
		if err := h.Save(); err != nil {
			errs = append(errs, err)
		}
		if err := h.Store.Close(); err != nil {
			errs = append(errs, err)
		}
		h.Store = nil
	}
	if h.LeaderDB != nil {
		if err := h.LeaderDB.Close(); err != nil {
			errs = append(errs, err)
		}
		h.LeaderDB = nil
	}
	h.Timers.Clear()
	h.Registry.Reset()
	h.Leaders.Reset()
	h.World.Reset()
	h.refreshStats()
	return errors.Join(errs...)
}

// Run drives the tick loop until ctx is done. It also autosaves on
// Conf.AutosaveMinutes and, when the config came from a file, watches that
// file and applies changes on the next tick.
func (h *Host) Run(ctx context.Context) error {
	conf := h.Conf()
	tickEvery := conf.TickInterval()
	ticker := time.NewTicker(tickEvery)
	defer ticker.Stop()
	statsTicker := time.NewTicker(statsEvery)
	defer statsTicker.Stop()

	saveEvery := conf.AutosaveInterval()
	var autosave <-chan time.Time
	var saveTicker *time.Ticker
	if saveEvery > 0 {
		saveTicker = time.NewTicker(saveEvery)
		defer func() { saveTicker.Stop() }()
		autosave = saveTicker.C
	}

	if conf.ConfPath != "" {
		w, err := WatchConf(conf.ConfPath, func(c *HostConf) {
			h.Timers.DelayCall(func() { h.ApplyConf(c) })
		})
		if err != nil {
			log.Printf("server: config watcher disabled: %v", err)
		} else {
			defer w.Close()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := h.Timers.Tick(); n > 0 {
				debugf("tick ran %d callbacks", n)
			}
			conf := h.Conf()
			if d := conf.TickInterval(); d != tickEvery {
				tickEvery = d
				ticker.Reset(d)
			}
			if d := conf.AutosaveInterval(); d != saveEvery && d > 0 {
				saveEvery = d
				if saveTicker == nil {
					saveTicker = time.NewTicker(d)
					autosave = saveTicker.C
				} else {
					saveTicker.Reset(d)
				}
			}
		case <-statsTicker.C:
			h.refreshStats()
		case <-autosave:
			h.autosave(ctx)
		}
	}
}

func (h *Host) autosave(ctx context.Context) {
	if err := h.Save(); err != nil {
		log.Printf("server: autosave: %v", err)
		return
	}
	if h.LeaderDB != nil {
		if err := h.ExportLeaders(ctx); err != nil {
			log.Printf("server: leader export: %v", err)
		}
	}
}

// ExportLeaders writes the current quest ranking to the leader database.
func (h *Host) ExportLeaders(ctx context.Context) error {
	if h.LeaderDB == nil {
		return ErrNoLeaderDB
	}
	return h.LeaderDB.Export(ctx, h.Leaders.Top(0), h.Timers.Now())
}

// Archive writes a tar.gz of the bolt file, a flatfile dump, the leader
// database and the config file to Conf.ArchiveDir, then prunes old
// archives down to Conf.ArchiveRetain.
func (h *Host) Archive() (string, error) {
	if h.Store == nil {
		return "", ErrNotOpen
	}
	conf := h.Conf()
	params := archive.ArchiveParams{
		BoltSnapshotFunc: h.Store.Backup,
		DumpFunc:         h.Dump,
		ConfPath:         conf.ConfPath,
		ArchiveDir:       conf.ArchiveDir,
		WorldName:        conf.WorldName,
		Entities:         h.World.Len(),
		Attachments:      h.Registry.Count(),
	}
	if h.LeaderDB != nil {
		params.SQLPath = h.LeaderDB.Path()
		params.SQLCheckpointFunc = h.LeaderDB.Checkpoint
	}
	path, _, err := archive.CreateArchive(params)
	if err != nil {
		return "", err
	}
	if conf.ArchiveRetain > 0 {
		if n := archive.Prune(conf.ArchiveDir, conf.ArchiveRetain); n > 0 {
			log.Printf("server: pruned %d old archives", n)
		}
	}
	log.Printf("server: archived to %s", path)
	return path, nil
}
