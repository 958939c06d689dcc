// Package npc implements talking creatures: the Dialog attachment that
// drives keyword conversations, the TalkingCreature behavior and the
// Escortable behavior.
package npc

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/crystal-mush/xmlattach/pkg/attach"
	"github.com/crystal-mush/xmlattach/pkg/codec"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

const (
	// DefaultProximity is how close a player must walk to trigger a
	// keyword-less entry.
	DefaultProximity = 4

	maxDialogEntries = 1000
)

// Entry is one step of a conversation.
type Entry struct {
	Number    int
	ID        int
	Text      string
	Keywords  string // comma separated; empty entries trigger on approach
	Action    string
	Condition string
	DependsOn string // comma separated entry numbers; empty or -1 always applies
	Pause     int    // seconds before the conversation moves on

	PrePause         int // seconds before the text is spoken
	LockConversation bool
	AllowNPCTrigger  bool
	SpeechStyle      int
}

func (e *Entry) follows(current int) bool {
	deps := strings.TrimSpace(e.DependsOn)
	if deps == "" {
		return true
	}
	for _, s := range strings.Split(deps, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			continue
		}
		if n == -1 || n == current {
			return true
		}
	}
	return false
}

func (e *Entry) heard(text string) bool {
	text = strings.ToLower(text)
	for _, k := range strings.Split(e.Keywords, ",") {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if k == "*" || strings.Contains(text, k) {
			return true
		}
	}
	return false
}

var entrySchema = codec.NewSchema("DialogEntry", codec.Ascending,
	codec.Group[Entry]{
		Since: 0,
		Write: func(w codec.Writer, e *Entry) {
			w.WriteInt(e.Number)
			w.WriteInt(e.ID)
			w.WriteString(e.Text)
			w.WriteString(e.Keywords)
			w.WriteString(e.Action)
			w.WriteString(e.Condition)
			w.WriteString(e.DependsOn)
			w.WriteInt(e.Pause)
			w.WriteInt(e.PrePause)
			w.WriteBool(e.LockConversation)
			w.WriteBool(e.AllowNPCTrigger)
			w.WriteInt(e.SpeechStyle)
		},
		Read: func(d *codec.Decoder, e *Entry) {
			e.Number = d.ReadInt()
			e.ID = d.ReadInt()
			e.Text = d.ReadString()
			e.Keywords = d.ReadString()
			e.Action = d.ReadString()
			e.Condition = d.ReadString()
			e.DependsOn = d.ReadString()
			e.Pause = d.ReadInt()
			e.PrePause = d.ReadInt()
			e.LockConversation = d.ReadBool()
			e.AllowNPCTrigger = d.ReadBool()
			e.SpeechStyle = d.ReadInt()
		},
	},
)

// Dialog runs a keyword conversation for the mobile it is attached to.
type Dialog struct {
	attach.Base

	Entries            []*Entry
	Current            int
	IsActive           bool
	ResetTime          time.Duration
	LastInteraction    time.Time
	AllowGhost         bool
	ProximityRange     int
	Running            bool
	ConfigFile         string
	SpeechPace         int
	TriggerOnCarried   string
	NoTriggerOnCarried string
	ActivePlayer       *gamedb.Entity
}

// NewDialog returns an active dialog with no entries.
func NewDialog() *Dialog {
	return &Dialog{IsActive: true, ProximityRange: DefaultProximity, ResetTime: time.Minute}
}

var dialogSchema = codec.NewSchema("Dialog", codec.Ascending,
	codec.Group[Dialog]{
		Since: 0,
		Write: func(w codec.Writer, a *Dialog) {
			w.WriteInt(a.Current)
			w.WriteBool(a.IsActive)
			w.WriteDuration(a.ResetTime)
			w.WriteTime(a.LastInteraction)
			w.WriteBool(a.AllowGhost)
			w.WriteInt(a.ProximityRange)
			w.WriteBool(a.Running)
			w.WriteString(a.ConfigFile)
			w.WriteInt(a.SpeechPace)
			w.WriteString(a.TriggerOnCarried)
			w.WriteString(a.NoTriggerOnCarried)
			codec.WriteEntity(w, a.ActivePlayer)
			w.WriteInt(len(a.Entries))
			for _, e := range a.Entries {
				if err := entrySchema.Encode(w, e); err != nil {
					return // w holds the failure
				}
			}
		},
		Read: func(d *codec.Decoder, a *Dialog) {
			a.Current = d.ReadInt()
			a.IsActive = d.ReadBool()
			a.ResetTime = d.ReadDuration()
			a.LastInteraction = d.ReadTime()
			a.AllowGhost = d.ReadBool()
			a.ProximityRange = d.ReadInt()
			a.Running = d.ReadBool()
			a.ConfigFile = d.ReadString()
			a.SpeechPace = d.ReadInt()
			a.TriggerOnCarried = d.ReadString()
			a.NoTriggerOnCarried = d.ReadString()
			d.ReadEntity(func(e *gamedb.Entity) { a.ActivePlayer = e })
			n := d.ReadCount(maxDialogEntries)
			a.Entries = make([]*Entry, 0, n)
			for range n {
				e := &Entry{}
				entrySchema.DecodeNested(d, e)
				a.Entries = append(a.Entries, e)
			}
		},
	},
)

func (a *Dialog) RecordType() string                  { return "Dialog" }
func (a *Dialog) EncodeRecord(w codec.Writer) error   { return attach.WriteRecord(w, &a.Base, dialogSchema, a) }
func (a *Dialog) DecodeRecord(d *codec.Decoder) error { return attach.ReadRecord(d, &a.Base, dialogSchema, a) }
func (a *Dialog) Capabilities() attach.Capability {
	return attach.HandlesSpeech | attach.HandlesMovement | attach.HandlesIdentify
}

// Add appends an entry.
func (a *Dialog) Add(e *Entry) { a.Entries = append(a.Entries, e) }

// CurrentEntry returns the entry the conversation is at, or nil.
func (a *Dialog) CurrentEntry() *Entry {
	for _, e := range a.Entries {
		if e.Number == a.Current {
			return e
		}
	}
	return nil
}

// Reset returns the conversation to its start.
func (a *Dialog) Reset() {
	a.Current = 0
	a.ActivePlayer = nil
}

func (a *Dialog) expire(now time.Time) {
	if a.ResetTime > 0 && !a.LastInteraction.IsZero() && now.Sub(a.LastInteraction) > a.ResetTime {
		a.Reset()
	}
}

func carries(env *attach.Env, m *gamedb.Entity, name string) bool {
	found := false
	env.World.Each(func(e *gamedb.Entity) {
		if !found && e != m && strings.EqualFold(e.Name, name) && env.World.RootParent(e) == m {
			found = true
		}
	})
	return found
}

// accepts reports whether m may talk to the dialog right now.
func (a *Dialog) accepts(env *attach.Env, m *gamedb.Entity) bool {
	npc := a.AttachedTo()
	if !a.IsActive || m == nil || m == npc || npc.IsDeleted() {
		return false
	}
	if !m.Alive() && !a.AllowGhost {
		return false
	}
	a.expire(env.Now())
	if a.ActivePlayer != nil && !a.ActivePlayer.IsDeleted() && a.ActivePlayer != m {
		return false
	}
	if env.World != nil {
		if a.TriggerOnCarried != "" && !carries(env, m, a.TriggerOnCarried) {
			return false
		}
		if a.NoTriggerOnCarried != "" && carries(env, m, a.NoTriggerOnCarried) {
			return false
		}
	}
	return true
}

// pick returns the first entry following the current one that matches.
func (a *Dialog) pick(env *attach.Env, m *gamedb.Entity, match func(*Entry) bool) *Entry {
	for _, e := range a.Entries {
		if e.Number == a.Current || !e.follows(a.Current) || !match(e) {
			continue
		}
		if !m.Player && !e.AllowNPCTrigger {
			continue
		}
		if e.Condition != "" && !env.Check(m, e.Condition) {
			continue
		}
		return e
	}
	return nil
}

func (a *Dialog) respond(env *attach.Env, m *gamedb.Entity, e *Entry) {
	a.Current = e.Number
	a.LastInteraction = env.Now()
	if e.LockConversation {
		a.ActivePlayer = m
	}
	speak := func() {
		if e.Text != "" {
			env.Tell(m, fmt.Sprintf("%s: %s", a.AttachedTo().Name, e.Text))
		}
		env.Run(a.AttachedTo(), e.Action)
	}
	if e.PrePause > 0 && env.Timers != nil {
		env.Timers.ScheduleOnce(time.Duration(e.PrePause)*time.Second, speak)
		return
	}
	speak()
}

func (a *Dialog) OnSpeech(env *attach.Env, ev attach.SpeechEvent) {
	m := ev.Speaker
	if !a.accepts(env, m) {
		return
	}
	e := a.pick(env, m, func(e *Entry) bool { return e.heard(ev.Text) })
	if e != nil {
		a.respond(env, m, e)
	}
}

func (a *Dialog) OnMovement(env *attach.Env, ev attach.MoveEvent) {
	m := ev.Mover
	if !m.Player || !a.accepts(env, m) {
		return
	}
	if env.World != nil && !env.World.InRange(a.AttachedTo(), m, a.ProximityRange) {
		return
	}
	e := a.pick(env, m, func(e *Entry) bool { return strings.TrimSpace(e.Keywords) == "" })
	if e != nil {
		a.respond(env, m, e)
	}
}

func (a *Dialog) OnIdentify(env *attach.Env, from *gamedb.Entity) string {
	if from == nil || from.Access < gamedb.GameMaster {
		return ""
	}
	return fmt.Sprintf("Dialog: %d entries, at entry %d", len(a.Entries), a.Current)
}

// Find returns the dialog attached to m, or nil.
func Find(env *attach.Env, m *gamedb.Entity) *Dialog {
	d, _ := env.Registry.Find(m, "Dialog", "").(*Dialog)
	return d
}
