package npc

import (
	"log"
	"strconv"

	"github.com/crystal-mush/xmlattach/pkg/attach"
	"github.com/crystal-mush/xmlattach/pkg/codec"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

// TalkingCreature is a mobile behavior for NPCs that converse through a
// Dialog attachment. Records older than version 5 carried the dialog
// inline; decoding one leaves the dialog pending until Restore attaches it.
type TalkingCreature struct {
	EffectItemID   int // 0 disables the highlight effect
	EffectDuration int
	EffectOffset   gamedb.Point3D
	EffectHue      int
	TalkText       string

	legacy *Dialog
}

func NewTalkingCreature() *TalkingCreature {
	return &TalkingCreature{EffectDuration: 70, EffectOffset: gamedb.Point3D{Z: 20}, EffectHue: 68}
}

// inline returns the dialog being read from or written to a legacy record.
func (t *TalkingCreature) inline() *Dialog {
	if t.legacy == nil {
		t.legacy = NewDialog()
	}
	return t.legacy
}

func (t *TalkingCreature) entry(i int) *Entry {
	d := t.inline()
	for len(d.Entries) <= i {
		d.Entries = append(d.Entries, &Entry{})
	}
	return d.Entries[i]
}

var creatureSchema = codec.NewSchema("TalkingCreature", codec.Fallthrough,
	codec.Group[TalkingCreature]{
		Since: 0,
		Write: func(w codec.Writer, t *TalkingCreature) {
			d := t.inline()
			w.WriteBool(d.IsActive)
			w.WriteDuration(d.ResetTime)
			w.WriteTime(d.LastInteraction)
			w.WriteBool(d.AllowGhost)
			w.WriteInt(d.ProximityRange)
			w.WriteBool(d.Running)
			w.WriteString(d.ConfigFile)
			w.WriteInt(len(d.Entries))
			for _, e := range d.Entries {
				w.WriteInt(e.Number)
				w.WriteInt(e.ID)
				w.WriteString(e.Text)
				w.WriteString(e.Keywords)
				w.WriteString(e.Action)
				dep, err := strconv.Atoi(e.DependsOn)
				if err != nil {
					dep = -1
				}
				w.WriteInt(dep)
				w.WriteInt(e.Pause)
			}
			w.WriteInt(d.Current)
			w.WriteBool(false) // no pending speech timer
		},
		Read: func(dec *codec.Decoder, t *TalkingCreature) {
			d := t.inline()
			d.IsActive = dec.ReadBool()
			d.ResetTime = dec.ReadDuration()
			d.LastInteraction = dec.ReadTime()
			d.AllowGhost = dec.ReadBool()
			d.ProximityRange = dec.ReadInt()
			d.Running = dec.ReadBool()
			d.ConfigFile = dec.ReadString()
			n := dec.ReadCount(maxDialogEntries)
			for i := range n {
				e := t.entry(i)
				e.Number = dec.ReadInt()
				e.ID = dec.ReadInt()
				e.Text = dec.ReadString()
				e.Keywords = dec.ReadString()
				e.Action = dec.ReadString()
				e.DependsOn = strconv.Itoa(dec.ReadInt())
				e.Pause = dec.ReadInt()
			}
			d.Current = dec.ReadInt()
			if dec.ReadBool() {
				// The pending speech timer is not resumed.
				dec.ReadRef()
				dec.ReadDuration()
			}
		},
	},
	codec.Group[TalkingCreature]{
		Since: 1,
		Write: func(w codec.Writer, t *TalkingCreature) { codec.WriteEntity(w, t.inline().ActivePlayer) },
		Read: func(d *codec.Decoder, t *TalkingCreature) {
			dlg := t.inline()
			d.ReadEntity(func(e *gamedb.Entity) { dlg.ActivePlayer = e })
		},
	},
	codec.Group[TalkingCreature]{
		Since: 2,
		Write: func(w codec.Writer, t *TalkingCreature) {
			d := t.inline()
			w.WriteInt(d.SpeechPace)
			w.WriteInt(len(d.Entries))
			for _, e := range d.Entries {
				w.WriteInt(e.PrePause)
				w.WriteBool(e.LockConversation)
				w.WriteBool(e.AllowNPCTrigger)
				w.WriteInt(e.SpeechStyle)
			}
		},
		Read: func(dec *codec.Decoder, t *TalkingCreature) {
			t.inline().SpeechPace = dec.ReadInt()
			n := dec.ReadCount(maxDialogEntries)
			for i := range n {
				e := t.entry(i)
				e.PrePause = dec.ReadInt()
				e.LockConversation = dec.ReadBool()
				e.AllowNPCTrigger = dec.ReadBool()
				e.SpeechStyle = dec.ReadInt()
			}
		},
	},
	codec.Group[TalkingCreature]{
		Since: 3,
		Write: func(w codec.Writer, t *TalkingCreature) {
			w.WriteString(t.inline().TriggerOnCarried)
			w.WriteString(t.inline().NoTriggerOnCarried)
		},
		Read: func(d *codec.Decoder, t *TalkingCreature) {
			t.inline().TriggerOnCarried = d.ReadString()
			t.inline().NoTriggerOnCarried = d.ReadString()
		},
	},
	codec.Group[TalkingCreature]{
		Since: 4,
		Write: func(w codec.Writer, t *TalkingCreature) {
			d := t.inline()
			w.WriteInt(len(d.Entries))
			for _, e := range d.Entries {
				w.WriteString(e.Condition)
			}
		},
		Read: func(d *codec.Decoder, t *TalkingCreature) {
			n := d.ReadCount(maxDialogEntries)
			for i := range n {
				t.entry(i).Condition = d.ReadString()
			}
		},
	},
	// From version 5 the dialog lives in its own attachment.
	codec.Group[TalkingCreature]{Since: 5, Reset: true},
	codec.Group[TalkingCreature]{
		Since: 6,
		Write: func(w codec.Writer, t *TalkingCreature) { w.WriteString(t.TalkText) },
		Read:  func(d *codec.Decoder, t *TalkingCreature) { t.TalkText = d.ReadString() },
	},
	codec.Group[TalkingCreature]{
		Since: 7,
		Write: func(w codec.Writer, t *TalkingCreature) {
			w.WriteInt(t.EffectItemID)
			w.WriteInt(t.EffectDuration)
			w.WritePoint(t.EffectOffset)
			w.WriteInt(t.EffectHue)
		},
		Read: func(d *codec.Decoder, t *TalkingCreature) {
			t.EffectItemID = d.ReadInt()
			t.EffectDuration = d.ReadInt()
			t.EffectOffset = d.ReadPoint()
			t.EffectHue = d.ReadInt()
		},
	},
)

func (t *TalkingCreature) RecordType() string                { return "TalkingCreature" }
func (t *TalkingCreature) EncodeRecord(w codec.Writer) error { return creatureSchema.Encode(w, t) }

func (t *TalkingCreature) DecodeRecord(d *codec.Decoder) error {
	t.legacy = nil
	return creatureSchema.Decode(d, t)
}

// EncodeRecordAt writes the creature as an older version would have, with
// dialog as the inline dialog for versions before 5.
func (t *TalkingCreature) EncodeRecordAt(w codec.Writer, version int, dialog *Dialog) error {
	prev := t.legacy
	t.legacy = dialog
	defer func() { t.legacy = prev }()
	return creatureSchema.EncodeAt(w, t, version)
}

// Pending returns the inline dialog decoded from a legacy record that has
// not been attached yet.
func (t *TalkingCreature) Pending() *Dialog { return t.legacy }

// Restore attaches a dialog migrated from a legacy record.
func (t *TalkingCreature) Restore(env *attach.Env, self *gamedb.Entity) {
	d := t.legacy
	if d == nil {
		return
	}
	t.legacy = nil
	if Find(env, self) != nil {
		return
	}
	if err := env.Registry.Load(d, self); err != nil {
		log.Printf("npc: migrate dialog of %s: %v", self.Serial, err)
	}
}

// Use shows the creature's talk text.
func (t *TalkingCreature) Use(env *attach.Env, self, from *gamedb.Entity) {
	if from == nil || t.TalkText == "" {
		return
	}
	env.Tell(from, self.Name+": "+t.TalkText)
}

// Dialog returns the creature's dialog, attaching a new one if it has none.
func (t *TalkingCreature) Dialog(env *attach.Env, self *gamedb.Entity) (*Dialog, error) {
	if d := Find(env, self); d != nil {
		return d, nil
	}
	d := NewDialog()
	if err := env.Registry.AttachTo(self, d); err != nil {
		return nil, err
	}
	return d, nil
}
