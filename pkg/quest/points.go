// Package quest implements quest points, the quest ranking, quest tokens
// and quest books.
package quest

import (
	"fmt"
	"strings"
	"time"

	"github.com/crystal-mush/xmlattach/pkg/attach"
	"github.com/crystal-mush/xmlattach/pkg/codec"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

// maxEntries bounds the quest history read from a record.
const maxEntries = 10000

// Info describes a completed quest.
type Info struct {
	Name         string
	Difficulty   int
	Started      time.Time
	PartyEnabled bool
}

// Entry is one line of a quester's history.
type Entry struct {
	Quester        *gamedb.Entity
	Name           string
	WhenCompleted  time.Time
	WhenStarted    time.Time
	Difficulty     int
	TimesCompleted int
	PartyEnabled   bool
}

var entrySchema = codec.NewSchema("QuestEntry", codec.Ascending,
	codec.Group[Entry]{
		Since: 0,
		Write: func(w codec.Writer, e *Entry) {
			codec.WriteEntity(w, e.Quester)
			w.WriteString(e.Name)
			w.WriteTime(e.WhenCompleted)
			w.WriteTime(e.WhenStarted)
			w.WriteInt(e.Difficulty)
			w.WriteInt(e.TimesCompleted)
			w.WriteBool(e.PartyEnabled)
		},
		Read: func(d *codec.Decoder, e *Entry) {
			d.ReadEntity(func(q *gamedb.Entity) { e.Quester = q })
			e.Name = d.ReadString()
			e.WhenCompleted = d.ReadTime()
			e.WhenStarted = d.ReadTime()
			e.Difficulty = d.ReadInt()
			e.TimesCompleted = d.ReadInt()
			e.PartyEnabled = d.ReadBool()
		},
	},
)

// Points is the quest record of a mobile: points earned, credits left to
// spend, and the history of quests completed.
type Points struct {
	attach.Base
	Points     int
	Credits    int
	Completed  int
	Rank       int
	DeltaRank  int
	WhenRanked time.Time
	Entries    []*Entry

	quester *gamedb.Entity
}

var pointsSchema = codec.NewSchema("QuestPoints", codec.Fallthrough,
	codec.Group[Points]{
		Since: 0,
		Write: func(w codec.Writer, p *Points) {
			w.WriteInt(p.Points)
			w.WriteInt(p.Credits)
			w.WriteInt(p.Completed)
			w.WriteInt(p.Rank)
			w.WriteInt(p.DeltaRank)
			w.WriteTime(p.WhenRanked)
			w.WriteInt(len(p.Entries))
			for _, e := range p.Entries {
				if err := entrySchema.Encode(w, e); err != nil {
					return // w holds the failure
				}
			}
			on := p.AttachedTo()
			if !on.IsMobile() {
				on = nil
			}
			codec.WriteEntity(w, on)
		},
		Read: func(d *codec.Decoder, p *Points) {
			p.Points = d.ReadInt()
			p.Credits = d.ReadInt()
			p.Completed = d.ReadInt()
			p.Rank = d.ReadInt()
			p.DeltaRank = d.ReadInt()
			p.WhenRanked = d.ReadTime()
			n := d.ReadCount(maxEntries)
			p.Entries = make([]*Entry, 0, n)
			for range n {
				e := &Entry{}
				entrySchema.DecodeNested(d, e)
				if d.Err() != nil {
					return
				}
				p.Entries = append(p.Entries, e)
			}
			d.ReadEntity(func(q *gamedb.Entity) { p.quester = q })
		},
	},
)

func (p *Points) RecordType() string                  { return "QuestPoints" }
func (p *Points) EncodeRecord(w codec.Writer) error   { return attach.WriteRecord(w, &p.Base, pointsSchema, p) }
func (p *Points) DecodeRecord(d *codec.Decoder) error { return attach.ReadRecord(d, &p.Base, pointsSchema, p) }
func (p *Points) Capabilities() attach.Capability     { return attach.HandlesIdentify }

// OnLoad puts a loaded quester back on the ranking.
func (p *Points) OnLoad(env *attach.Env) {
	q := p.quester
	if q == nil {
		q = p.AttachedTo()
	}
	if l := LeadersOf(env); l != nil && q.IsMobile() && p.Completed > 0 {
		l.Update(q, p)
	}
}

func (p *Points) OnIdentify(env *attach.Env, from *gamedb.Entity) string {
	return fmt.Sprintf("Quest Points Status:\nTotal Quest Points = %d\nTotal Quests Completed = %d\nQuest Credits Available = %d",
		p.Points, p.Completed, p.Credits)
}

// Entry returns the history line for the named quest, or nil.
func (p *Points) Entry(name string) *Entry {
	for _, e := range p.Entries {
		if strings.EqualFold(e.Name, name) {
			return e
		}
	}
	return nil
}

func (p *Points) record(m *gamedb.Entity, q Info, now time.Time) {
	if e := p.Entry(q.Name); e != nil {
		e.TimesCompleted++
		e.WhenStarted = q.Started
		e.WhenCompleted = now
		e.Difficulty = q.Difficulty
		e.PartyEnabled = q.PartyEnabled
		return
	}
	p.Entries = append(p.Entries, &Entry{
		Quester:        m,
		Name:           q.Name,
		WhenCompleted:  now,
		WhenStarted:    q.Started,
		Difficulty:     q.Difficulty,
		TimesCompleted: 1,
		PartyEnabled:   q.PartyEnabled,
	})
}

// Find returns m's quest record, or nil if it has never completed a quest.
func Find(env *attach.Env, m *gamedb.Entity) *Points {
	p, _ := env.Registry.Find(m, "QuestPoints", "").(*Points)
	return p
}

// GiveQuestPoints credits m with a completed quest and updates the
// ranking. The record is created on first use.
func GiveQuestPoints(env *attach.Env, m *gamedb.Entity, q Info) error {
	if m.IsDeleted() {
		return attach.ErrNotAllowed
	}
	p := Find(env, m)
	if p == nil {
		p = &Points{}
		if err := env.Registry.AttachTo(m, p); err != nil {
			return fmt.Errorf("quest: points for %s: %w", m.Name, err)
		}
	}
	p.Points += q.Difficulty
	p.Credits += q.Difficulty
	p.Completed++
	env.Tell(m, fmt.Sprintf("You have received %d quest points!", q.Difficulty))
	p.record(m, q, env.Now())
	if l := LeadersOf(env); l != nil {
		l.Update(m, p)
	}
	return nil
}

func GetPoints(env *attach.Env, m *gamedb.Entity) int {
	if p := Find(env, m); p != nil {
		return p.Points
	}
	return 0
}

func GetCredits(env *attach.Env, m *gamedb.Entity) int {
	if p := Find(env, m); p != nil {
		return p.Credits
	}
	return 0
}

// HasCredits reports whether m can spend n credits.
func HasCredits(env *attach.Env, m *gamedb.Entity, n int) bool {
	if m.IsDeleted() {
		return false
	}
	p := Find(env, m)
	return p != nil && p.Credits >= n
}

// TakeCredits spends n of m's credits. Nothing is taken when m cannot
// afford it.
func TakeCredits(env *attach.Env, m *gamedb.Entity, n int) bool {
	if n < 0 || !HasCredits(env, m, n) {
		return false
	}
	Find(env, m).Credits -= n
	return true
}
