package quest

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/crystal-mush/xmlattach/pkg/attach"
	"github.com/crystal-mush/xmlattach/pkg/codec"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

const (
	// Objectives is the number of objective slots on a token.
	Objectives = 5

	// MaxExpiration caps a token's lifetime, in hours (100 years).
	MaxExpiration = 876000

	maxJournal = 1000
)

// JournalEntry is a note kept on a quest token.
type JournalEntry struct {
	ID   string
	Text string
}

// Token is a quest carried by a player. It tracks up to five objectives
// and hands out its reward when they are all completed.
type Token struct {
	WasMoved    bool
	expiration  float64 // hours; 0 never expires
	TimeCreated time.Time

	Objective    [Objectives]string
	Completed    [Objectives]bool
	State        [Objectives]string
	Description  [Objectives]string
	PartyEnabled bool
	PartyRange   int

	ConfigFile   string
	Note         string
	Title        string
	RewardString string

	Owner           *gamedb.Entity
	Pack            *gamedb.Entity
	RewardItem      *gamedb.Entity
	AutoReward      bool
	CanSeeReward    bool
	PlayerMade      bool
	Creator         *gamedb.Entity
	ReturnContainer *gamedb.Entity

	// RewardAttachment is handed to the owner on completion. Only its
	// serial is persisted, in RewardAttachmentSerial.
	RewardAttachment       attach.Attachment
	RewardAttachmentSerial int

	NextRepeatable   time.Duration
	AttachmentString string
	Difficulty       int
	Repeatable       bool
	Journal          []JournalEntry
}

// NewToken returns a token created at now with the stock settings.
func NewToken(now time.Time) *Token {
	return &Token{TimeCreated: now, PartyRange: -1, Difficulty: 1, Repeatable: true}
}

func writeStrings(w codec.Writer, ss []string) {
	for _, s := range ss {
		w.WriteString(s)
	}
}

func readStrings(d *codec.Decoder, ss []string) {
	for i := range ss {
		ss[i] = d.ReadString()
	}
}

var tokenSchema = codec.NewSchema("QuestToken", codec.Fallthrough,
	codec.Group[Token]{
		Since: 0,
		Write: func(w codec.Writer, t *Token) {
			w.WriteBool(t.WasMoved)
			w.WriteDouble(t.expiration)
			w.WriteTime(t.TimeCreated)
			writeStrings(w, t.Objective[:])
			for _, c := range t.Completed {
				w.WriteBool(c)
			}
		},
		Read: func(d *codec.Decoder, t *Token) {
			t.WasMoved = d.ReadBool()
			t.SetExpiration(d.ReadDouble())
			t.TimeCreated = d.ReadTime()
			readStrings(d, t.Objective[:])
			for i := range t.Completed {
				t.Completed[i] = d.ReadBool()
			}
		},
	},
	codec.Group[Token]{
		Since: 1,
		Write: func(w codec.Writer, t *Token) { writeStrings(w, t.State[:]) },
		Read:  func(d *codec.Decoder, t *Token) { readStrings(d, t.State[:]) },
	},
	codec.Group[Token]{
		Since: 2,
		Write: func(w codec.Writer, t *Token) {
			w.WriteBool(t.PartyEnabled)
			w.WriteInt(t.PartyRange)
		},
		Read: func(d *codec.Decoder, t *Token) {
			t.PartyEnabled = d.ReadBool()
			t.PartyRange = d.ReadInt()
		},
	},
	codec.Group[Token]{
		Since: 3,
		Write: func(w codec.Writer, t *Token) {
			w.WriteString(t.ConfigFile)
			w.WriteString(t.Note)
			w.WriteString(t.Title)
		},
		Read: func(d *codec.Decoder, t *Token) {
			t.ConfigFile = d.ReadString()
			t.Note = d.ReadString()
			t.Title = d.ReadString()
		},
	},
	codec.Group[Token]{
		Since: 4,
		Write: func(w codec.Writer, t *Token) { w.WriteString(t.RewardString) },
		Read:  func(d *codec.Decoder, t *Token) { t.RewardString = d.ReadString() },
	},
	codec.Group[Token]{
		Since: 5,
		Write: func(w codec.Writer, t *Token) { codec.WriteEntity(w, t.Owner) },
		Read: func(d *codec.Decoder, t *Token) {
			d.ReadEntity(func(e *gamedb.Entity) { t.Owner = e })
		},
	},
	codec.Group[Token]{
		Since: 6,
		Write: func(w codec.Writer, t *Token) { writeStrings(w, t.Description[:]) },
		Read:  func(d *codec.Decoder, t *Token) { readStrings(d, t.Description[:]) },
	},
	codec.Group[Token]{
		Since: 7,
		Write: func(w codec.Writer, t *Token) {
			codec.WriteEntity(w, t.Pack)
			codec.WriteEntity(w, t.RewardItem)
			w.WriteBool(t.AutoReward)
			w.WriteBool(t.CanSeeReward)
			w.WriteBool(t.PlayerMade)
			codec.WriteEntity(w, t.Creator)
		},
		Read: func(d *codec.Decoder, t *Token) {
			d.ReadEntity(func(e *gamedb.Entity) { t.Pack = e })
			d.ReadEntity(func(e *gamedb.Entity) { t.RewardItem = e })
			t.AutoReward = d.ReadBool()
			t.CanSeeReward = d.ReadBool()
			t.PlayerMade = d.ReadBool()
			d.ReadEntity(func(e *gamedb.Entity) { t.Creator = e })
		},
	},
	codec.Group[Token]{
		Since: 8,
		Write: func(w codec.Writer, t *Token) { codec.WriteEntity(w, t.ReturnContainer) },
		Read: func(d *codec.Decoder, t *Token) {
			d.ReadEntity(func(e *gamedb.Entity) { t.ReturnContainer = e })
		},
	},
	codec.Group[Token]{
		Since: 9,
		Write: func(w codec.Writer, t *Token) {
			serial := t.RewardAttachmentSerial
			if t.RewardAttachment != nil && !t.RewardAttachment.Core().IsDeleted() {
				serial = t.RewardAttachment.Core().Serial()
			}
			w.WriteInt(serial)
		},
		Read: func(d *codec.Decoder, t *Token) { t.RewardAttachmentSerial = d.ReadInt() },
	},
	codec.Group[Token]{
		Since: 10,
		Write: func(w codec.Writer, t *Token) { w.WriteDuration(t.NextRepeatable) },
		Read:  func(d *codec.Decoder, t *Token) { t.NextRepeatable = d.ReadDuration() },
	},
	codec.Group[Token]{
		Since: 11,
		Write: func(w codec.Writer, t *Token) { w.WriteString(t.AttachmentString) },
		Read:  func(d *codec.Decoder, t *Token) { t.AttachmentString = d.ReadString() },
	},
	codec.Group[Token]{
		Since: 12,
		Write: func(w codec.Writer, t *Token) { w.WriteInt(t.Difficulty) },
		Read:  func(d *codec.Decoder, t *Token) { t.Difficulty = d.ReadInt() },
	},
	codec.Group[Token]{
		Since: 13,
		Write: func(w codec.Writer, t *Token) { w.WriteBool(t.Repeatable) },
		Read:  func(d *codec.Decoder, t *Token) { t.Repeatable = d.ReadBool() },
	},
	codec.Group[Token]{
		Since: 14,
		Write: func(w codec.Writer, t *Token) {
			w.WriteInt(len(t.Journal))
			for _, j := range t.Journal {
				w.WriteString(j.ID)
				w.WriteString(j.Text)
			}
		},
		Read: func(d *codec.Decoder, t *Token) {
			n := d.ReadCount(maxJournal)
			t.Journal = nil
			for range n {
				t.Journal = append(t.Journal, JournalEntry{ID: d.ReadString(), Text: d.ReadString()})
			}
		},
	},
)

func (t *Token) RecordType() string                  { return "QuestToken" }
func (t *Token) EncodeRecord(w codec.Writer) error   { return tokenSchema.Encode(w, t) }
func (t *Token) DecodeRecord(d *codec.Decoder) error { return tokenSchema.Decode(d, t) }

// EncodeRecordAt writes the token as an older version would have.
func (t *Token) EncodeRecordAt(w codec.Writer, version int) error {
	return tokenSchema.EncodeAt(w, t, version)
}

// Expiration returns the token's lifetime in hours.
func (t *Token) Expiration() float64 { return t.expiration }

// SetExpiration sets the lifetime in hours, capped at MaxExpiration.
func (t *Token) SetExpiration(hours float64) { t.expiration = min(hours, MaxExpiration) }

// ExpiresIn is the time left before the token expires. It is zero for a
// token that never expires.
func (t *Token) ExpiresIn(now time.Time) time.Duration {
	if t.expiration <= 0 {
		return 0
	}
	return t.TimeCreated.Add(time.Duration(t.expiration * float64(time.Hour))).Sub(now)
}

func (t *Token) IsExpired(now time.Time) bool {
	return t.expiration > 0 && t.ExpiresIn(now) <= 0
}

// Info describes the quest for the points ledger. self is the token
// entity, whose name is the quest name.
func (t *Token) Info(self *gamedb.Entity) Info {
	return Info{Name: self.Name, Difficulty: t.Difficulty, Started: t.TimeCreated, PartyEnabled: t.PartyEnabled}
}

// AlreadyDone reports whether the owner has finished this quest and may
// not take it again yet.
func (t *Token) AlreadyDone(env *attach.Env, self *gamedb.Entity) bool {
	if t.Owner == nil {
		return false
	}
	p := Find(env, t.Owner)
	if p == nil {
		return false
	}
	e := p.Entry(self.Name)
	if e == nil {
		return false
	}
	if !t.Repeatable {
		return true
	}
	return t.NextRepeatable > 0 && env.Now().Before(e.WhenCompleted.Add(t.NextRepeatable))
}

// ExpirationString describes the token's remaining lifetime.
func (t *Token) ExpirationString(env *attach.Env, self *gamedb.Entity) string {
	now := env.Now()
	switch {
	case t.AlreadyDone(env, self):
		return "Already done"
	case t.expiration <= 0:
		return "Never expires"
	case t.IsExpired(now):
		return "Expired"
	}
	ts := t.ExpiresIn(now)
	days := int(ts.Hours() / 24)
	hours := int((ts - time.Duration(days)*24*time.Hour).Hours())
	mins := int((ts - time.Duration(days)*24*time.Hour - time.Duration(hours)*time.Hour).Minutes())
	secs := int((ts % time.Minute).Seconds())
	switch {
	case days > 0:
		return fmt.Sprintf("Expires in %d days %d hrs", days, hours)
	case hours > 0:
		return fmt.Sprintf("Expires in %d hrs %d mins", hours, mins)
	}
	return fmt.Sprintf("Expires in %d mins %d secs", mins, secs)
}

// IsValid reports whether the quest can still be worked on. A moved or
// expired token loses its reward definitions.
func (t *Token) IsValid(env *attach.Env, self *gamedb.Entity) bool {
	if t.WasMoved || t.IsExpired(env.Now()) {
		t.RewardString = ""
		t.AttachmentString = ""
		return false
	}
	return !t.AlreadyDone(env, self)
}

// IsCompleted reports whether the token is valid and every objective that
// was set has been completed.
func (t *Token) IsCompleted(env *attach.Env, self *gamedb.Entity) bool {
	if !t.IsValid(env, self) {
		return false
	}
	for i, o := range t.Objective {
		if o != "" && !t.Completed[i] {
			return false
		}
	}
	return true
}

// SetCompleted marks objective i (0-based) and hands out the reward when
// the quest is finished.
func (t *Token) SetCompleted(env *attach.Env, self *gamedb.Entity, i int, done bool) error {
	if i < 0 || i >= Objectives {
		return fmt.Errorf("quest: objective %d out of range", i+1)
	}
	t.Completed[i] = done
	t.CheckAutoReward(env, self)
	return nil
}

func (t *Token) hasReward() bool {
	return !t.RewardItem.IsDeleted() || (t.RewardAttachment != nil && !t.RewardAttachment.Core().IsDeleted())
}

// CheckAutoReward completes an auto-reward quest: the reward item goes to
// the owner, the reward attachment is attached on the next tick, the owner
// is credited and the token is removed.
func (t *Token) CheckAutoReward(env *attach.Env, self *gamedb.Entity) {
	if self.IsDeleted() || !t.AutoReward || t.Owner.IsDeleted() || !t.hasReward() {
		return
	}
	if !t.IsCompleted(env, self) {
		return
	}
	if !t.RewardItem.IsDeleted() {
		t.RewardItem.Movable = true
		t.RewardItem.Parent = t.Owner.Serial
		t.RewardItem.Layer = 0
		t.RewardItem = nil
	}
	if a := t.RewardAttachment; a != nil && !a.Core().IsDeleted() {
		owner := t.Owner
		env.Later(func() {
			if err := env.Registry.AttachTo(owner, a); err != nil {
				log.Printf("quest: reward attachment for %s: %v", owner.Name, err)
			}
		})
		t.RewardAttachment = nil
	}
	t.complete(env, self)
	env.Tell(t.Owner, fmt.Sprintf("%s completed. You receive the quest reward!", self.Name))
	env.Delete(self)
}

// complete records the finished quest on the owner.
func (t *Token) complete(env *attach.Env, self *gamedb.Entity) {
	if t.PlayerMade {
		return
	}
	if err := GiveQuestPoints(env, t.Owner, t.Info(self)); err != nil {
		env.Tell(t.Owner, err.Error())
	}
}

// Invalidate tells the owner and removes the token.
func (t *Token) Invalidate(env *attach.Env, self *gamedb.Entity) {
	if t.Owner != nil {
		env.Tell(t.Owner, fmt.Sprintf("Quest invalidated - '%s' removed", self.Name))
	}
	env.Delete(self)
}

// AddJournalEntry applies "id:text" to the journal. An existing id gets the
// new text, or is removed when the text is empty.
func (t *Token) AddJournalEntry(s string) {
	id, text, _ := strings.Cut(s, ":")
	id, text = strings.TrimSpace(id), strings.TrimSpace(text)
	if id == "" {
		return
	}
	for i, j := range t.Journal {
		if j.ID != id {
			continue
		}
		if text == "" {
			t.Journal = append(t.Journal[:i], t.Journal[i+1:]...)
		} else {
			t.Journal[i].Text = text
		}
		return
	}
	if text != "" {
		t.Journal = append(t.Journal, JournalEntry{ID: id, Text: text})
	}
}

// Use shows the quest status. The first player to handle an unowned token
// becomes its owner.
func (t *Token) Use(env *attach.Env, self, from *gamedb.Entity) {
	if from == nil || !from.Player {
		return
	}
	if t.Owner == nil {
		t.Owner = from
	}
	title := t.Title
	if title == "" {
		title = self.Name
	}
	env.Tell(from, fmt.Sprintf("%s (%s)", title, t.ExpirationString(env, self)))
	for i, o := range t.Objective {
		if o == "" {
			continue
		}
		desc := t.Description[i]
		if desc == "" {
			desc = o
		}
		mark := " "
		if t.Completed[i] {
			mark = "x"
		}
		env.Tell(from, fmt.Sprintf("[%s] %d. %s", mark, i+1, desc))
	}
}
