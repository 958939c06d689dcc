package quest

import (
	"fmt"

	"github.com/crystal-mush/xmlattach/pkg/attach"
	"github.com/crystal-mush/xmlattach/pkg/codec"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

// Book holds quest tokens for a player. A locked book accepts no new
// quests and can only be read by its owner.
type Book struct {
	Owner  *gamedb.Entity
	Locked bool
}

var bookSchema = codec.NewSchema("QuestBook", codec.Fallthrough,
	codec.Group[Book]{
		Since: 0,
		Write: func(w codec.Writer, b *Book) {
			codec.WriteEntity(w, b.Owner)
			w.WriteBool(b.Locked)
		},
		Read: func(d *codec.Decoder, b *Book) {
			d.ReadEntity(func(e *gamedb.Entity) { b.Owner = e })
			b.Locked = d.ReadBool()
		},
	},
)

func (b *Book) RecordType() string                  { return "QuestBook" }
func (b *Book) EncodeRecord(w codec.Writer) error   { return bookSchema.Encode(w, b) }
func (b *Book) DecodeRecord(d *codec.Decoder) error { return bookSchema.Decode(d, b) }

func (b *Book) mayRead(from *gamedb.Entity) bool {
	return !b.Locked || from == b.Owner || from.Access >= gamedb.GameMaster
}

// Use lists the quests in the book.
func (b *Book) Use(env *attach.Env, self, from *gamedb.Entity) {
	if from == nil || (!from.Player && from.Access == gamedb.Player) {
		return
	}
	if b.Owner == nil && from.Player {
		b.Owner = from
	}
	if !b.mayRead(from) {
		env.Tell(from, "That book is locked.")
		return
	}
	n := 0
	for _, e := range env.World.Contents(self) {
		t, ok := e.Behavior.(*Token)
		if !ok {
			continue
		}
		n++
		env.Tell(from, fmt.Sprintf("%d. %s (%s)", n, e.Name, t.ExpirationString(env, e)))
	}
	if n == 0 {
		env.Tell(from, "The book is empty.")
	}
}

// Add puts a token into the book. Locked books and non-tokens are refused.
func (b *Book) Add(self, token *gamedb.Entity) bool {
	if b.Locked || token.IsDeleted() {
		return false
	}
	if _, ok := token.Behavior.(*Token); !ok {
		return false
	}
	token.Parent = self.Serial
	token.Layer = 0
	return true
}

// Invalidate tells the owner how many quests were lost and removes the
// book.
func (b *Book) Invalidate(env *attach.Env, self *gamedb.Entity) {
	if b.Owner != nil {
		env.Tell(b.Owner, fmt.Sprintf("%d Quests invalidated - '%s' removed", len(env.World.Contents(self)), self.Name))
	}
	env.Delete(self)
}
