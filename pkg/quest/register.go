package quest

import (
	"time"

	"github.com/crystal-mush/xmlattach/pkg/codec"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

// RegisterAttachments adds the quest attachment types to reg.
func RegisterAttachments(reg *codec.Registry) {
	reg.Register("QuestPoints", func() codec.Record { return &Points{} })
}

// RegisterBehaviors adds the quest behaviors to reg.
func RegisterBehaviors(reg *codec.Registry) {
	reg.Register("QuestToken", func() codec.Record { return NewToken(time.Time{}) })
	reg.Register("QuestBook", func() codec.Record { return &Book{} })
}

// DefineCatalog adds spawnable quest items.
func DefineCatalog(w *gamedb.World, now func() time.Time) {
	w.Define("questtoken", gamedb.Template{Kind: gamedb.KindItem, Name: "a quest",
		Behavior: func() gamedb.Behavior { return NewToken(now()) }})
	w.Define("questbook", gamedb.Template{Kind: gamedb.KindItem, Name: "a quest book",
		Behavior: func() gamedb.Behavior { return &Book{} }})
}
