package npc

import (
	"github.com/crystal-mush/xmlattach/pkg/codec"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

func RegisterAttachments(reg *codec.Registry) {
	reg.Register("Dialog", func() codec.Record { return NewDialog() })
}

func RegisterBehaviors(reg *codec.Registry) {
	reg.Register("TalkingCreature", func() codec.Record { return NewTalkingCreature() })
	reg.Register("Escortable", func() codec.Record { return &Escortable{} })
}

// DefineCatalog adds spawnable NPCs.
func DefineCatalog(w *gamedb.World) {
	w.Define("talkingcreature", gamedb.Template{Kind: gamedb.KindMobile, Name: "a townsperson", Hits: 50,
		Behavior: func() gamedb.Behavior { return NewTalkingCreature() }})
	w.Define("escortable", gamedb.Template{Kind: gamedb.KindMobile, Name: "a traveler", Hits: 50,
		Behavior: func() gamedb.Behavior { return &Escortable{} }})
}
