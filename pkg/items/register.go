package items

import (
	"github.com/crystal-mush/xmlattach/pkg/codec"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

// RegisterBehaviors adds the item behaviors to reg.
func RegisterBehaviors(reg *codec.Registry) {
	reg.Register("Lever", func() codec.Record { return NewLever() })
	reg.Register("Switch", func() codec.Record { return NewSwitch() })
	reg.Register("SingleUseSwitch", func() codec.Record { return NewSingleUseSwitch() })
	reg.Register("CombinationLock", func() codec.Record { return NewCombinationLock() })
	reg.Register("SimpleMap", func() codec.Record { return &SimpleMap{} })
	reg.Register("LeadersBoard", func() codec.Record { return &LeadersBoard{} })
}

// DefineCatalog adds spawnable templates for the item behaviors.
func DefineCatalog(w *gamedb.World) {
	w.Define("lever", gamedb.Template{Kind: gamedb.KindItem, Name: "a lever",
		Behavior: func() gamedb.Behavior { return NewLever() }})
	w.Define("switch", gamedb.Template{Kind: gamedb.KindItem, Name: "a switch",
		Behavior: func() gamedb.Behavior { return NewSwitch() }})
	w.Define("singleuseswitch", gamedb.Template{Kind: gamedb.KindItem, Name: "a brittle switch",
		Behavior: func() gamedb.Behavior { return NewSingleUseSwitch() }})
	w.Define("combinationlock", gamedb.Template{Kind: gamedb.KindItem, Name: "a combination lock",
		Behavior: func() gamedb.Behavior { return NewCombinationLock() }})
	w.Define("simplemap", gamedb.Template{Kind: gamedb.KindItem, Name: "a map",
		Behavior: func() gamedb.Behavior { return &SimpleMap{} }})
	w.Define("leadersboard", gamedb.Template{Kind: gamedb.KindItem, Name: "a leader board",
		Behavior: func() gamedb.Behavior { return &LeadersBoard{} }})
}
