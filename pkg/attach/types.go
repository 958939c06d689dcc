package attach

import (
	"fmt"

	"github.com/crystal-mush/xmlattach/pkg/codec"
)

// RegisterBuiltins adds the stock attachment types to reg.
func RegisterBuiltins(reg *codec.Registry) {
	reg.Register("AddKarma", func() codec.Record { return &AddKarma{} })
	reg.Register("IsEnemy", func() codec.Record { return &IsEnemy{} })
	reg.Register("Hue", func() codec.Record { return &Hue{} })
	reg.Register("Freeze", func() codec.Record { return &Freeze{} })
	reg.Register("Poison", func() codec.Record { return &Poison{} })
	reg.Register("Skill", func() codec.Record { return &Skill{} })
	reg.Register("DeathAction", func() codec.Record { return &DeathAction{} })
	reg.Register("EnemyMastery", func() codec.Record { return &EnemyMastery{} })
	reg.Register("Use", func() codec.Record { return NewUse() })
	reg.Register("RestrictEquip", func() codec.Record { return &RestrictEquip{} })
	reg.Register("FindAttachment", func() codec.Record { return &FindAttachment{} })
}

// New builds an empty attachment of the named type for decoding.
func New(reg *codec.Registry, typeName string) (Attachment, error) {
	rec, err := reg.New(typeName)
	if err != nil {
		return nil, err
	}
	a, ok := rec.(Attachment)
	if !ok {
		return nil, fmt.Errorf("attach: %s is not an attachment", typeName)
	}
	return a, nil
}
