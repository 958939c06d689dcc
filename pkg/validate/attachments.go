package validate

import (
	"fmt"

	"github.com/crystal-mush/xmlattach/pkg/attach"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
	"github.com/crystal-mush/xmlattach/pkg/script"
)

// AttachmentChecker reports attachments left on missing entities and
// attachments sharing a type and name on one entity.
type AttachmentChecker struct{}

func (c *AttachmentChecker) Name() string { return "attachments" }

func (c *AttachmentChecker) Check(w *gamedb.World, reg *attach.Registry) []Finding {
	var findings []Finding
	id := &ids{prefix: "attachment"}
	type key struct {
		on         gamedb.DBRef
		kind, name string
	}
	seen := map[key]bool{}

	reg.Each(func(a attach.Attachment) {
		b := a.Core()
		if b.IsDeleted() {
			return
		}
		on := b.AttachedTo()
		ref := gamedb.Nothing
		if on != nil {
			ref = on.Serial
		}
		if live, ok := w.Lookup(ref); on.IsDeleted() || !ok || live != on {
			findings = append(findings, Finding{
				ID:          id.next(),
				Category:    CatAttachment,
				Severity:    SevError,
				ObjectRef:   ref,
				Attachment:  a.RecordType(),
				Description: fmt.Sprintf("%s is attached to missing entity %s", a.RecordType(), ref),
				Effect:      "deletes the attachment",
				Fixable:     true,
				fix:         func() { reg.Delete(a) },
			})
			return
		}
		k := key{ref, a.RecordType(), b.Name}
		if b.Name != "" && seen[k] {
			findings = append(findings, Finding{
				ID:          id.next(),
				Category:    CatAttachment,
				Severity:    SevWarning,
				ObjectRef:   ref,
				Attachment:  a.RecordType(),
				Description: fmt.Sprintf("%s has more than one %s named %q", ref, a.RecordType(), b.Name),
			})
		}
		seen[k] = true
	})
	return findings
}

// ConditionChecker evaluates stored conditions against the entity they
// test and reports the ones that can never evaluate.
type ConditionChecker struct{}

func (c *ConditionChecker) Name() string { return "conditions" }

// conditions returns the condition strings a built-in attachment stores.
func conditions(a attach.Attachment) []string {
	switch a := a.(type) {
	case *attach.Use:
		return []string{a.Condition}
	case *attach.IsEnemy:
		return []string{a.Test}
	case *attach.DeathAction:
		return []string{a.Condition}
	default:
		return nil
	}
}

func (c *ConditionChecker) Check(_ *gamedb.World, reg *attach.Registry) []Finding {
	var findings []Finding
	id := &ids{prefix: "condition"}
	reg.Each(func(a attach.Attachment) {
		on := a.Core().AttachedTo()
		if a.Core().IsDeleted() || on.IsDeleted() {
			return
		}
		for _, cond := range conditions(a) {
			if cond == "" {
				continue
			}
			if _, err := script.Check(on, cond); err != nil {
				findings = append(findings, Finding{
					ID:          id.next(),
					Category:    CatCondition,
					Severity:    SevWarning,
					ObjectRef:   on.Serial,
					Attachment:  a.RecordType(),
					Description: fmt.Sprintf("%s condition on %s: %v", a.RecordType(), on.Serial, err),
					Current:     truncate(cond, 80),
				})
			}
		}
	})
	return findings
}
