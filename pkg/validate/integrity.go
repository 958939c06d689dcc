package validate

import (
	"fmt"

	"github.com/crystal-mush/xmlattach/pkg/attach"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

// maxDepth bounds a containment walk.
const maxDepth = 50000

// IntegrityChecker performs referential integrity checks on entities.
type IntegrityChecker struct{}

func (c *IntegrityChecker) Name() string { return "integrity" }

func (c *IntegrityChecker) Check(w *gamedb.World, _ *attach.Registry) []Finding {
	var findings []Finding
	id := &ids{prefix: "integrity"}

	w.Each(func(e *gamedb.Entity) {
		if e.Deleted {
			return
		}
		ref := e.Serial

		// Parent should exist and be live
		if e.Parent != gamedb.Nothing {
			if p, ok := w.Lookup(e.Parent); !ok || p.Deleted {
				findings = append(findings, Finding{
					ID:          id.next(),
					Category:    CatIntegrityError,
					Severity:    SevError,
					ObjectRef:   ref,
					Description: fmt.Sprintf("%s parent %s does not exist", ref, e.Parent),
					Effect:      "moves the entity to the ground",
					Fixable:     true,
					fix:         func() { e.Parent = gamedb.Nothing; e.Layer = 0 },
				})
			} else if _, loop := walkHolders(w, e); loop {
				findings = append(findings, Finding{
					ID:          id.next(),
					Category:    CatIntegrityError,
					Severity:    SevError,
					ObjectRef:   ref,
					Description: fmt.Sprintf("%s containment chain has a loop", ref),
					Effect:      "moves the entity to the ground",
					Fixable:     true,
					fix:         func() { e.Parent = gamedb.Nothing; e.Layer = 0 },
				})
			}
		}

		if depth, _ := walkHolders(w, e); depth > maxDepth {
			findings = append(findings, Finding{
				ID:          id.next(),
				Category:    CatIntegrityError,
				Severity:    SevError,
				ObjectRef:   ref,
				Description: fmt.Sprintf("%s containment chain exceeds %d entries", ref, maxDepth),
			})
		}

		// An equipped layer only means something on a held item
		if e.Layer != 0 && (e.IsMobile() || e.Parent == gamedb.Nothing) {
			findings = append(findings, Finding{
				ID:          id.next(),
				Category:    CatIntegrityWarn,
				Severity:    SevWarning,
				ObjectRef:   ref,
				Description: fmt.Sprintf("%s has layer %d but is not held", ref, e.Layer),
				Effect:      "clears the layer",
				Fixable:     true,
				fix:         func() { e.Layer = 0 },
			})
		}

		if e.Player && !e.IsMobile() {
			findings = append(findings, Finding{
				ID:          id.next(),
				Category:    CatIntegrityWarn,
				Severity:    SevWarning,
				ObjectRef:   ref,
				Description: fmt.Sprintf("%s is an item flagged as a player", ref),
			})
		}

		// Item-bound skill mods need their item
		for _, m := range e.SkillMods {
			if m.Item == gamedb.Nothing {
				continue
			}
			if it, ok := w.Lookup(m.Item); !ok || it.Deleted {
				skill := m.Skill
				findings = append(findings, Finding{
					ID:          id.next(),
					Category:    CatIntegrityWarn,
					Severity:    SevWarning,
					ObjectRef:   ref,
					Description: fmt.Sprintf("%s %s mod is bound to missing item %s", ref, skill, m.Item),
					Effect:      "drops the mod",
					Fixable:     true,
					fix:         func() { dropSkillMods(e, w) },
				})
			}
		}
	})

	return findings
}

// walkHolders counts the holders above e and reports whether the chain
// comes back around, stopping past maxDepth.
func walkHolders(w *gamedb.World, e *gamedb.Entity) (depth int, loop bool) {
	seen := map[gamedb.DBRef]bool{e.Serial: true}
	for cur := e; cur.Parent != gamedb.Nothing && depth <= maxDepth; depth++ {
		if seen[cur.Parent] {
			return depth, true
		}
		p, ok := w.Lookup(cur.Parent)
		if !ok {
			break
		}
		seen[p.Serial] = true
		cur = p
	}
	return depth, false
}

// dropSkillMods removes the mods on e whose item no longer exists.
func dropSkillMods(e *gamedb.Entity, w *gamedb.World) {
	kept := e.SkillMods[:0]
	for _, m := range e.SkillMods {
		if m.Item != gamedb.Nothing {
			if it, ok := w.Lookup(m.Item); !ok || it.Deleted {
				continue
			}
		}
		kept = append(kept, m)
	}
	e.SkillMods = kept
}
