// Package validate checks a loaded world for broken references, orphaned
// attachments and conditions that cannot evaluate. Most findings carry a
// fix that can be applied in place.
package validate

import (
	"errors"
	"fmt"
	"sort"

	"github.com/crystal-mush/xmlattach/pkg/attach"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

var (
	ErrNoFinding  = errors.New("validate: no such finding")
	ErrNotFixable = errors.New("validate: finding has no fix")
	ErrFixed      = errors.New("validate: finding already fixed")
)

// Category groups findings by what they are about.
type Category int

const (
	CatIntegrityError Category = iota // dangling parent, item layers
	CatIntegrityWarn                  // references that resolve but look wrong
	CatAttachment                     // orphaned or duplicated attachments
	CatCondition                      // conditions that cannot evaluate
)

var categoryNames = [...]string{"integrity-error", "integrity-warning", "attachment", "condition"}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "unknown"
	}
	return categoryNames[c]
}

// Severity of a finding. Only unfixed errors fail a load check.
type Severity int

const (
	SevError Severity = iota
	SevWarning
)

func (s Severity) String() string {
	switch s {
	case SevError:
		return "error"
	case SevWarning:
		return "warning"
	}
	return "unknown"
}

// Finding is one problem found in the world.
type Finding struct {
	ID          string       `json:"id"`
	Category    Category     `json:"category"`
	Severity    Severity     `json:"severity"`
	ObjectRef   gamedb.DBRef `json:"object_ref"`
	Attachment  string       `json:"attachment,omitempty"`
	Description string       `json:"description"`
	Current     string       `json:"current,omitempty"`
	Effect      string       `json:"effect,omitempty"`
	Fixable     bool         `json:"fixable"`
	Fixed       bool         `json:"fixed"`

	fix func()
}

// Checker inspects the world for one family of problems.
type Checker interface {
	Name() string
	Check(w *gamedb.World, reg *attach.Registry) []Finding
}

// Validator runs a set of checkers and keeps their findings for fixing.
type Validator struct {
	world    *gamedb.World
	reg      *attach.Registry
	checkers []Checker
	findings []Finding
}

// New returns a Validator with the integrity, attachment and condition
// checkers.
func New(w *gamedb.World, reg *attach.Registry) *Validator {
	return &Validator{
		world:    w,
		reg:      reg,
		checkers: []Checker{&IntegrityChecker{}, &AttachmentChecker{}, &ConditionChecker{}},
	}
}

// Run replaces the current findings with a fresh pass, ordered by object.
func (v *Validator) Run() []Finding {
	var out []Finding
	for _, c := range v.checkers {
		out = append(out, c.Check(v.world, v.reg)...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ObjectRef < out[j].ObjectRef })
	v.findings = out
	return out
}

func (f *Finding) apply() error {
	switch {
	case !f.Fixable || f.fix == nil:
		return fmt.Errorf("%w: %s", ErrNotFixable, f.ID)
	case f.Fixed:
		return fmt.Errorf("%w: %s", ErrFixed, f.ID)
	}
	f.fix()
	f.Fixed = true
	return nil
}

// ApplyFix applies the fix of the finding with the given ID.
func (v *Validator) ApplyFix(id string) error {
	for i := range v.findings {
		if v.findings[i].ID == id {
			return v.findings[i].apply()
		}
	}
	return fmt.Errorf("%w: %s", ErrNoFinding, id)
}

// ApplyAll fixes every outstanding fixable finding in cat and returns how
// many it fixed.
func (v *Validator) ApplyAll(cat Category) int {
	n := 0
	for i := range v.findings {
		if v.findings[i].Category == cat && v.findings[i].apply() == nil {
			n++
		}
	}
	return n
}

// Errors counts unfixed error findings.
func (v *Validator) Errors() int {
	n := 0
	for _, f := range v.findings {
		if f.Severity == SevError && !f.Fixed {
			n++
		}
	}
	return n
}

type ids struct {
	prefix string
	seq    int
}

func (s *ids) next() string {
	s.seq++
	return fmt.Sprintf("%s-%d", s.prefix, s.seq-1)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
