package validate

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/crystal-mush/xmlattach/pkg/attach"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
	"github.com/crystal-mush/xmlattach/pkg/script"
	"github.com/crystal-mush/xmlattach/pkg/timer"
)

func makeTestWorld(entities ...*gamedb.Entity) (*gamedb.World, *attach.Registry) {
	w := gamedb.NewWorld()
	for _, e := range entities {
		w.Add(e)
	}
	clock := timer.NewManualClock(time.Unix(1_700_000_000, 0))
	return w, attach.NewRegistry(w, timer.New(clock.Now), script.NewEngine(w))
}

func item(name string) *gamedb.Entity { return gamedb.NewEntity(gamedb.KindItem, name) }

func count(findings []Finding, cat Category) int {
	n := 0
	for _, f := range findings {
		if f.Category == cat {
			n++
		}
	}
	return n
}

func TestMissingParentFix(t *testing.T) {
	box := item("a box")
	box.Parent = 999
	box.Layer = 2
	w, reg := makeTestWorld(box)

	v := New(w, reg)
	findings := v.Run()
	if count(findings, CatIntegrityError) != 1 {
		t.Fatalf("findings = %+v", findings)
	}
	if v.Errors() != 1 {
		t.Errorf("Errors = %d", v.Errors())
	}
	if n := v.ApplyAll(CatIntegrityError); n != 1 {
		t.Fatalf("applied %d", n)
	}
	if box.Parent != gamedb.Nothing || box.Layer != 0 {
		t.Errorf("box parent=%s layer=%d", box.Parent, box.Layer)
	}
	if v.Errors() != 0 {
		t.Errorf("Errors after fix = %d", v.Errors())
	}
	if err := v.ApplyFix(findings[0].ID); !errors.Is(err, ErrFixed) {
		t.Errorf("second fix: err = %v", err)
	}
	if err := v.ApplyFix("integrity-99"); !errors.Is(err, ErrNoFinding) {
		t.Errorf("unknown id: err = %v", err)
	}

	if got := New(w, reg).Run(); len(got) != 0 {
		t.Errorf("clean world has findings: %+v", got)
	}
}

func TestContainmentLoop(t *testing.T) {
	a, b := item("a"), item("b")
	w, reg := makeTestWorld(a, b)
	a.Parent, b.Parent = b.Serial, a.Serial

	findings := New(w, reg).Run()
	if n := count(findings, CatIntegrityError); n != 2 {
		t.Fatalf("loop findings = %d: %+v", n, findings)
	}
	for _, f := range findings {
		if !strings.Contains(f.Description, "loop") {
			t.Errorf("description = %q", f.Description)
		}
	}
}

func TestWarnings(t *testing.T) {
	ground := item("a ring")
	ground.Layer = 3
	m := gamedb.NewEntity(gamedb.KindMobile, "Alice")
	m.SkillMods = []gamedb.SkillMod{{Skill: "Magery", Value: 5, Item: 12345}, {Skill: "Archery", Value: 1, Item: gamedb.Nothing}}
	w, reg := makeTestWorld(ground, m)

	v := New(w, reg)
	findings := v.Run()
	if n := count(findings, CatIntegrityWarn); n != 2 {
		t.Fatalf("warnings = %+v", findings)
	}
	if v.Errors() != 0 {
		t.Errorf("warnings counted as errors")
	}
	v.ApplyAll(CatIntegrityWarn)
	if ground.Layer != 0 || len(m.SkillMods) != 1 || m.SkillMods[0].Skill != "Archery" {
		t.Errorf("layer=%d mods=%+v", ground.Layer, m.SkillMods)
	}
}

func TestOrphanedAttachment(t *testing.T) {
	gate := item("a gate")
	w, reg := makeTestWorld(gate)
	if err := reg.AttachTo(gate, attach.NewIsEnemy("Karma<0")); err != nil {
		t.Fatal(err)
	}
	// Bypassing the registry leaves the attachment behind.
	w.Delete(gate)

	v := New(w, reg)
	findings := v.Run()
	if count(findings, CatAttachment) != 1 || findings[0].Attachment != "IsEnemy" {
		t.Fatalf("findings = %+v", findings)
	}
	if err := v.ApplyFix(findings[0].ID); err != nil {
		t.Fatal(err)
	}
	if reg.Count() != 0 {
		t.Errorf("attachments left = %d", reg.Count())
	}
}

func TestConditionChecker(t *testing.T) {
	good, bad := item("good"), item("bad")
	w, reg := makeTestWorld(good, bad)
	if err := reg.AttachTo(good, attach.NewIsEnemy("Karma<0")); err != nil {
		t.Fatal(err)
	}
	if err := reg.AttachTo(bad, attach.NewIsEnemy("Bogus>1")); err != nil {
		t.Fatal(err)
	}
	findings := New(w, reg).Run()
	if len(findings) != 1 || findings[0].ObjectRef != bad.Serial || findings[0].Current != "Bogus>1" {
		t.Fatalf("findings = %+v", findings)
	}
	if findings[0].Fixable {
		t.Error("condition finding marked fixable")
	}
}

func TestReport(t *testing.T) {
	box := item("a box")
	box.Parent = 999
	ring := item("a ring")
	ring.Layer = 1
	w, reg := makeTestWorld(box, ring)
	v := New(w, reg)
	v.Run()

	r := GenerateReport(v)
	if r.TotalFindings != 2 || r.Errors != v.Errors() {
		t.Fatalf("total = %d errors = %d", r.TotalFindings, r.Errors)
	}
	if cs := r.Categories["integrity-error"]; cs.Total != 1 || cs.Fixable != 1 || cs.Label == "" {
		t.Errorf("integrity-error = %+v", cs)
	}
	var buf bytes.Buffer
	if err := r.WriteJSON(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"total_findings": 2`) {
		t.Errorf("json = %s", buf.String())
	}
}

func TestCategoryString(t *testing.T) {
	tests := []struct {
		c    Category
		want string
	}{
		{CatIntegrityError, "integrity-error"},
		{CatIntegrityWarn, "integrity-warning"},
		{CatAttachment, "attachment"},
		{CatCondition, "condition"},
		{Category(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.c.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.c, got, tt.want)
		}
	}
}
