package attach

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/crystal-mush/xmlattach/pkg/codec"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

func TestAddKarma(t *testing.T) {
	f := newFixture()
	p := f.mobile("Alice", true)
	ak := NewAddKarma(25)
	f.mustAttach(t, p, ak)
	if p.Karma != 25 || p.LastMessage() != "You have gained 25 karma" {
		t.Errorf("karma=%d msg=%q", p.Karma, p.LastMessage())
	}
	if ak.IsDeleted() {
		t.Error("AddKarma deleted inline")
	}
	f.timers.Tick()
	if !ak.IsDeleted() {
		t.Error("AddKarma not removed after tick")
	}

	it := f.item("a rock")
	onItem := NewAddKarma(5)
	f.mustAttach(t, it, onItem)
	if !onItem.IsDeleted() {
		t.Error("AddKarma on an item should remove itself")
	}

	orc := f.mobile("an orc", false)
	f.mustAttach(t, orc, NewAddKarma(-10))
	if orc.Karma != 0 {
		t.Errorf("non-player got karma on attach: %d", orc.Karma)
	}
	f.reg.DispatchKilled(KillEvent{Killer: p, Victim: orc})
	if p.Karma != 15 || p.LastMessage() != "You have lost 10 karma" {
		t.Errorf("killer karma=%d msg=%q", p.Karma, p.LastMessage())
	}
}

func TestIdentifyAccess(t *testing.T) {
	f := newFixture()
	orc := f.mobile("an orc", false)
	ie := NewIsEnemy("Karma<0")
	ie.Name = "hostile"
	f.mustAttach(t, orc, ie)
	f.mustAttach(t, orc, NewAddKarma(3))

	player := f.mobile("Alice", true)
	counselor := f.mobile("Carl", true)
	counselor.Access = gamedb.Counselor
	gm := f.mobile("Gina", true)
	gm.Access = gamedb.GameMaster

	if got := f.reg.Identify(player, orc); len(got) != 1 || got[0] != "3 Karma" {
		t.Errorf("player sees %q", got)
	}
	got := f.reg.Identify(counselor, orc)
	if len(got) != 2 || got[0] != "hostile: IsEnemy 'Karma<0'" {
		t.Errorf("counselor sees %q", got)
	}
	if got := f.reg.Identify(gm, orc); len(got) != 4 {
		t.Errorf("gm sees %q", got)
	}
}

func TestIsEnemy(t *testing.T) {
	f := newFixture()
	guard := f.mobile("a guard", false)
	guard.Karma = -50
	ie := NewIsEnemy("Karma<0")
	f.mustAttach(t, guard, ie)
	if !ie.IsEnemy(f.mobile("Alice", true)) {
		t.Error("test against the attached entity should pass")
	}
	if ie.IsEnemy(nil) {
		t.Error("nil mobile is never an enemy")
	}
}

func TestPoisonLevels(t *testing.T) {
	tests := []struct {
		level int
		want  gamedb.PoisonLevel
	}{
		{-3, gamedb.PoisonLesser},
		{0, gamedb.PoisonLesser},
		{1, gamedb.PoisonRegular},
		{2, gamedb.PoisonGreater},
		{3, gamedb.PoisonDeadly},
		{9, gamedb.PoisonLethal},
	}
	for _, tt := range tests {
		if got := NewPoison(tt.level).PoisonLevel(); got != tt.want {
			t.Errorf("level %d = %v, want %v", tt.level, got, tt.want)
		}
	}

	f := newFixture()
	spider := f.mobile("a spider", false)
	p := NewPoison(2)
	f.mustAttach(t, spider, p)
	if spider.PoisonImmune != gamedb.PoisonGreater || spider.HitPoison != gamedb.PoisonGreater {
		t.Errorf("immune=%v hit=%v", spider.PoisonImmune, spider.HitPoison)
	}
	f.reg.Delete(p)
	if spider.PoisonImmune != gamedb.PoisonNone || spider.HitPoison != gamedb.PoisonNone {
		t.Error("Poison delete left the levels set")
	}
}

func TestFindAttachmentPlayersOnly(t *testing.T) {
	f := newFixture()
	fa := NewFindAttachment()
	f.mustAttach(t, f.mobile("an orc", false), fa)
	if !fa.IsDeleted() {
		t.Error("FindAttachment kept on a non-player")
	}
	keep := NewFindAttachment()
	f.mustAttach(t, f.mobile("Alice", true), keep)
	if keep.IsDeleted() {
		t.Error("FindAttachment removed from a player")
	}
	data, err := codec.Marshal(keep)
	if err != nil || len(data) != 0 {
		t.Errorf("FindAttachment should store nothing: %d bytes, %v", len(data), err)
	}
}

func TestRestrictEquip(t *testing.T) {
	f := newFixture()
	sword := f.item("a paladin sword")
	f.mustAttach(t, sword, NewRestrictEquip("Karma>100"))

	rogue := f.mobile("Rogue", true)
	if f.reg.CanEquip(rogue, sword) {
		t.Error("low-karma mobile allowed to equip")
	}
	if rogue.LastMessage() != DefaultRestrictMessage {
		t.Errorf("message = %q", rogue.LastMessage())
	}
	paladin := f.mobile("Paladin", true)
	paladin.Karma = 500
	if !f.reg.CanEquip(paladin, sword) {
		t.Error("high-karma mobile refused")
	}
	if !f.reg.CanEquip(rogue, f.item("a stick")) {
		t.Error("unrestricted item refused")
	}
}

func TestSkillSpeechOnCarriedItem(t *testing.T) {
	f := newFixture()
	p := f.mobile("Alice", true)
	ring := f.item("a ring")
	ring.Parent = p.Serial
	sk := NewSkill("power", "Archery")
	f.mustAttach(t, ring, sk)

	f.reg.DispatchSpeech(SpeechEvent{Speaker: p, Text: "hello"})
	if len(p.SkillMods) != 0 {
		t.Fatal("wrong word triggered the skill")
	}
	f.reg.DispatchSpeech(SpeechEvent{Speaker: p, Text: "power"})
	if len(p.SkillMods) != 1 {
		t.Fatalf("SkillMods = %v", p.SkillMods)
	}
	mod := p.SkillMods[0]
	if mod.Skill != "Archery" || mod.Value != 10 || !mod.Expires.Equal(f.clock.Now().Add(30*time.Minute)) {
		t.Errorf("mod = %+v", mod)
	}
	f.timers.Tick()
	if !sk.IsDeleted() {
		t.Error("Skill not removed after triggering")
	}
}

func TestSkillWithoutWordAppliesOnAttach(t *testing.T) {
	f := newFixture()
	p := f.mobile("Alice", true)
	sk := NewSkill("", "Magery")
	f.mustAttach(t, p, sk)
	if len(p.SkillMods) != 1 {
		t.Fatalf("SkillMods = %v", p.SkillMods)
	}
	f.timers.Tick()
	if !sk.IsDeleted() {
		t.Error("Skill not removed")
	}
}

func TestDeathAction(t *testing.T) {
	f := newFixture()
	orc := f.mobile("an orc", false)
	orc.Karma = -5
	corpse := f.item("a corpse")
	da := NewDeathAction("SET/Name/a looted corpse")
	da.Condition = "Karma<0"
	f.mustAttach(t, orc, da)

	f.reg.DispatchKilled(KillEvent{Victim: orc, Corpse: corpse})
	if corpse.Name != "a looted corpse" {
		t.Errorf("corpse name = %q", corpse.Name)
	}

	saint := f.mobile("a saint", false)
	saint.Karma = 100
	da2 := NewDeathAction("SET/Name/fallen")
	da2.Condition = "Karma<0"
	f.mustAttach(t, saint, da2)
	f.reg.DispatchKilled(KillEvent{Victim: saint})
	if saint.Name != "a saint" {
		t.Errorf("condition ignored: %q", saint.Name)
	}
}

func TestEnemyMastery(t *testing.T) {
	f := newFixture()
	p := f.mobile("Alice", true)
	em := NewEnemyMastery("orc")
	f.mustAttach(t, p, em)
	if !strings.Contains(p.LastMessage(), "Enemy Mastery over orc") {
		t.Errorf("attach message = %q", p.LastMessage())
	}
	orc := f.mobile("an orc", false)
	orc.TypeName = "Orc"
	wolf := f.mobile("a wolf", false)
	wolf.TypeName = "wolf"

	f.reg.Env().Rand = func(int) int { return 0 }
	if extra := f.reg.DispatchWeaponHit(HitEvent{Attacker: p, Defender: orc, Damage: 30}); extra != 15 {
		t.Errorf("extra vs orc = %d", extra)
	}
	if extra := f.reg.DispatchWeaponHit(HitEvent{Attacker: p, Defender: wolf, Damage: 30}); extra != 0 {
		t.Errorf("extra vs wolf = %d", extra)
	}
	f.reg.Env().Rand = func(int) int { return 99 }
	if extra := f.reg.DispatchWeaponHit(HitEvent{Attacker: p, Defender: orc, Damage: 30}); extra != 0 {
		t.Errorf("failed chance still dealt %d", extra)
	}

	f.reg.Delete(em)
	if !strings.HasSuffix(p.LastMessage(), "fades..") {
		t.Errorf("delete message = %q", p.LastMessage())
	}
}

func TestUseRouting(t *testing.T) {
	f := newFixture()
	lever := f.item("a lever")
	p := f.mobile("Alice", true)
	p.Location = gamedb.Point3D{X: 10}

	u := NewUse()
	u.Refractory = 10 * time.Second
	u.MaxUses = 1
	u.SuccessAction = "SET/Hue/5"
	u.RefractoryAction = "SET/Name/cooling"
	u.MaxUsesAction = "SET/Name/spent"
	f.mustAttach(t, lever, u)

	if !f.reg.DispatchUse(p, lever) {
		t.Error("out-of-range use should block the default")
	}
	if p.LastMessage() != TooFarMessage {
		t.Errorf("message = %q", p.LastMessage())
	}

	p.Location = gamedb.Point3D{X: 2}
	if f.reg.DispatchUse(p, lever) {
		t.Error("successful use blocked the default")
	}
	if lever.Hue != 5 || u.NUses != 1 {
		t.Fatalf("hue=%d uses=%d", lever.Hue, u.NUses)
	}

	f.reg.DispatchUse(p, lever)
	if lever.Name != "cooling" {
		t.Errorf("refractory not reported first: name = %q", lever.Name)
	}

	f.clock.Advance(10 * time.Second)
	f.reg.DispatchUse(p, lever)
	if lever.Name != "spent" {
		t.Errorf("max uses not reported: name = %q", lever.Name)
	}
}

func TestUseConditionFailure(t *testing.T) {
	f := newFixture()
	door := f.item("a door")
	p := f.mobile("Alice", true)
	u := NewUse()
	u.Condition = "Hue=99"
	u.FailureAction = "SET/Name/locked door"
	f.mustAttach(t, door, u)

	f.reg.DispatchUse(p, door)
	if door.Name != "locked door" || u.NUses != 0 {
		t.Errorf("name=%q uses=%d", door.Name, u.NUses)
	}
}

func TestUseCarriedAndContained(t *testing.T) {
	f := newFixture()
	p := f.mobile("Alice", true)
	other := f.mobile("Bob", true)
	wand := f.item("a wand")
	wand.Parent = p.Serial
	u := NewUse()
	u.SuccessAction = "SET/Hue/1"
	f.mustAttach(t, wand, u)

	f.reg.DispatchUse(p, wand)
	if wand.Hue != 1 {
		t.Error("carried use refused with AllowCarried")
	}
	f.reg.DispatchUse(other, wand)
	if other.LastMessage() != TooFarMessage {
		t.Errorf("use of another's pack item: %q", other.LastMessage())
	}
}

func TestUseTargeting(t *testing.T) {
	f := newFixture()
	p := f.mobile("Alice", true)
	wand := f.item("a wand")
	wand.Parent = p.Serial

	u := NewUse()
	u.TargetingEnabled = true
	u.TargetingAction = "SET/Name/a glowing wand"
	u.TargetCondition = "Hue=3"
	u.SuccessAction = "SET/Name/zapped"
	u.TargetFailureAction = "SET/Name/fizzled"
	f.mustAttach(t, wand, u)

	f.reg.DispatchUse(p, wand)
	if wand.Name != "a glowing wand" || !f.reg.HasTarget(p) {
		t.Fatalf("targeting not started: name=%q", wand.Name)
	}
	blue := f.item("blue rock")
	blue.Hue = 3
	if !f.reg.CompleteTarget(p, blue) {
		t.Fatal("no pending target")
	}
	if blue.Name != "zapped" || u.NUses != 1 {
		t.Errorf("name=%q uses=%d", blue.Name, u.NUses)
	}

	f.reg.DispatchUse(p, wand)
	red := f.item("red rock")
	f.reg.CompleteTarget(p, red)
	if red.Name != "fizzled" {
		t.Errorf("target failure: %q", red.Name)
	}
	if f.reg.CompleteTarget(p, red) {
		t.Error("target request should be consumed")
	}
}

func TestUseVersionZeroKeepsDefaults(t *testing.T) {
	src := NewUse()
	src.MaxRange = 7
	src.MaxUses = 4
	src.NUses = 2
	src.BlockDefault = true
	src.Condition = "Hue=1"
	src.SuccessAction = "MSG/ok"
	src.AllowCarried = false
	src.MaxTargetRange = 5
	src.TargetingEnabled = true

	var buf bytes.Buffer
	if err := src.EncodeRecordAt(codec.NewBinaryWriter(&buf), 0); err != nil {
		t.Fatal(err)
	}
	reg := codec.NewRegistry()
	RegisterBuiltins(reg)
	a, err := New(reg, "use")
	if err != nil {
		t.Fatal(err)
	}
	if err := codec.Unmarshal(buf.Bytes(), a, nil); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	got := a.(*Use)
	if got.MaxRange != 7 || got.MaxUses != 4 || got.NUses != 2 || !got.BlockDefault ||
		got.Condition != "Hue=1" || got.SuccessAction != "MSG/ok" {
		t.Errorf("v0 fields lost: %+v", got)
	}
	if got.MaxTargetRange != 30 || !got.AllowCarried || got.TargetingEnabled {
		t.Errorf("later fields not at defaults: range=%d carried=%v targeting=%v",
			got.MaxTargetRange, got.AllowCarried, got.TargetingEnabled)
	}
}

func TestUseRefractorySurvivesReload(t *testing.T) {
	f := newFixture()
	it := f.item("a bell")
	p := f.mobile("Alice", true)
	u := NewUse()
	u.Refractory = time.Minute
	u.SuccessAction = "SET/Hue/9"
	f.mustAttach(t, it, u)
	f.reg.DispatchUse(p, it)
	f.clock.Advance(20 * time.Second)

	data, err := codec.Marshal(u)
	if err != nil {
		t.Fatal(err)
	}
	got := NewUse()
	if err := codec.Unmarshal(data, got, nil); err != nil {
		t.Fatal(err)
	}
	f2 := newFixture()
	it2 := f2.item("a bell")
	if err := f2.reg.Load(got, it2); err != nil {
		t.Fatal(err)
	}
	if got.CanUse(f2.reg.Env(), f2.mobile("Alice", true), it2) {
		t.Error("refractory period lost across reload")
	}
	f2.clock.Advance(40 * time.Second)
	if !got.CanUse(f2.reg.Env(), f2.mobile("Bob", true), it2) {
		t.Error("refractory period did not end")
	}
}
