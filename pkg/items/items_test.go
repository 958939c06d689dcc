package items

import (
	"bytes"
	"testing"
	"time"

	"github.com/crystal-mush/xmlattach/pkg/attach"
	"github.com/crystal-mush/xmlattach/pkg/codec"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
	"github.com/crystal-mush/xmlattach/pkg/script"
	"github.com/crystal-mush/xmlattach/pkg/timer"
)

type fixture struct {
	world  *gamedb.World
	timers *timer.Scheduler
	reg    *attach.Registry
	env    *attach.Env
	player *gamedb.Entity
}

func newFixture() *fixture {
	f := &fixture{world: gamedb.NewWorld()}
	clock := timer.NewManualClock(time.Unix(1_700_000_000, 0))
	f.timers = timer.New(clock.Now)
	f.reg = attach.NewRegistry(f.world, f.timers, script.NewEngine(f.world))
	f.env = f.reg.Env()
	f.player = gamedb.NewEntity(gamedb.KindMobile, "Alice")
	f.player.Player = true
	f.world.Add(f.player)
	return f
}

func (f *fixture) item(name string, b gamedb.Behavior) *gamedb.Entity {
	it := gamedb.NewEntity(gamedb.KindItem, name)
	it.Behavior = b
	f.world.Add(it)
	return it
}

func TestLeverCyclesAndAppliesTargets(t *testing.T) {
	f := newFixture()
	door := f.item("a door", nil)
	l := NewLever()
	l.Targets[0] = Target{Entity: door, Property: "Hue/0"}
	l.Targets[1] = Target{Entity: door, Property: "Hue/1153"}
	self := f.item("a lever", l)

	l.Use(f.env, self, f.player)
	if l.State != 1 || door.Hue != 1153 {
		t.Fatalf("state=%d hue=%d", l.State, door.Hue)
	}
	l.Use(f.env, self, f.player)
	if l.State != 0 || door.Hue != 0 {
		t.Fatalf("two-state lever did not wrap: state=%d hue=%d", l.State, door.Hue)
	}

	l.Type = ThreeState
	for _, want := range []int{1, 2, 0} {
		l.Use(f.env, self, f.player)
		if l.State != want {
			t.Errorf("three-state: state=%d, want %d", l.State, want)
		}
	}
}

func TestLeverActivateClamps(t *testing.T) {
	f := newFixture()
	l := NewLever()
	self := f.item("a lever", l)
	tests := []struct {
		typ   LeverType
		state int
		want  int
	}{
		{TwoState, -3, 0},
		{TwoState, 5, 1},
		{ThreeState, 5, 2},
		{ThreeState, 1, 1},
	}
	for _, tt := range tests {
		l.Type = tt.typ
		l.Activate(f.env, self, nil, tt.state, nil)
		if l.State != tt.want {
			t.Errorf("%v Activate(%d): state=%d, want %d", tt.typ, tt.state, l.State, tt.want)
		}
	}
}

func TestLeverOutOfReachAndDisabled(t *testing.T) {
	f := newFixture()
	l := NewLever()
	self := f.item("a lever", l)
	self.Location = gamedb.Point3D{X: 10}

	l.Use(f.env, self, f.player)
	if l.State != 0 || f.player.LastMessage() != attach.TooFarMessage {
		t.Errorf("state=%d msg=%q", l.State, f.player.LastMessage())
	}

	self.Location = gamedb.Point3D{}
	l.Disabled = true
	l.Use(f.env, self, f.player)
	l.Activate(f.env, self, f.player, 1, nil)
	if l.State != 0 {
		t.Errorf("disabled lever moved to %d", l.State)
	}
}

func TestLinkCycleTerminates(t *testing.T) {
	f := newFixture()
	a, b := NewLever(), NewSwitch()
	lamp := f.item("a lamp", nil)
	b.Targets[1] = Target{Entity: lamp, Property: "Hue/33"}
	ea := f.item("lever a", a)
	eb := f.item("switch b", b)
	a.Link = eb
	b.Link = ea

	a.Use(f.env, ea, f.player)
	if a.State != 1 || b.State != 1 || lamp.Hue != 33 {
		t.Errorf("a=%d b=%d hue=%d", a.State, b.State, lamp.Hue)
	}
}

func TestLeverV0DecodeKeepsDefaults(t *testing.T) {
	f := newFixture()
	door := f.item("a door", nil)
	link := f.item("a switch", NewSwitch())

	src := NewLever()
	src.State = 1
	src.Type = ThreeState
	src.Targets[2] = Target{Entity: door, Property: "Hue/5"}
	src.Link = link
	src.Disabled = true

	var buf bytes.Buffer
	w := codec.NewBinaryWriter(&buf)
	if err := src.EncodeRecordAt(w, 0); err != nil {
		t.Fatal(err)
	}
	var fx codec.Fixups
	got := NewLever()
	if err := got.DecodeRecord(codec.NewDecoder(codec.NewBinaryReader(&buf), &fx)); err != nil {
		t.Fatalf("decode: %v", err)
	}
	fx.Run(f.world)
	if got.State != 1 || got.Type != ThreeState || got.Sound != 936 {
		t.Errorf("v0 fields: %+v", got)
	}
	if got.Targets[2].Entity != door || got.Targets[2].Property != "Hue/5" {
		t.Errorf("target = %+v", got.Targets[2])
	}
	if got.Link != nil || got.Disabled {
		t.Errorf("later groups leaked into v0: link=%v disabled=%v", got.Link, got.Disabled)
	}
}

func TestSingleUseSwitchDeletesAfterTick(t *testing.T) {
	f := newFixture()
	s := NewSingleUseSwitch()
	self := f.item("a brittle switch", s)

	f.reg.UseEntity(f.player, self)
	if s.State != 1 {
		t.Fatalf("state = %d", s.State)
	}
	if self.IsDeleted() {
		t.Fatal("deleted before the tick")
	}
	f.timers.Tick()
	if !self.IsDeleted() {
		t.Error("switch survived its single use")
	}
}

func TestClampDigit(t *testing.T) {
	for _, tt := range []struct{ in, want int }{{-5, 0}, {0, 0}, {7, 7}, {9, 9}, {15, 9}} {
		if got := ClampDigit(tt.in); got != tt.want {
			t.Errorf("ClampDigit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCombinationLock(t *testing.T) {
	f := newFixture()
	vault := f.item("a vault door", nil)
	dial0 := f.item("dial 0", nil)
	dial1 := f.item("dial 1", nil)
	dial2 := f.item("dial 2", nil)
	dial0.Props["Setting"] = "3"
	dial1.Hue = 15 // clamps to 9
	dial2.Props["Setting"] = "-5"

	l := NewCombinationLock()
	l.Dials[0] = Target{Entity: dial0, Property: "Setting"}
	l.Dials[1] = Target{Entity: dial1, Property: "Hue"}
	l.Dials[2] = Target{Entity: dial2, Property: "Setting"}
	l.Dials[3] = Target{Entity: dial0, Property: "Setting=3"}
	l.Dials[4] = Target{Entity: dial0, Property: "Missing"}
	l.Target = vault
	l.TargetProperty = "Name/an open vault"
	self := f.item("a lock", l)

	if l.Digit(1) != 9 || l.Digit(2) != 0 || l.Digit(3) != 1 || l.Digit(4) != 0 {
		t.Fatalf("digits %d %d %d %d", l.Digit(1), l.Digit(2), l.Digit(3), l.Digit(4))
	}
	if got := l.CurrentValue(); got != 1093 {
		t.Fatalf("CurrentValue = %d", got)
	}

	l.SetCombination(1234)
	l.Use(f.env, self, f.player)
	if vault.Name != "a vault door" || f.player.LastMessage() != NothingHappens {
		t.Errorf("wrong combination opened: name=%q msg=%q", vault.Name, f.player.LastMessage())
	}
	l.SetCombination(1093)
	l.Use(f.env, self, f.player)
	if vault.Name != "an open vault" {
		t.Errorf("name = %q", vault.Name)
	}
}

func TestCombinationClamped(t *testing.T) {
	l := NewCombinationLock()
	l.SetCombination(-1)
	if l.Combination() != 0 {
		t.Errorf("combination = %d", l.Combination())
	}
	l.SetCombination(123456789)
	if l.Combination() != MaxCombination {
		t.Errorf("combination = %d", l.Combination())
	}
}

func TestCombinationLockRoundTrip(t *testing.T) {
	f := newFixture()
	dial := f.item("dial", nil)
	src := NewCombinationLock()
	src.SetCombination(42)
	src.Dials[5] = Target{Entity: dial, Property: "Hue"}
	src.TargetProperty = "Hue/1"

	data, err := codec.Marshal(src)
	if err != nil {
		t.Fatal(err)
	}
	var fx codec.Fixups
	got := &CombinationLock{}
	if err := codec.Unmarshal(data, got, &fx); err != nil {
		t.Fatal(err)
	}
	fx.Run(f.world)
	if got.Combination() != 42 || got.Sound != 940 || got.Dials[5].Entity != dial || got.TargetProperty != "Hue/1" {
		t.Errorf("got %+v", got)
	}
}

func TestSimpleMapCyclesPins(t *testing.T) {
	f := newFixture()
	m := &SimpleMap{}
	self := f.item("a map", m)
	m.Use(f.env, self, f.player)
	if f.player.LastMessage() != "The map is blank." {
		t.Errorf("msg = %q", f.player.LastMessage())
	}

	m.AddPin(gamedb.Point3D{X: 1, Y: 2})
	m.AddPin(gamedb.Point3D{X: 3, Y: 4})
	m.Use(f.env, self, f.player)
	first := f.player.LastMessage()
	m.Use(f.env, self, f.player)
	m.Use(f.env, self, f.player)
	if f.player.LastMessage() != first || m.PinIndex != 1 {
		t.Errorf("pins did not cycle: %q vs %q, index %d", first, f.player.LastMessage(), m.PinIndex)
	}
}

type fixedRankings []string

func (r fixedRankings) TopLines(int) []string { return r }

func TestLeadersBoard(t *testing.T) {
	f := newFixture()
	b := &LeadersBoard{}
	self := f.item("a board", b)
	b.Use(f.env, self, f.player)
	if f.player.LastMessage() != "No one has been ranked yet." {
		t.Errorf("msg = %q", f.player.LastMessage())
	}
	f.env.Rankings = fixedRankings{"1. Alice 30", "2. Bob 10"}
	b.Use(f.env, self, f.player)
	if f.player.LastMessage() != "2. Bob 10" {
		t.Errorf("msg = %q", f.player.LastMessage())
	}
}

func TestBehaviorsRegistered(t *testing.T) {
	reg := codec.NewRegistry()
	RegisterBehaviors(reg)
	for _, name := range []string{"Lever", "Switch", "SingleUseSwitch", "CombinationLock", "SimpleMap", "LeadersBoard"} {
		rec, err := reg.New(name)
		if err != nil {
			t.Errorf("New(%s): %v", name, err)
			continue
		}
		if _, ok := rec.(attach.Usable); !ok {
			t.Errorf("%s is not usable", name)
		}
	}
}
