package npc

import (
	"bytes"
	"math"
	"strings"
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
	clock  *timer.ManualClock
	timers *timer.Scheduler
	reg    *attach.Registry
	env    *attach.Env
}

func newFixture() *fixture {
	f := &fixture{world: gamedb.NewWorld(), clock: timer.NewManualClock(time.Unix(1_700_000_000, 0))}
	f.timers = timer.New(f.clock.Now)
	f.reg = attach.NewRegistry(f.world, f.timers, script.NewEngine(f.world))
	f.env = f.reg.Env()
	return f
}

func (f *fixture) mobile(name string, player bool, b gamedb.Behavior) *gamedb.Entity {
	m := gamedb.NewEntity(gamedb.KindMobile, name)
	m.Player = player
	m.Hits = 40
	if b != nil {
		m.Behavior = b
	}
	f.world.Add(m)
	return m
}

func innkeeper() *Dialog {
	d := NewDialog()
	d.Add(&Entry{Number: 1, Keywords: "hello,hail", Text: "Welcome, traveler.", DependsOn: "0"})
	d.Add(&Entry{Number: 2, Keywords: "room", Text: "That will be 5 gold.", DependsOn: "1", LockConversation: true})
	d.Add(&Entry{Number: 3, Keywords: "room", Text: "Find me first.", DependsOn: "0"})
	d.Add(&Entry{Number: 4, Keywords: "secret", Text: "Hush.", DependsOn: "-1", Condition: "Karma>100", Action: "SET/Hue/2"})
	return d
}

func TestDialogConversation(t *testing.T) {
	f := newFixture()
	npc := f.mobile("Innkeeper", false, NewTalkingCreature())
	alice := f.mobile("Alice", true, nil)
	bob := f.mobile("Bob", true, nil)
	d := innkeeper()
	if err := f.reg.AttachTo(npc, d); err != nil {
		t.Fatal(err)
	}

	say := func(who *gamedb.Entity, text string) {
		f.reg.DispatchSpeech(attach.SpeechEvent{Speaker: who, Text: text})
	}

	say(alice, "I want a room")
	if alice.LastMessage() != "Innkeeper: Find me first." || d.Current != 3 {
		t.Fatalf("msg=%q current=%d", alice.LastMessage(), d.Current)
	}
	d.Reset()
	say(alice, "Hail!")
	if d.Current != 1 {
		t.Fatalf("current = %d", d.Current)
	}
	say(alice, "a ROOM please")
	if alice.LastMessage() != "Innkeeper: That will be 5 gold." || d.ActivePlayer != alice {
		t.Fatalf("msg=%q active=%v", alice.LastMessage(), d.ActivePlayer)
	}

	say(bob, "secret")
	if len(bob.Messages) != 0 {
		t.Errorf("locked conversation answered bob: %v", bob.Messages)
	}

	alice.Karma = 500
	say(alice, "the secret")
	if d.Current != 4 || npc.Hue != 2 {
		t.Errorf("conditional entry: current=%d hue=%d", d.Current, npc.Hue)
	}

	f.clock.Advance(2 * time.Minute)
	say(bob, "hello")
	if bob.LastMessage() != "Innkeeper: Welcome, traveler." {
		t.Errorf("dialog did not reset: %q", bob.LastMessage())
	}
}

func TestDialogProximity(t *testing.T) {
	f := newFixture()
	npc := f.mobile("Guard", false, nil)
	alice := f.mobile("Alice", true, nil)
	alice.Location = gamedb.Point3D{X: 10}
	d := NewDialog()
	d.Add(&Entry{Number: 1, Text: "Halt!", DependsOn: "0"})
	if err := f.reg.AttachTo(npc, d); err != nil {
		t.Fatal(err)
	}

	f.reg.DispatchMovement(attach.MoveEvent{Mover: alice})
	if d.Current != 0 {
		t.Fatal("triggered from outside the proximity range")
	}
	alice.Location = gamedb.Point3D{X: 3}
	f.reg.DispatchMovement(attach.MoveEvent{Mover: alice, From: gamedb.Point3D{X: 10}})
	if d.Current != 1 || alice.LastMessage() != "Guard: Halt!" {
		t.Errorf("current=%d msg=%q", d.Current, alice.LastMessage())
	}
}

func TestDialogPrePauseUsesTimer(t *testing.T) {
	f := newFixture()
	npc := f.mobile("Sage", false, nil)
	alice := f.mobile("Alice", true, nil)
	d := NewDialog()
	d.Add(&Entry{Number: 1, Keywords: "wisdom", Text: "Patience.", PrePause: 2})
	if err := f.reg.AttachTo(npc, d); err != nil {
		t.Fatal(err)
	}
	f.reg.DispatchSpeech(attach.SpeechEvent{Speaker: alice, Text: "wisdom"})
	if len(alice.Messages) != 0 {
		t.Fatal("spoke before the pause")
	}
	f.clock.Advance(2 * time.Second)
	f.timers.Tick()
	if alice.LastMessage() != "Sage: Patience." {
		t.Errorf("msg = %q", alice.LastMessage())
	}
}

func TestDialogCarriedTrigger(t *testing.T) {
	f := newFixture()
	npc := f.mobile("Jeweler", false, nil)
	alice := f.mobile("Alice", true, nil)
	d := NewDialog()
	d.TriggerOnCarried = "a ruby"
	d.Add(&Entry{Number: 1, Keywords: "buy", Text: "Let me see it."})
	if err := f.reg.AttachTo(npc, d); err != nil {
		t.Fatal(err)
	}
	f.reg.DispatchSpeech(attach.SpeechEvent{Speaker: alice, Text: "buy"})
	if d.Current != 0 {
		t.Fatal("triggered without the item")
	}
	ruby := gamedb.NewEntity(gamedb.KindItem, "A Ruby")
	ruby.Parent = alice.Serial
	f.world.Add(ruby)
	f.reg.DispatchSpeech(attach.SpeechEvent{Speaker: alice, Text: "buy"})
	if d.Current != 1 {
		t.Error("carried item did not enable the dialog")
	}
}

func TestTalkingCreatureCurrentVersionSkipsLegacyGroups(t *testing.T) {
	src := NewTalkingCreature()
	src.TalkText = "Greetings"
	src.EffectItemID = 14202
	data, err := codec.Marshal(src)
	if err != nil {
		t.Fatal(err)
	}
	got := &TalkingCreature{}
	if err := codec.Unmarshal(data, got, nil); err != nil {
		t.Fatal(err)
	}
	if got.TalkText != "Greetings" || got.EffectItemID != 14202 || got.EffectHue != 68 || got.EffectOffset.Z != 20 {
		t.Errorf("got %+v", got)
	}
	if got.Pending() != nil {
		t.Error("current record produced a legacy dialog")
	}
}

func TestTalkingCreatureV2MigratesDialog(t *testing.T) {
	f := newFixture()
	alice := f.mobile("Alice", true, nil)

	legacy := NewDialog()
	legacy.ProximityRange = 6
	legacy.SpeechPace = 3
	legacy.ActivePlayer = alice
	legacy.Add(&Entry{Number: 1, ID: 10, Keywords: "hello", Text: "Hi there.", DependsOn: "0", Pause: 1, PrePause: 0, LockConversation: true})
	legacy.Add(&Entry{Number: 2, ID: 20, Keywords: "bye", Text: "Farewell.", DependsOn: "1", Condition: "Karma>0"})

	var buf bytes.Buffer
	if err := NewTalkingCreature().EncodeRecordAt(codec.NewBinaryWriter(&buf), 2, legacy); err != nil {
		t.Fatal(err)
	}

	var fx codec.Fixups
	tc := NewTalkingCreature()
	if err := tc.DecodeRecord(codec.NewDecoder(codec.NewBinaryReader(&buf), &fx)); err != nil {
		t.Fatalf("decode: %v", err)
	}
	fx.Run(f.world)
	p := tc.Pending()
	if p == nil || len(p.Entries) != 2 {
		t.Fatalf("pending dialog = %+v", p)
	}
	if p.ProximityRange != 6 || p.SpeechPace != 3 || p.ActivePlayer != alice {
		t.Errorf("dialog fields %+v", p)
	}
	e := p.Entries[0]
	if e.ID != 10 || e.Text != "Hi there." || e.DependsOn != "0" || !e.LockConversation {
		t.Errorf("entry 0 = %+v", e)
	}
	if p.Entries[1].Condition != "" {
		t.Errorf("v4 condition leaked into a v2 record: %q", p.Entries[1].Condition)
	}
	if tc.TalkText != "" || tc.EffectHue != 68 {
		t.Errorf("v6+ fields not defaulted: %+v", tc)
	}

	npc := f.mobile("Innkeeper", false, tc)
	if n := f.reg.RestoreBehaviors(); n != 1 {
		t.Fatalf("RestoreBehaviors = %d", n)
	}
	d := Find(f.env, npc)
	if d == nil || len(d.Entries) != 2 || tc.Pending() != nil {
		t.Fatal("legacy dialog not attached")
	}
	f.reg.RestoreBehaviors()
	if len(f.reg.FindAll(npc, "Dialog")) != 1 {
		t.Error("restore attached the dialog twice")
	}
}

func TestDialogRoundTrip(t *testing.T) {
	f := newFixture()
	alice := f.mobile("Alice", true, nil)
	src := innkeeper()
	src.ActivePlayer = alice
	src.Current = 2
	data, err := codec.Marshal(src)
	if err != nil {
		t.Fatal(err)
	}
	var fx codec.Fixups
	got := &Dialog{}
	if err := codec.Unmarshal(data, got, &fx); err != nil {
		t.Fatal(err)
	}
	fx.Run(f.world)
	if got.Current != 2 || got.ActivePlayer != alice || len(got.Entries) != 4 || *got.Entries[3] != *src.Entries[3] {
		t.Errorf("got %+v", got)
	}
}

func TestDialogEncodeEntryFailure(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
	}{
		{"number", Entry{Number: math.MaxInt32 + 1}},
		{"pause", Entry{Number: 1, Pause: math.MinInt32 - 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := innkeeper()
			d.Add(&tt.entry)
			_, err := codec.Marshal(d)
			if err == nil || !strings.Contains(err.Error(), "overflows int32") {
				t.Fatalf("Marshal err = %v, want overflow", err)
			}
		})
	}
}

func TestEscortable(t *testing.T) {
	f := newFixture()
	e := &Escortable{Destination: "Britain"}
	npc := f.mobile("a traveler", false, e)
	alice := f.mobile("Alice", true, nil)

	if n := f.reg.HearSpeech(attach.SpeechEvent{Speaker: alice, Text: "Destination?"}); n != 1 {
		t.Fatalf("HearSpeech = %d", n)
	}
	if alice.LastMessage() != "a traveler: I am looking to go to Britain, will you take me?" {
		t.Errorf("msg = %q", alice.LastMessage())
	}
	f.reg.HearSpeech(attach.SpeechEvent{Speaker: alice, Text: "I will take thee"})
	if e.Escorter() != alice {
		t.Fatal("escort not accepted")
	}
	bob := f.mobile("Bob", true, nil)
	if e.AcceptEscorter(f.env, npc, bob) {
		t.Error("second escorter accepted")
	}

	if e.CheckAtDestination(f.env, npc) {
		t.Error("arrived on the wrong map")
	}
	npc.Map = "britain"
	if !e.CheckAtDestination(f.env, npc) || e.DeleteAt().IsZero() {
		t.Fatal("arrival not detected")
	}

	data, err := codec.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	loaded := &Escortable{}
	if err := codec.Unmarshal(data, loaded, nil); err != nil {
		t.Fatal(err)
	}
	if !loaded.DeleteAt().Equal(e.DeleteAt()) || loaded.Destination != "" {
		t.Errorf("loaded %+v", loaded)
	}

	f.clock.Advance(ArrivalDelay)
	f.timers.Tick()
	if !npc.IsDeleted() {
		t.Error("escort did not leave")
	}
}

func TestEscortRestoreResumesDeparture(t *testing.T) {
	f := newFixture()
	e := &Escortable{}
	e.deleteAt = f.clock.Now().Add(10 * time.Second)
	npc := f.mobile("a traveler", false, e)
	f.reg.RestoreBehaviors()
	f.clock.Advance(10 * time.Second)
	f.timers.Tick()
	if !npc.IsDeleted() {
		t.Error("restored departure never fired")
	}
}
