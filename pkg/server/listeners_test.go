package server

import (
	"testing"

	"github.com/crystal-mush/xmlattach/pkg/events"
)

func TestFormatEvent(t *testing.T) {
	ev := events.New(events.EvWeaponHit, "")
	ev.Source = 3
	ev.Data = map[string]any{"extra": 5, "damage": 10}
	want := "weapon_hit target=#-1 source=#3 actor=#-1 damage=10 extra=5"
	if got := FormatEvent(ev); got != want {
		t.Errorf("FormatEvent = %q\nwant %q", got, want)
	}

	say := events.New(events.EvSpeech, `hi "there"`)
	if got := FormatEvent(say); got != `speech target=#-1 source=#-1 actor=#-1 text="hi \"there\""` {
		t.Errorf("FormatEvent = %q", got)
	}
}

func TestRecorder(t *testing.T) {
	bus := events.NewBus()
	rec := &Recorder{}
	bus.SubscribeGlobal(rec)
	bus.Emit(events.New(events.EvUse, ""))
	bus.Emit(events.New(events.EvKill, ""))

	if n := len(rec.Of(events.EvKill)); n != 1 {
		t.Errorf("Of(kill) = %d", n)
	}
	if n := len(rec.Drain()); n != 2 {
		t.Errorf("Drain = %d", n)
	}
	rec.Close()
	bus.Emit(events.New(events.EvUse, ""))
	if n := len(rec.Drain()); n != 0 {
		t.Errorf("closed recorder received %d events", n)
	}
}
