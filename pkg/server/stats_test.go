package server

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/crystal-mush/xmlattach/pkg/attach"
	"github.com/crystal-mush/xmlattach/pkg/items"
)

func TestStatsServesPublishedSnapshot(t *testing.T) {
	h := newTestHost(t)
	alice := addMobile(h, "Alice", 0)
	alice.Player = true
	addItem(h, "a lever", items.NewLever())
	if err := h.Registry.AttachTo(alice, attach.NewIsEnemy("Karma<0")); err != nil {
		t.Fatal(err)
	}

	world := h.Stats()["world"].(map[string]any)
	if world["entity_count"] != 0 {
		t.Errorf("stale snapshot entity_count = %v", world["entity_count"])
	}

	h.refreshStats()
	st := h.Stats()
	world = st["world"].(map[string]any)
	tests := []struct {
		key  string
		want any
	}{
		{"world", "testworld"},
		{"entity_count", 2},
		{"behaviors", 1},
		{"attachment_count", 1},
	}
	for _, tt := range tests {
		if got := world[tt.key]; got != tt.want {
			t.Errorf("world[%s] = %v, want %v", tt.key, got, tt.want)
		}
	}
	kinds := world["kind_counts"].(map[string]int)
	if kinds["players"] != 1 || kinds["mobiles"] != 1 || kinds["items"] != 1 {
		t.Errorf("kind_counts = %v", kinds)
	}
	if st["world_as_of"] != h.Timers.Now().UTC().Format(time.RFC3339) {
		t.Errorf("world_as_of = %v", st["world_as_of"])
	}
	if _, err := json.Marshal(st); err != nil {
		t.Errorf("stats do not encode: %v", err)
	}
}

func TestStatsAfterApplyConf(t *testing.T) {
	h := newTestHost(t)
	next := testConf(t.TempDir())
	next.WorldName = "renamed"
	next.TickIntervalMS = 250
	h.ApplyConf(next)

	st := h.Stats()
	if name := st["world"].(map[string]any)["world"]; name != "renamed" {
		t.Errorf("world = %v", name)
	}
	if d := st["timers"].(map[string]any)["tick_interval"]; d != "250ms" {
		t.Errorf("tick_interval = %v", d)
	}
}

// Run with -race: the owner goroutine reloads config and mutates entities
// while another goroutine reads Stats.
func TestStatsConcurrentWithOwner(t *testing.T) {
	h := newTestHost(t)
	m := addMobile(h, "Alice", 0)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			h.ApplyConf(DefaultHostConf())
			m.Player = i%2 == 0
			if i%2 == 0 {
				m.Behavior = items.NewLever()
			} else {
				m.Behavior = nil
			}
			addItem(h, "a pebble", nil)
			h.refreshStats()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			st := h.Stats()
			if _, err := json.Marshal(st); err != nil {
				t.Errorf("encode: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	if n := h.Stats()["world"].(map[string]any)["entity_count"]; n != 201 {
		t.Errorf("entity_count = %v", n)
	}
}
