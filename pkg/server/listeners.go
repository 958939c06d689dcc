package server

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/crystal-mush/xmlattach/pkg/events"
)

// eventLog logs every event while on is set or debugging is enabled.
type eventLog struct {
	on *atomic.Bool
}

func (l eventLog) Receive(ev events.Event) {
	if !l.on.Load() && !IsDebug() {
		return
	}
	log.Printf("event: %s", FormatEvent(ev))
}

func (l eventLog) Closed() bool { return false }

// FormatEvent renders ev on one line with its data keys sorted.
func FormatEvent(ev events.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s target=%s source=%s actor=%s", ev.Type, ev.Target, ev.Source, ev.Actor)
	if ev.Text != "" {
		fmt.Fprintf(&b, " text=%q", ev.Text)
	}
	keys := make([]string, 0, len(ev.Data))
	for k := range ev.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, ev.Data[k])
	}
	return b.String()
}

// Recorder keeps every event it receives. Tools and tests subscribe one to
// see what an entry point caused.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
	closed bool
}

func (r *Recorder) Receive(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close stops the recorder receiving events. The bus drops it on Cleanup.
func (r *Recorder) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

// Drain returns the recorded events and forgets them.
func (r *Recorder) Drain() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

// Of returns the recorded events of type t.
func (r *Recorder) Of(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
