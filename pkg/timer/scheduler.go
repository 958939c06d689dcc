// Package timer provides the deferred-callback facility that world code
// uses instead of calling back into itself. Callbacks only ever run from
// Tick, never from the call that scheduled them, so a handler can safely
// schedule its own entity's deletion.
package timer

import (
	"context"
	"log"
	"sync"
	"time"
)

// Handle refers to one scheduled callback.
type Handle struct {
	s       *Scheduler
	due     time.Time
	fn      func()
	stopped bool
	fired   bool
}

// Stop cancels the callback if it has not run yet. It reports whether the
// call prevented the callback from running.
func (h *Handle) Stop() bool {
	if h == nil {
		return false
	}
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if h.stopped || h.fired {
		return false
	}
	h.stopped = true
	h.s.remove(h)
	return true
}

// Running reports whether the callback is still waiting to run.
func (h *Handle) Running() bool {
	if h == nil {
		return false
	}
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return !h.stopped && !h.fired
}

// Remaining returns how long until the callback is due, or 0 once it has
// run or been stopped.
func (h *Handle) Remaining() time.Duration {
	if h == nil {
		return 0
	}
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if h.stopped || h.fired {
		return 0
	}
	d := h.due.Sub(h.s.clock())
	if d < 0 {
		return 0
	}
	return d
}

// Scheduler holds pending callbacks ordered by due time. Callbacks with the
// same due time run in the order they were scheduled.
type Scheduler struct {
	mu      sync.Mutex
	clock   func() time.Time
	waiting []*Handle
}

// New returns a scheduler reading time from clock. A nil clock uses
// time.Now.
func New(clock func() time.Time) *Scheduler {
	if clock == nil {
		clock = time.Now
	}
	return &Scheduler{clock: clock}
}

// Now returns the scheduler's current time. World code reads time through
// here so tests can drive it.
func (s *Scheduler) Now() time.Time { return s.clock() }

// ScheduleOnce queues fn to run once delay has elapsed. A zero delay runs
// fn on the next Tick.
func (s *Scheduler) ScheduleOnce(delay time.Duration, fn func()) *Handle {
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h := &Handle{s: s, due: s.clock().Add(delay), fn: fn}
	inserted := false
	for i, e := range s.waiting {
		if h.due.Before(e.due) {
			s.waiting = append(s.waiting[:i+1], s.waiting[i:]...)
			s.waiting[i] = h
			inserted = true
			break
		}
	}
	if !inserted {
		s.waiting = append(s.waiting, h)
	}
	return h
}

// DelayCall is ScheduleOnce with a zero delay.
func (s *Scheduler) DelayCall(fn func()) *Handle {
	return s.ScheduleOnce(0, fn)
}

// remove drops h from the waiting list. Caller holds s.mu.
func (s *Scheduler) remove(h *Handle) {
	for i, e := range s.waiting {
		if e == h {
			s.waiting = append(s.waiting[:i], s.waiting[i+1:]...)
			return
		}
	}
}

// Tick runs every callback due at the current time and returns how many
// ran. Callbacks scheduled while the tick is running wait for the next one.
// A panicking callback is logged and does not stop the others.
func (s *Scheduler) Tick() int {
	s.mu.Lock()
	now := s.clock()
	cutoff := 0
	for i, h := range s.waiting {
		if h.due.After(now) {
			break
		}
		cutoff = i + 1
	}
	ready := make([]*Handle, cutoff)
	copy(ready, s.waiting[:cutoff])
	s.waiting = s.waiting[cutoff:]
	for _, h := range ready {
		h.fired = true
	}
	s.mu.Unlock()

	for _, h := range ready {
		run(h.fn)
	}
	return len(ready)
}

func run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("timer: callback panic: %v", r)
		}
	}()
	fn()
}

// Pending returns the number of callbacks waiting to run.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiting)
}

// Clear drops every pending callback.
func (s *Scheduler) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.waiting)
	for _, h := range s.waiting {
		h.stopped = true
	}
	s.waiting = nil
	return n
}

// Run calls Tick every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Tick()
		}
	}
}
