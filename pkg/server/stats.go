package server

import (
	"runtime"
	"time"

	"github.com/crystal-mush/xmlattach/pkg/attach"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

// statsEvery is how often Run republishes the world counts.
const statsEvery = time.Second

// worldSnapshot is a published WorldStats result. It is never modified
// after being stored.
type worldSnapshot struct {
	at    time.Time
	stats map[string]any
}

// WorldStats returns entity and attachment counts. It walks live entities,
// so it must run on the goroutine that owns the world; other goroutines use
// Stats.
func (h *Host) WorldStats() map[string]any {
	kinds := map[string]int{
		"items":   0,
		"mobiles": 0,
		"players": 0,
	}
	behaviors := 0
	h.World.Each(func(e *gamedb.Entity) {
		switch {
		case e.Player:
			kinds["players"]++
			kinds["mobiles"]++
		case e.Kind == gamedb.KindMobile:
			kinds["mobiles"]++
		default:
			kinds["items"]++
		}
		if e.Behavior != nil {
			behaviors++
		}
	})

	byType := make(map[string]int)
	h.Registry.Each(func(a attach.Attachment) {
		byType[a.RecordType()]++
	})

	return map[string]any{
		"world":            h.Conf().WorldName,
		"entity_count":     h.World.Len(),
		"kind_counts":      kinds,
		"behaviors":        behaviors,
		"attachment_count": h.Registry.Count(),
		"attachment_types": byType,
		"questers_ranked":  h.Leaders.Len(),
		"next_serial":      int(h.World.NextSerial()),
	}
}

// refreshStats publishes a fresh WorldStats for Stats to serve.
func (h *Host) refreshStats() {
	h.stats.Store(&worldSnapshot{at: h.Timers.Now(), stats: h.WorldStats()})
}

// TimerStats returns scheduler and script engine info.
func (h *Host) TimerStats() map[string]any {
	return map[string]any{
		"pending":         h.Timers.Pending(),
		"action_failures": h.Script.Failures(),
		"tick_interval":   h.Conf().TickInterval().String(),
	}
}

// MemoryStats returns Go runtime memory statistics.
func (h *Host) MemoryStats() map[string]any {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return map[string]any{
		"heap_alloc_bytes":  m.HeapAlloc,
		"heap_inuse_bytes":  m.HeapInuse,
		"heap_alloc_mb":     float64(m.HeapAlloc) / 1024 / 1024,
		"goroutines":        runtime.NumGoroutine(),
		"gc_cycles":         m.NumGC,
		"gc_pause_total_ns": m.PauseTotalNs,
	}
}

// Stats groups every stats section under one map. It is safe to call from
// any goroutine: the world section is the last snapshot published by the
// tick loop and "world_as_of" says when it was taken.
func (h *Host) Stats() map[string]any {
	snap := h.stats.Load()
	return map[string]any{
		"version":     VersionString(),
		"uptime":      time.Since(h.started).Round(time.Second).String(),
		"world":       snap.stats,
		"world_as_of": snap.at.UTC().Format(time.RFC3339),
		"timers":      h.TimerStats(),
		"memory":      h.MemoryStats(),
	}
}
