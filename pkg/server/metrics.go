package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/crystal-mush/xmlattach/pkg/attach"
	"github.com/crystal-mush/xmlattach/pkg/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus metric descriptors for the host. Each host
// registers on its own registry.
type Metrics struct {
	host      *Host
	startTime time.Time
	registry  *prometheus.Registry

	entitiesTotal    prometheus.Gauge
	attachmentsTotal prometheus.Gauge
	pendingTimers    prometheus.Gauge
	questersRanked   prometheus.Gauge
	eventsTotal      *prometheus.CounterVec
	actionFailures   prometheus.Counter
	loadIssues       *prometheus.CounterVec
	savesTotal       prometheus.Counter
	saveSeconds      prometheus.Gauge
	uptimeSeconds    prometheus.Gauge
	memoryHeapBytes  prometheus.Gauge
	goroutines       prometheus.Gauge
}

// NewMetrics creates and registers Prometheus metrics for the host.
func NewMetrics(host *Host, startTime time.Time) *Metrics {
	m := &Metrics{
		host:      host,
		startTime: startTime,
		registry:  prometheus.NewRegistry(),
		entitiesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "xmlattach_entities_total",
			Help: "Number of live entities in the world.",
		}),
		attachmentsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "xmlattach_attachments_total",
			Help: "Number of live attachments.",
		}),
		pendingTimers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "xmlattach_pending_timers",
			Help: "Callbacks waiting in the scheduler.",
		}),
		questersRanked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "xmlattach_questers_ranked",
			Help: "Questers on the leader ranking.",
		}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xmlattach_events_total",
			Help: "World events emitted, by type.",
		}, []string{"type"}),
		actionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xmlattach_action_failures_total",
			Help: "Action directives that failed to run.",
		}),
		loadIssues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xmlattach_load_issues_total",
			Help: "Records skipped or left unresolved while loading, by kind.",
		}, []string{"kind"}),
		savesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xmlattach_saves_total",
			Help: "Completed world saves.",
		}),
		saveSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "xmlattach_last_save_seconds",
			Help: "Duration of the last world save.",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "xmlattach_uptime_seconds",
			Help: "Host uptime in seconds.",
		}),
		memoryHeapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "xmlattach_memory_heap_bytes",
			Help: "Go heap memory allocated in bytes.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "xmlattach_goroutines",
			Help: "Number of active goroutines.",
		}),
	}

	m.registry.MustRegister(
		m.entitiesTotal,
		m.attachmentsTotal,
		m.pendingTimers,
		m.questersRanked,
		m.eventsTotal,
		m.actionFailures,
		m.loadIssues,
		m.savesTotal,
		m.saveSeconds,
		m.uptimeSeconds,
		m.memoryHeapBytes,
		m.goroutines,
	)

	return m
}

// Update refreshes all gauge metrics from current host state.
func (m *Metrics) Update() {
	h := m.host
	m.entitiesTotal.Set(float64(h.World.Len()))
	m.attachmentsTotal.Set(float64(h.Registry.Count()))
	m.pendingTimers.Set(float64(h.Timers.Pending()))
	m.questersRanked.Set(float64(h.Leaders.Len()))

	m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.memoryHeapBytes.Set(float64(mem.HeapAlloc))
	m.goroutines.Set(float64(runtime.NumGoroutine()))
}

// Receive counts an event. Metrics subscribes to the bus globally.
func (m *Metrics) Receive(ev events.Event) { m.eventsTotal.WithLabelValues(ev.Type.String()).Inc() }
func (m *Metrics) Closed() bool            { return false }

func (m *Metrics) actionFailed() { m.actionFailures.Inc() }

func (m *Metrics) loaded(stats attach.LoadStats) {
	m.loadIssues.WithLabelValues("skipped").Add(float64(stats.Skipped))
	m.loadIssues.WithLabelValues("unresolved").Add(float64(stats.Unresolved))
	m.loadIssues.WithLabelValues("orphans").Add(float64(stats.Orphans))
}

func (m *Metrics) saved(d time.Duration) {
	m.savesTotal.Inc()
	m.saveSeconds.Set(d.Seconds())
}

// Handler returns an http.Handler that updates metrics before serving them.
func (m *Metrics) Handler() http.Handler {
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Update()
		inner.ServeHTTP(w, r)
	})
}
