package server

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/crystal-mush/xmlattach/pkg/attach"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestMetricsReflectHostState(t *testing.T) {
	h := newTestHost(t)
	alice := addMobile(h, "Alice", 0)
	addMobile(h, "Bob", 1)
	if err := h.Registry.AttachTo(alice, attach.NewIsEnemy("Karma<0")); err != nil {
		t.Fatal(err)
	}
	h.Speech(alice, "hi")
	h.Script.RunActions(alice, "bogus_directive")
	h.Metrics.loaded(attach.LoadStats{Skipped: 2})

	body := scrape(t, h.Metrics)
	for _, want := range []string{
		"xmlattach_entities_total 2",
		"xmlattach_attachments_total 1",
		`xmlattach_events_total{type="speech"} 1`,
		`xmlattach_events_total{type="attach"} 1`,
		"xmlattach_action_failures_total 1",
		`xmlattach_load_issues_total{kind="skipped"} 2`,
		"xmlattach_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestMetricsPerHost(t *testing.T) {
	// Two hosts register the same metric names on separate registries.
	a, b := newTestHost(t), newTestHost(t)
	addMobile(a, "Alice", 0)
	if !strings.Contains(scrape(t, b.Metrics), "xmlattach_entities_total 0") {
		t.Error("second host sees the first host's entities")
	}
}
