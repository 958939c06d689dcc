package server

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchConfReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "host.yaml")
	writeFile(t, path, "world_name: Britain\n")

	got := make(chan *HostConf, 8)
	w, err := WatchConf(path, func(c *HostConf) { got <- c })
	if err != nil {
		t.Fatalf("WatchConf: %v", err)
	}
	defer w.Close()

	// Other files in the directory are ignored.
	writeFile(t, filepath.Join(dir, "notes.txt"), "hello")
	writeFile(t, path, "world_name: Trammel\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-got:
			if c.ConfPath != path {
				t.Errorf("ConfPath = %q", c.ConfPath)
			}
			if c.WorldName == "Trammel" {
				return
			}
		case <-deadline:
			t.Fatal("no reload after write")
		}
	}
}

func TestWatchConfMissingDir(t *testing.T) {
	if _, err := WatchConf(filepath.Join(t.TempDir(), "nope", "host.yaml"), func(*HostConf) {}); err == nil {
		t.Error("watching a missing directory succeeded")
	}
}

func TestRunAppliesWatchedConf(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "host.yaml")
	writeFile(t, path, "tick_interval_ms: 5\nautosave_minutes: 0\nleaders_top: 10\n")
	conf, err := LoadHostConf(path)
	if err != nil {
		t.Fatal(err)
	}
	conf.BoltPath = filepath.Join(dir, "world.db")
	h := newTestHostConf(t, conf)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	// Give the watcher time to start before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, "tick_interval_ms: 5\nautosave_minutes: 0\nleaders_top: 4\n")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		applied := make(chan int, 1)
		h.Timers.DelayCall(func() { applied <- h.Leaders.BoardSize() })
		select {
		case n := <-applied:
			if n == 4 {
				cancel()
				<-done
				return
			}
		case <-time.After(time.Second):
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("watched change never applied")
}
