package server

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ConfWatcher reloads a host config file when it changes on disk.
type ConfWatcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchConf watches the directory holding path and calls apply with the
// freshly loaded config after every write to the file. A file that fails
// to load is logged and the old config stays in effect. apply runs on the
// watcher goroutine.
func WatchConf(path string, apply func(*HostConf)) (*ConfWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("server: config watcher: %w", err)
	}
	// Editors replace files on save, so watch the directory, not the file.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("server: watch %s: %w", filepath.Dir(path), err)
	}

	cw := &ConfWatcher{watcher: watcher, done: make(chan struct{})}
	name := filepath.Base(path)
	go func() {
		defer close(cw.done)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if filepath.Base(event.Name) != name {
					continue
				}
				conf, err := LoadHostConf(path)
				if err != nil {
					log.Printf("server: config reload of %s failed: %v", path, err)
					continue
				}
				apply(conf)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("server: config watcher error: %v", err)
			}
		}
	}()
	log.Printf("server: watching %s for changes", path)
	return cw, nil
}

// Close stops the watcher and waits for its goroutine to exit.
func (cw *ConfWatcher) Close() error {
	err := cw.watcher.Close()
	<-cw.done
	return err
}
