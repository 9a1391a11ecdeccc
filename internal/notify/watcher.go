// Package notify watches for restore signals from the external backup
// collaborator. When a backup is restored over Engram's data directory, the
// restorer drops a "<store>.restored" marker file into {dataPath}/events/;
// the watcher picks it up and dispatches a callback so the daemon can reload
// the affected store.
package notify

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// RestoreWatcher watches the events directory and dispatches callbacks.
type RestoreWatcher struct {
	dir      string
	callback func(store string)
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewRestoreWatcher creates a watcher for {dataPath}/events/. The callback
// receives the store name ("graph", "vector", "skills") from the marker
// filename.
func NewRestoreWatcher(dataPath string, callback func(store string)) *RestoreWatcher {
	return &RestoreWatcher{
		dir:      filepath.Join(dataPath, "events"),
		callback: callback,
		done:     make(chan struct{}),
	}
}

// Start begins watching. Existing marker files are drained first so a
// restore that happened while the daemon was down is not missed.
func (w *RestoreWatcher) Start() error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return err
	}

	w.drainExisting()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		_ = fw.Close()
		return err
	}
	w.watcher = fw

	go w.loop()
	log.Printf("notify: watching %s for restore events", w.dir)
	return nil
}

// Stop shuts down the watcher.
func (w *RestoreWatcher) Stop() {
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
	<-w.done
}

func (w *RestoreWatcher) loop() {
	defer close(w.done)
	for {
		select {
		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&fsnotify.Create != 0 && strings.HasSuffix(evt.Name, ".restored") {
				w.processFile(evt.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("notify: watcher error: %v", err)
		}
	}
}

func (w *RestoreWatcher) drainExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".restored") {
			w.processFile(filepath.Join(w.dir, entry.Name()))
		}
	}
}

// processFile dispatches the callback for a marker file and removes it.
func (w *RestoreWatcher) processFile(path string) {
	store := strings.TrimSuffix(filepath.Base(path), ".restored")
	if err := os.Remove(path); err != nil {
		log.Printf("notify: failed to remove marker %s: %v", path, err)
	}
	if w.callback != nil {
		w.callback(store)
	}
}
