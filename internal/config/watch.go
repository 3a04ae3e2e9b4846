package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/laminarci/laminar/internal/logger"
)

// Watcher observes <home>/cfg for changes and emits a signal on Reload
// whenever something under it changes. It never reloads configuration
// itself — the caller decides when to call Load again, preserving the
// "explicit reload" semantics of spec.md §2.
type Watcher struct {
	fsw    *fsnotify.Watcher
	reload chan struct{}
	log    logger.Logger
}

// NewWatcher starts watching <home>/cfg/jobs, <home>/cfg/nodes, and
// <home>/cfg/contexts for changes.
func NewWatcher(home string, log logger.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	for _, dir := range []string{"jobs", "nodes", "contexts"} {
		if err := fsw.Add(filepath.Join(home, "cfg", dir)); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}

	w := &Watcher{fsw: fsw, reload: make(chan struct{}, 1), log: log}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.log.Debugf("config change detected: %s", ev)
			select {
			case w.reload <- struct{}{}:
			default:
				// a reload is already pending; coalesce
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warnf("config watcher error: %v", err)
		}
	}
}

// Reload signals when the watched tree has changed and a new Load
// should be performed. The channel is buffered to depth 1 and coalesces
// bursts of events into a single pending reload.
func (w *Watcher) Reload() <-chan struct{} {
	return w.reload
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
