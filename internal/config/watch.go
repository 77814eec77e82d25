package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher reloads Config from path whenever the file changes and
// invokes onReload with the freshly decoded value. Reload failures are
// logged and the previously loaded Config keeps serving, matching the
// PersistenceError contract: a bad write/edit never mutates live state.
type Watcher struct {
	path     string
	log      *logrus.Logger
	fsw      *fsnotify.Watcher
	onReload func(*Config)
	done     chan struct{}
}

func NewWatcher(path string, log *logrus.Logger, onReload func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{path: path, log: log, fsw: fsw, onReload: onReload, done: make(chan struct{})}, nil
}

func (w *Watcher) Start() {
	go func() {
		for {
			select {
			case ev, ok := <-w.fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(w.path)
				if err != nil {
					w.log.WithError(err).Warn("config reload failed, keeping previous configuration")
					continue
				}
				w.onReload(cfg)
			case err, ok := <-w.fsw.Errors:
				if !ok {
					return
				}
				w.log.WithError(err).Warn("config watcher error")
			case <-w.done:
				return
			}
		}
	}()
}

func (w *Watcher) Stop() {
	close(w.done)
	w.fsw.Close()
}
