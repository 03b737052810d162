// control/watcher.go
// Author: momentics <momentics@gmail.com>
//
// Config file watcher. The parent directory is watched so that editors that
// replace the file on save are still picked up.

package control

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads a config file into a ConfigStore whenever it changes.
type Watcher struct {
	path      string
	store     *ConfigStore
	log       zerolog.Logger
	watcher   *fsnotify.Watcher
	stopWatch chan struct{}
	done      chan struct{}
}

// NewWatcher prepares a watcher for path. Call Start to begin watching.
func NewWatcher(path string, store *ConfigStore, log zerolog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config path: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{
		path:      abs,
		store:     store,
		log:       log,
		watcher:   fw,
		stopWatch: make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Start runs the event loop in its own goroutine.
func (w *Watcher) Start() {
	go w.watchFile()
}

// Reload reads the file and merges it into the store.
func (w *Watcher) Reload() error {
	values, err := LoadFile(w.path)
	if err != nil {
		return err
	}
	w.store.SetConfig(values)
	return nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	select {
	case <-w.stopWatch:
		return nil
	default:
	}
	close(w.stopWatch)
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) watchFile() {
	defer close(w.done)
	for {
		select {
		case <-w.stopWatch:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := w.Reload(); err != nil {
				w.log.Warn().Err(err).Str("path", w.path).Msg("config reload failed")
				continue
			}
			w.log.Info().Str("path", w.path).Msg("config reloaded")
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("config watcher error")
		}
	}
}
