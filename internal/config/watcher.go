package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/MimeLyc/live-caption-translator/pkg/log"
)

// SettingsWatcher imports the settings file into the store on start and
// whenever the file is written.
type SettingsWatcher struct {
	path    string
	store   *RuntimeSettingsStore
	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

func NewSettingsWatcher(path string, store *RuntimeSettingsStore) *SettingsWatcher {
	return &SettingsWatcher{path: path, store: store}
}

func (w *SettingsWatcher) Start(ctx context.Context) error {
	w.reload(ctx)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}
	w.watcher = watcher

	w.wg.Add(1)
	go w.watchLoop(ctx)

	log.Info("Settings watcher: watching %s for changes", w.path)
	return nil
}

func (w *SettingsWatcher) Stop() {
	if w.watcher != nil {
		w.watcher.Close()
	}
	w.wg.Wait()
}

func (w *SettingsWatcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()
	fileName := filepath.Base(w.path)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != fileName {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				log.Debug("Settings watcher: change detected on %s", event.Name)
				w.reload(ctx)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("Settings watcher error: %v", err)

		case <-ctx.Done():
			return
		}
	}
}

func (w *SettingsWatcher) reload(ctx context.Context) {
	settings, err := LoadRuntimeSettingsFile(w.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug("Settings file %s does not exist yet", w.path)
			return
		}
		log.Warn("Settings watcher: failed to read %s: %v", w.path, err)
		return
	}
	if err := w.store.Import(ctx, settings); err != nil {
		log.Warn("Settings watcher: rejected %s: %v", w.path, err)
		return
	}
	log.Info("Settings imported from %s (enabled=%t)", w.path, settings.Enabled)
}
