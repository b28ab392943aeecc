package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeHandler is called with the newly loaded config after the file
// changes.
type ChangeHandler func(cfg *Config)

// Watcher reloads the config file when it changes. Events are debounced so
// an editor's burst of writes triggers one reload.
//
// The parent directory is watched rather than the file, so editors that save
// by renaming a temp file over the original keep being noticed.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	handlers []ChangeHandler
	stopChan chan struct{}
	done     chan struct{}
	mu       sync.Mutex
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(path string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		w.Close()
		return nil, err
	}

	return &Watcher{
		path:     abs,
		watcher:  w,
		debounce: 300 * time.Millisecond,
	}, nil
}

// OnChange registers a handler to be called when config changes.
func (cw *Watcher) OnChange(handler ChangeHandler) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.handlers = append(cw.handlers, handler)
}

// Start begins watching the config file for changes.
func (cw *Watcher) Start() error {
	if err := cw.watcher.Add(filepath.Dir(cw.path)); err != nil {
		return err
	}

	cw.stopChan = make(chan struct{})
	cw.done = make(chan struct{})
	go cw.watchLoop()

	if Debug {
		DebugLog.Printf("[Config] Watching %s", cw.path)
	}
	return nil
}

// Stop halts the file watcher and waits for the loop to exit.
func (cw *Watcher) Stop() {
	if cw.stopChan != nil {
		close(cw.stopChan)
		<-cw.done
		cw.stopChan = nil
	}
	cw.watcher.Close()
}

func (cw *Watcher) watchLoop() {
	defer close(cw.done)
	var debounceTimer *time.Timer

	for {
		select {
		case <-cw.stopChan:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			// Debounce: reset timer on each change
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(cw.debounce, cw.reload)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			if Debug {
				DebugLog.Printf("[Config] Watcher error: %v", err)
			}
		}
	}
}

func (cw *Watcher) reload() {
	if !FileExists(cw.path) {
		return
	}

	cfg, err := Load(cw.path)
	if err != nil {
		if Debug {
			DebugLog.Printf("[Config] Reload failed, keeping previous config: %v", err)
		}
		return
	}

	cw.mu.Lock()
	handlers := make([]ChangeHandler, len(cw.handlers))
	copy(handlers, cw.handlers)
	cw.mu.Unlock()

	for _, h := range handlers {
		h(cfg)
	}

	if Debug {
		DebugLog.Printf("[Config] Reloaded %s", cw.path)
	}
}
