package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/seekd/seekd/internal/logger"
)

// watchDebounce coalesces the burst of filesystem events editors produce
// when saving (truncate, write, rename, chmod) into a single reload.
const watchDebounce = 250 * time.Millisecond

// ReloadFunc receives the classified change after a successful reload.
type ReloadFunc func(ConfigChange)

// Watcher reloads the configuration file when it changes on disk.
//
// Invalid edits are rejected: the watcher logs the validation error and keeps
// serving the prior snapshot. Edits that parse identically to the current
// snapshot are ignored.
type Watcher struct {
	path     string
	onChange ReloadFunc

	mu      sync.Mutex
	current *Config

	fsw  *fsnotify.Watcher
	stop chan struct{}
	done chan struct{}
}

// NewWatcher creates a watcher for the given config file.
// initial is the snapshot the daemon booted with.
func NewWatcher(path string, initial *Config, onChange ReloadFunc) (*Watcher, error) {
	if initial == nil {
		return nil, fmt.Errorf("initial config snapshot is required")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	return &Watcher{
		path:     abs,
		onChange: onChange,
		current:  initial,
		fsw:      fsw,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. It watches the parent directory rather than the file
// itself so atomic save-and-rename edits keep being observed.
func (w *Watcher) Start() error {
	if err := w.fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	go w.loop()

	logger.Debug("Watching configuration file", logger.Path(w.path))
	return nil
}

// Current returns the most recent valid snapshot.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	select {
	case <-w.stop:
		return nil
	default:
	}
	close(w.stop)
	err := w.fsw.Close()
	<-w.done
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)

	timer := time.NewTimer(watchDebounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-w.stop:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(watchDebounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("Configuration watcher error", logger.Err(err))

		case <-timer.C:
			w.reload()
		}
	}
}

// reload re-reads the file and publishes the classified change.
func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		logger.Warn("Configuration reload rejected, keeping prior snapshot",
			logger.Path(w.path), logger.Err(err))
		return
	}

	w.mu.Lock()
	old := w.current
	if reflect.DeepEqual(old, cfg) {
		w.mu.Unlock()
		return
	}
	w.current = cfg
	w.mu.Unlock()

	change := Diff(old, cfg)
	logger.Info("Configuration reloaded",
		logger.Path(w.path),
		logger.Count(len(change.Subsystems)+len(change.Other)))

	if w.onChange != nil {
		w.onChange(change)
	}
}
