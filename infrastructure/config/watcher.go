package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/felixgeelhaar/parley/domain/config"
	"github.com/felixgeelhaar/parley/infrastructure/logging"
)

// ReloadFunc receives the re-parsed configuration after the file changes.
type ReloadFunc func(*config.AgentConfig)

// Watcher reloads an agent configuration file when it changes on disk.
// Reloads that fail to parse or validate are logged and skipped, so a
// half-written file never replaces a good configuration.
type Watcher struct {
	path     string
	loader   *Loader
	onReload ReloadFunc
	debounce time.Duration

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLoader sets the loader used for reloads.
func WithLoader(l *Loader) WatcherOption {
	return func(w *Watcher) {
		w.loader = l
	}
}

// WithDebounce sets the quiet period after a change before reloading.
// Editors often emit several events per save; the default is 250ms.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// NewWatcher starts watching path and calls onReload with each
// successfully re-parsed configuration. Close stops the watcher.
func NewWatcher(path string, onReload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	w := &Watcher{
		path:     abs,
		loader:   NewLoader(),
		onReload: onReload,
		debounce: 250 * time.Millisecond,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory rather than the file: many editors replace the
	// file on save, which drops a watch on the file itself.
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}
	w.watcher = fw

	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Path returns the watched file path.
func (w *Watcher) Path() string {
	return w.path
}

// Close stops the watcher. Safe to call more than once.
func (w *Watcher) Close() error {
	w.closeMu.Lock()
	defer w.closeMu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()

	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				pending = timer.C
			} else {
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(w.debounce)
			}
		case <-pending:
			timer = nil
			pending = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn().
				Add(logging.Str("path", w.path)).
				Add(logging.ErrorField(err)).
				Msg("config watch error")
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.loader.LoadFile(w.path)
	if err != nil {
		logging.Warn().
			Add(logging.Str("path", w.path)).
			Add(logging.ErrorField(err)).
			Msg("config reload rejected")
		return
	}
	logging.Info().
		Add(logging.Str("path", w.path)).
		Add(logging.Str("name", cfg.Name)).
		Msg("config reloaded")
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
