package config

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ErrWatcherClosed indicates an operation on a closed watcher.
var ErrWatcherClosed = errors.New("config watcher closed")

// debounceWindow coalesces editor save storms into one reload.
const debounceWindow = 200 * time.Millisecond

// ReloadFunc receives the freshly parsed config after a change.
type ReloadFunc func(*Config)

// Watcher reloads a config file when it changes on disk. The parent
// directory is watched rather than the file itself so atomic
// rename-into-place saves are seen.
type Watcher struct {
	mu     sync.Mutex
	path   string
	fsw    *fsnotify.Watcher
	onLoad ReloadFunc
	log    zerolog.Logger

	closed  bool
	closeCh chan struct{}
	done    sync.WaitGroup
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the watcher's logger.
func WithWatcherLogger(log zerolog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.log = log.With().Str("component", "config-watcher").Logger()
	}
}

// NewWatcher watches path and calls onLoad with each successfully parsed
// revision. Parse failures are logged and skipped; the previous config
// stays in effect.
func NewWatcher(path string, onLoad ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:    absPath,
		fsw:     fsw,
		onLoad:  onLoad,
		log:     zerolog.Nop(),
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.done.Add(1)
	go w.loop()

	return w, nil
}

// loop watches for events on the config file, debounces, and reloads.
func (w *Watcher) loop() {
	defer w.done.Done()

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-w.closeCh:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerCh = timer.C
			} else {
				timer.Reset(debounceWindow)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watch error")

		case <-timerCh:
			timer = nil
			timerCh = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Warn().Err(err).Str("path", w.path).Msg("config reload failed, keeping previous")
		return
	}
	w.log.Info().Str("path", w.path).Msg("config reloaded")
	w.onLoad(cfg)
}

// Close stops the watcher. Safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	err := w.fsw.Close()
	w.done.Wait()
	return err
}
