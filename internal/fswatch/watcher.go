// Package fswatch delivers debounced file change notifications for a
// directory tree.
package fswatch

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
)

const (
	eventBufferSize        = 64
	defaultDebounceTimeout = 50 * time.Millisecond
)

// FilterCallback returns true for paths whose events should be dropped
type FilterCallback func(path string) bool

// Watcher forwards one event per path after a quiet period.
type Watcher struct {
	watchDir  string
	recursive bool
	events    chan string
	rawEvents chan notify.EventInfo
	done      chan struct{}
	wg        sync.WaitGroup

	pending         map[string]*time.Timer
	debounceMu      sync.Mutex
	debounceTimeout time.Duration

	filter FilterCallback
}

func New(watchDir string, recursive bool) *Watcher {
	return &Watcher{
		watchDir:        watchDir,
		recursive:       recursive,
		done:            make(chan struct{}),
		pending:         make(map[string]*time.Timer),
		debounceTimeout: defaultDebounceTimeout,
	}
}

func (w *Watcher) SetDebounceTimeout(timeout time.Duration) {
	w.debounceTimeout = timeout
}

// FilterPaths must be called before Start
func (w *Watcher) FilterPaths(callback FilterCallback) {
	w.filter = callback
}

func (w *Watcher) Start(ctx context.Context) error {
	w.rawEvents = make(chan notify.EventInfo, eventBufferSize)
	w.events = make(chan string, eventBufferSize)

	path := w.watchDir
	if w.recursive {
		path = filepath.Join(w.watchDir, "...")
	}
	if err := notify.Watch(path, w.rawEvents, notify.Write, notify.Create, notify.Remove, notify.Rename); err != nil {
		return err
	}
	slog.Debug("file watcher start", "dir", w.watchDir)

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop ends the watch and closes Events.
func (w *Watcher) Stop() {
	close(w.done)
	if w.rawEvents != nil {
		notify.Stop(w.rawEvents)
	}
	w.wg.Wait()
	slog.Debug("file watcher stopped", "dir", w.watchDir)
}

// Events carries changed absolute paths
func (w *Watcher) Events() <-chan string {
	return w.events
}

func (w *Watcher) loop(ctx context.Context) {
	defer func() {
		w.debounceMu.Lock()
		for path, timer := range w.pending {
			timer.Stop()
			delete(w.pending, path)
		}
		close(w.events)
		w.debounceMu.Unlock()
		w.wg.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.rawEvents:
			if !ok {
				return
			}
			if w.filter != nil && w.filter(event.Path()) {
				continue
			}
			// a single save is a burst of writes on most platforms
			w.debounce(event.Path())
		}
	}
}

func (w *Watcher) debounce(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.debounceTimeout)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounceTimeout, func() { w.flush(path) })
}

func (w *Watcher) flush(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	// gone when the watcher stopped and closed events
	if _, ok := w.pending[path]; !ok {
		return
	}
	delete(w.pending, path)

	select {
	case w.events <- path:
		slog.Debug("file watcher", "path", path)
	default:
		slog.Warn("file watcher dropped", "reason", "channel full", "path", path)
	}
}
