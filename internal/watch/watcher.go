package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher listens for file system events on tracked bitmap files and calls
// onChange once a burst of events has settled. It only shortens the time
// until the next refresh; the periodic timer still catches everything.
type Watcher struct {
	debounce time.Duration
	onChange func()
	logger   *slog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc

	mu    sync.Mutex
	files map[string]bool
	dirs  map[string]int
	timer *time.Timer
}

// NewWatcher creates a watcher. A zero debounce fires on every event.
func NewWatcher(debounce time.Duration, onChange func(), logger *slog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: failed to create watcher: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		watcher:  w,
		ctx:      ctx,
		cancel:   cancel,
		files:    make(map[string]bool),
		dirs:     make(map[string]int),
	}, nil
}

// Track starts watching the given files. Their directories are watched so
// that editors which replace files by rename are still noticed.
func (w *Watcher) Track(paths ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("watch: failed to resolve %s: %w", p, err)
		}
		if w.files[abs] {
			continue
		}
		dir := filepath.Dir(abs)
		if w.dirs[dir] == 0 {
			if err := w.watcher.Add(dir); err != nil {
				return fmt.Errorf("watch: failed to watch %s: %w", dir, err)
			}
		}
		w.dirs[dir]++
		w.files[abs] = true
	}
	return nil
}

// Untrack stops watching a file
func (w *Watcher) Untrack(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	abs, err := filepath.Abs(path)
	if err != nil || !w.files[abs] {
		return
	}
	delete(w.files, abs)
	dir := filepath.Dir(abs)
	w.dirs[dir]--
	if w.dirs[dir] <= 0 {
		delete(w.dirs, dir)
		_ = w.watcher.Remove(dir)
	}
}

// Tracked reports whether path is being watched
func (w *Watcher) Tracked(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[abs]
}

// Start begins processing events in the background
func (w *Watcher) Start() {
	go w.loop()
}

// Stop shuts down the watcher. Safe for repeated use.
func (w *Watcher) Stop() {
	w.cancel()
	_ = w.watcher.Close()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !relevant(ev.Op) {
				continue
			}
			w.mu.Lock()
			tracked := w.files[filepath.Clean(ev.Name)]
			w.mu.Unlock()
			if !tracked {
				continue
			}
			w.logger.Debug("bitmap file event", "file", ev.Name, "op", ev.Op.String())
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

// schedule fires onChange after the debounce window, restarting the window
// on every new event
func (w *Watcher) schedule() {
	if w.debounce <= 0 {
		w.fire()
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, w.fire)
		return
	}
	w.timer.Reset(w.debounce)
}

func (w *Watcher) fire() {
	if w.ctx.Err() != nil {
		return
	}
	w.onChange()
}

func relevant(op fsnotify.Op) bool {
	return op&fsnotify.Create == fsnotify.Create ||
		op&fsnotify.Write == fsnotify.Write ||
		op&fsnotify.Rename == fsnotify.Rename ||
		op&fsnotify.Remove == fsnotify.Remove
}
