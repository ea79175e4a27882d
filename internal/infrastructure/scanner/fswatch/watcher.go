// Package fswatch turns filesystem events of a watched location into wake-up
// signals for the reconciliation loop. Polling stays authoritative: a missed
// event only delays a cycle until the next poll.
package fswatch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

type Options struct {
	// Path is the watched file or directory. For a file its directory is
	// watched.
	Path string
	// Ignore holds stem suffixes whose events never wake the loop, so the
	// ledger writes of a cycle do not schedule another one.
	Ignore   []string
	Debounce time.Duration
	Logger   *slog.Logger
}

type Watcher struct {
	watcher  *fsnotify.Watcher
	ignore   []string
	debounce time.Duration
	logger   *slog.Logger
	changes  chan struct{}
	done     chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

func New(opts Options) (*Watcher, error) {
	dir := opts.Path
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		dir = filepath.Dir(dir)
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		watcher:  fw,
		ignore:   opts.Ignore,
		debounce: debounce,
		logger:   logger,
		changes:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Changes delivers at most one pending signal per debounce window.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if w.ignored(event.Name) {
				continue
			}
			w.logger.Debug("source_changed", "file", event.Name, "op", event.Op.String())
			w.schedule()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("fswatch_error", "error", err)
		}
	}
}

func (w *Watcher) ignored(name string) bool {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	for _, suffix := range w.ignore {
		if suffix != "" && strings.HasSuffix(stem, suffix) {
			return true
		}
	}
	return strings.HasPrefix(base, ".")
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.changes <- struct{}{}:
		default:
		}
	})
}
