// Package files provides a polling file watcher. Polling keeps the watcher
// working on filesystems where inotify is unreliable (network mounts,
// containers); a few seconds of latency is acceptable for a manifest edit.
package files

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"harbormaster/pkg/log"
)

const defaultInterval = 5 * time.Second

// Watcher polls one file's modification time and invokes a callback when it
// changes. The callback runs on the watcher goroutine and must not block.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(path string)

	mu      sync.Mutex
	lastMod time.Time
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewWatcher(path string, interval time.Duration, onChange func(path string)) *Watcher {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Watcher{
		path:     path,
		interval: interval,
		onChange: onChange,
		stopCh:   make(chan struct{}),
	}
}

// Start records the file's current modification time and begins polling. The
// file must exist; a watcher on a missing manifest would only ever report its
// creation, which the caller is better off treating as a startup error.
func (w *Watcher) Start(ctx context.Context) error {
	info, err := os.Stat(w.path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", w.path, err)
	}
	w.lastMod = info.ModTime()

	w.wg.Add(1)
	go w.loop(ctx)
	log.Debug("file watcher started", "path", w.path, "interval", w.interval)
	return nil
}

// Stop terminates the polling loop and waits for it to exit. Safe to call
// more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	select {
	case <-w.stopCh:
		w.mu.Unlock()
		return
	default:
		close(w.stopCh)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.check()
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		// Transient: the file may be mid-replace by an editor.
		log.Warn("failed to stat watched file", "path", w.path, "error", err)
		return
	}

	if info.ModTime().After(w.lastMod) {
		w.lastMod = info.ModTime()
		log.Info("watched file changed", "path", w.path)
		if w.onChange != nil {
			w.onChange(w.path)
		}
	}
}
