// Package roots watches a client host's configured filesystem roots and
// notifies the connected server when that set changes, so the server does
// not need to poll roots/list on its own schedule.
package roots

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Root identifies one filesystem root exposed to a server via roots/list.
type Root struct {
	URI  string
	Name string
}

// Notifier is the subset of *mcp.Client a Watcher needs: the ability to tell
// the peer that the root set changed.
type Notifier interface {
	SendRootsListChanged(ctx context.Context) error
}

// Watcher watches a fixed set of root directories for filesystem events of
// any kind and calls Notifier.SendRootsListChanged, debounced, whenever
// the watched tree changes. It does not itself recompute the root list; a
// caller that wants the refreshed set should read it from wherever it
// configured the roots (the watcher only detects that it is stale).
type Watcher struct {
	logger   *zap.Logger
	notify   Notifier
	debounce time.Duration

	fsw  *fsnotify.Watcher
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewWatcher starts watching paths and begins debounced notification of
// notify whenever one of them changes. debounce is the quiet period the
// watcher waits for events to settle before calling SendRootsListChanged; a
// non-positive value defaults to 200ms.
func NewWatcher(logger *zap.Logger, notify Notifier, debounce time.Duration, paths ...string) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		if err := fsw.Add(filepath.Clean(p)); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	w := &Watcher{
		logger:   logger,
		notify:   notify,
		debounce: debounce,
		fsw:      fsw,
		stop:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer w.wg.Done()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-w.stop:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				continue
			}
			w.logger.Debug("root tree changed", zap.String("path", ev.Name), zap.Stringer("op", ev.Op))
			pending = true
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				continue
			}
			w.logger.Warn("root watcher error", zap.Error(err))

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			if err := w.notify.SendRootsListChanged(context.Background()); err != nil {
				w.logger.Warn("failed to notify roots list changed", zap.Error(err))
			}
		}
	}
}

// Close stops the watcher and releases the underlying inotify/kqueue
// resources.
func (w *Watcher) Close() error {
	close(w.stop)
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}
