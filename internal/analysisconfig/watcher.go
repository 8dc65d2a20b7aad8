package analysisconfig

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchAndReload watches dir for filesystem events and calls Registry.Refresh
// on each debounced burst, the Go analogue of the original's
// watchfiles.awatch loop. It blocks until ctx is cancelled or the watcher
// fails to start.
func WatchAndReload(ctx context.Context, dir string, reg *Registry, debounce time.Duration, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}

	// Initial load so the registry is populated before the first event.
	if _, err := reg.LoadAll(dir); err != nil {
		log.Warn("initial config load failed", zap.Error(err))
	}

	var timer *time.Timer
	pending := false

	reload := func() {
		if _, err := reg.Refresh(dir); err != nil {
			// Hot-reload errors are logged and leave the prior snapshot
			// intact; Refresh never partially applies a new snapshot.
			log.Warn("config hot-reload failed, keeping previous snapshot", zap.Error(err))
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pending = true
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", zap.Error(err))
		case <-timerC(timer):
			if pending {
				pending = false
				reload()
			}
		}
	}
}

// timerC returns t.C, or a nil channel (which blocks forever in a select)
// when t hasn't been created yet.
func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}
