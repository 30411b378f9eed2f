// Package watch triggers re-synchronization when a source directory tree
// changes, adapted from the project's recursive file-watcher for the
// one-shot (not continuous daemon) publication use case: instead of
// streaming individual events it debounces bursts of writes into a single
// "run again" signal.
package watch

import (
	"context"
	"log/slog"
	"time"

	"github.com/rjeczalik/notify"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher emits on Triggered whenever sourceDir's tree settles after one or
// more writes.
type Watcher struct {
	sourceDir string
	debounce  time.Duration
	raw       chan notify.EventInfo
	triggered chan struct{}
}

// New returns a Watcher for sourceDir using the default debounce window.
func New(sourceDir string) *Watcher {
	return &Watcher{
		sourceDir: sourceDir,
		debounce:  defaultDebounce,
		raw:       make(chan notify.EventInfo, 256),
		triggered: make(chan struct{}, 1),
	}
}

// Triggered fires once per settled burst of filesystem activity.
func (w *Watcher) Triggered() <-chan struct{} {
	return w.triggered
}

// Start begins watching until ctx is cancelled. Falls back to a
// non-recursive watch if the recursive one is unavailable, same as the
// pattern this package is adapted from.
func (w *Watcher) Start(ctx context.Context) error {
	recursive := w.sourceDir + "/..."
	if err := notify.Watch(recursive, w.raw, notify.Write, notify.Create, notify.Remove, notify.Rename); err != nil {
		if fallbackErr := notify.Watch(w.sourceDir, w.raw, notify.Write, notify.Create, notify.Remove); fallbackErr != nil {
			return err
		}
		slog.Warn("recursive watch unavailable; watching top-level directory only", "dir", w.sourceDir, "error", err)
	}

	go w.debounceLoop(ctx)
	return nil
}

// Stop releases the underlying notify subscription.
func (w *Watcher) Stop() {
	notify.Stop(w.raw)
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-w.raw:
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			select {
			case w.triggered <- struct{}{}:
			default:
			}
			fire = nil
		}
	}
}
