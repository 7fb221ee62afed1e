package output

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"
)

// Watcher records artifacts that appear in the output directory from
// outside the pipeline, e.g. files moved in by hand.
type Watcher struct {
	registry *Registry
	logger   *slog.Logger

	fsw  *fsnotify.Watcher
	done chan struct{}
}

// NewWatcher builds a watcher over the registry's directory.
func NewWatcher(registry *Registry, logger *slog.Logger) *Watcher {
	return &Watcher{registry: registry, logger: logger}
}

// Start begins watching. It creates the output directory when missing
// and returns once the event loop is running.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.registry.Dir(), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(w.registry.Dir()); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", w.registry.Dir(), err)
	}

	w.fsw = fsw
	w.done = make(chan struct{})
	go w.loop(ctx)

	w.logger.Info("watching output directory", slog.String("dir", w.registry.Dir()))
	return nil
}

// Stop tears the watcher down and waits for the loop to exit.
func (w *Watcher) Stop() error {
	if w.fsw == nil {
		return nil
	}
	err := w.fsw.Close()
	<-w.done
	w.fsw = nil
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !isAudioFile(event.Name) {
				continue
			}
			if _, err := w.registry.Record(ctx, event.Name); err != nil {
				w.logger.Warn("could not record external artifact",
					slog.String("path", event.Name), slog.Any("error", err))
				continue
			}
			w.logger.Info("recorded external artifact", slog.String("path", event.Name))
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", slog.Any("error", err))
		}
	}
}
