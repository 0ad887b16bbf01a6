// Package watch reruns a conversion whenever its source file changes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Faultbox/a2j/internal/logger"
)

// DefaultDebounce coalesces the burst of events a DCC application produces
// while saving.
const DefaultDebounce = 500 * time.Millisecond

// Func runs once at start and again after every settled change.
type Func func(ctx context.Context) error

// Watcher watches one file.
type Watcher struct {
	path     string
	debounce time.Duration
	run      Func
	log      *zap.Logger

	// OnError receives errors returned by run. The watcher keeps going.
	OnError func(error)
}

// New creates a watcher for path. A debounce of 0 uses DefaultDebounce.
func New(path string, debounce time.Duration, run Func) (*Watcher, error) {
	if run == nil {
		return nil, errors.New("watch: nil run func")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		path:     abs,
		debounce: debounce,
		run:      run,
		log:      logger.Named("watch").With(zap.String("file", abs)),
	}, nil
}

// Run converts once, then blocks until ctx is done, reconverting after
// changes. The parent directory is watched rather than the file so that
// editors that save by rename keep triggering.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(w.path), err)
	}

	w.fire(ctx)

	// Reset and Stop never leave a stale tick behind since Go 1.23
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case e, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(e.Name) != w.path {
				continue
			}
			if !e.Op.Has(fsnotify.Write) && !e.Op.Has(fsnotify.Create) && !e.Op.Has(fsnotify.Rename) {
				continue
			}
			w.log.Debug("source changed", zap.String("op", e.Op.String()))
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))

		case <-timer.C:
			w.fire(ctx)
		}
	}
}

func (w *Watcher) fire(ctx context.Context) {
	w.log.Info("converting")
	if err := w.run(ctx); err != nil {
		w.log.Error("conversion failed", zap.Error(err))
		if w.OnError != nil {
			w.OnError(err)
		}
	}
}
