package utils

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce groups the burst of events an editor produces when saving.
const DefaultDebounce = 200 * time.Millisecond

// Watch runs the pipeline once, then again every time the configured image is
// written or re-created, until ctx is done. Each run gets its own job. The
// directory is watched rather than the file because many editors save by
// replacing it.
func Watch(ctx context.Context, p *Pipeline, debounce time.Duration, onResult func(Result, error)) error {
	img, err := filepath.Abs(p.Settings.ImagePath)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(img)); err != nil {
		return err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	l := p.logger()
	runOnce := func() {
		res, err := p.Run(ctx, p.NewJob())
		if onResult != nil {
			onResult(res, err)
		}
	}
	runOnce()
	l.Info("watching for changes", "path", img)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case e, ok := <-w.Events:
			if !ok {
				return nil
			}
			name, err := filepath.Abs(e.Name)
			if err != nil || name != img || !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
				continue
			}
			l.Debug("image changed", "op", e.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.Warn("watcher error", "err", err)
		case <-fire:
			fire = nil
			runOnce()
		}
	}
}
