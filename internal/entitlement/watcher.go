package entitlement

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the bursts of events editors produce on save.
const DefaultDebounce = 500 * time.Millisecond

// Watch reloads the store whenever its file changes, until ctx is done. The
// parent directory is watched so that editors replacing the file by rename
// are noticed. A store without a path returns immediately.
func (s *CatalogStore) Watch(ctx context.Context, debounce time.Duration) error {
	if s.path == "" {
		s.log.Info("catalog watcher disabled")
		return nil
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	target := filepath.Clean(s.path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch catalog: %w", err)
	}
	s.log.Info("watching catalog", slog.String("path", target))

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("catalog watcher stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				s.log.Debug("catalog changed", slog.String("op", ev.Op.String()))
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				fire = timer.C
			}

		case <-fire:
			fire = nil
			_ = s.Reload()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Error("catalog watcher error", slog.String("error", err.Error()))
		}
	}
}
