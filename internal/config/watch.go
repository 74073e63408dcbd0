package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce collapses the burst of fsnotify events an atomic editor save
// produces into a single reload.
const debounce = 250 * time.Millisecond

// Watch monitors path and calls onChange with the newly loaded Config each
// time the file changes. It runs until ctx is cancelled.
//
// A reload that fails (e.g., invalid YAML) is logged and onChange is not
// called; the previous config stays active.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	slog.Info("config: watching for changes", "path", path)

	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Writes and creates both matter: editors often save via rename,
			// which surfaces as Create on the watched path.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if pending == nil {
				pending = time.NewTimer(debounce)
			} else {
				pending.Stop()
				pending.Reset(debounce)
			}
			fire = pending.C

		case <-fire:
			fire = nil
			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed; keeping previous config",
					"path", path, "err", err)
				continue
			}
			slog.Info("config: reloaded", "path", path, "feeds", len(cfg.Feeds))
			onChange(cfg)

			// Re-add in case an atomic save replaced the inode.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
