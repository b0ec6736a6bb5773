package bridge

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/OpenTraceLab/OpenTraceBSC/internal/config"
)

// ReloadFunc receives the configuration re-read after a file change.
type ReloadFunc func(cfg *config.Config)

// WatchConfig re-reads path whenever one of the files it loaded is written
// and hands the result to apply. It returns when ctx ends. Files that fail to
// load or validate are logged and ignored.
func WatchConfig(ctx context.Context, path string, loaded []string, logger *slog.Logger, apply ReloadFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, file := range loaded {
		if err := watcher.Add(file); err != nil {
			logger.Error("Failed to watch config file", "file", relPath(file), "err", err)
		} else {
			logger.Debug("Watching config file", "file", relPath(file))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			logger.Info("Config file modified, reloading", "file", relPath(event.Name))

			cfg, err := config.Load(path)
			if err == nil {
				err = cfg.Validate()
			}
			if err != nil {
				logger.Error("Ignoring config change", "err", err)
				continue
			}
			apply(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("Watcher error", "err", err)
		}
	}
}

func relPath(file string) string {
	if cwd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(cwd, file); err == nil {
			return rel
		}
	}
	return file
}
