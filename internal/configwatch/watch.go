// Package configwatch hot-reloads the engine's StorageConfig when its
// source file changes on disk, in the teacher's fsnotify idiom.
package configwatch

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/dwizi/databridge/internal/config"
)

// Loader reads the current StorageConfig from its backing source. The
// CLI's serve command passes config.FromEnv; tests pass a double that
// returns a fixed struct.
type Loader func() config.StorageConfig

// Reinitializer is the subset of *engine.Engine this package depends
// on; kept narrow so configwatch never imports the engine package.
type Reinitializer interface {
	Initialize(cfg config.StorageConfig) error
}

// Watch blocks watching the directory containing path, reinitializing
// target whenever a write/create/rename event is followed by a load
// whose LastModified differs from the last applied one. It returns
// when ctx is cancelled.
func Watch(ctx context.Context, path string, load Loader, target Reinitializer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	lastModified := int64(-1)
	apply := func() {
		cfg := load()
		if cfg.LastModified == lastModified {
			return
		}
		lastModified = cfg.LastModified
		if err := target.Initialize(cfg); err != nil {
			logger.Error("configwatch: reinitialize failed", "error", err)
			return
		}
		logger.Info("configwatch: engine reinitialized", "base_path", cfg.BasePath, "last_modified", cfg.LastModified)
	}
	apply()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			apply()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("configwatch: watcher error", "error", err)
		}
	}
}
