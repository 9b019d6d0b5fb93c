package taskstore

import (
	"fmt"
	"log/slog"
	"path/filepath"
)

// Open builds a Store for the named provider. An empty or unrecognized
// name falls back to the in-memory reference implementation (an
// unrecognized one with a warning; a nil logger falls back to
// slog.Default for it). basePath is only
// consulted by providers that persist to disk.
func Open(providerName, basePath string, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch providerName {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		store, err := NewSqliteStore(filepath.Join(basePath, "tasks.db"))
		if err != nil {
			return nil, fmt.Errorf("open sqlite task store provider: %w", err)
		}
		return store, nil
	default:
		logger.Warn("unknown task store provider, falling back to memory", "provider", providerName)
		return NewMemoryStore(), nil
	}
}
