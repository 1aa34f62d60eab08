package storage

import (
	"fmt"
	"log/slog"
)

// NewStore builds the backend named by kind. path is the sqlite file or the
// badger directory; an empty badger path keeps the data in memory.
func NewStore(kind, path string, logger *slog.Logger) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return newSQLiteStore(path)
	case "badger":
		cfg := DefaultBadgerConfig(path)
		if path == "" {
			cfg.InMemory = true
		}
		cfg.Logger = logger
		return NewBadgerStore(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
