package session

import (
	"fmt"
	"path/filepath"

	"github.com/jobcard-dev/jobcard/internal/config"
)

// Store kinds accepted by Open
const (
	KindFile    = "file"
	KindKeyring = "keyring"
	KindSQLite  = "sqlite"
	KindMemory  = "memory"
)

// Open builds the store selected by cfg. namespace scopes keyring entries
// and is usually the backend base URL. The returned close function releases
// any handle the store holds and is always non-nil.
func Open(cfg config.StoreConfig, namespace string) (Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Kind {
	case KindFile, "":
		path, err := defaultPath(cfg.Path, "session.json")
		if err != nil {
			return nil, noop, err
		}
		return NewFileStore(path), noop, nil
	case KindKeyring:
		return NewKeyringStore(namespace), noop, nil
	case KindSQLite:
		path, err := defaultPath(cfg.Path, "session.db")
		if err != nil {
			return nil, noop, err
		}
		store, err := OpenSQLStore(path)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	case KindMemory:
		return NewMemoryStore(), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown session store %q (want file, keyring, sqlite or memory)", cfg.Kind)
	}
}

func defaultPath(path, name string) (string, error) {
	if path != "" {
		return path, nil
	}
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
