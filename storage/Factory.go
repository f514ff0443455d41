package storage

import "fmt"

// NewStore returns an uninitialized Store of the given kind, either
// "memory" (or "") or "sqlite". SQLite stores are only available when
// built with the "sqlite" build tag.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return newSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}
