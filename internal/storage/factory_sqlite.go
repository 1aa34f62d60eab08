//go:build sqlite

package storage

// DefaultStoreKind is the backend used when none is configured.
const DefaultStoreKind = "sqlite"

func newSQLiteStore(path string) (Store, error) {
	return NewSQLiteStore(path), nil
}
