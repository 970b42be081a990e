// Package store persists session snapshots and layout preferences on the
// operator's machine.
package store

import (
	"fmt"

	"github.com/zenibako/prodsheet-golang/sheet"
)

const (
	snapshotKind    = "snapshot"
	preferencesKind = "preferences"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

var (
	_ sheet.LocalStore = (*FileStore)(nil)
	_ sheet.LocalStore = (*SQLiteStore)(nil)
)

// Open returns the local store for backend. path is the database file for
// sqlite and the directory for file; empty selects the cache directory.
func Open(backend, path string) (sheet.LocalStore, error) {
	switch backend {
	case BackendSQLite, "":
		return NewSQLiteStore(path)
	case BackendFile:
		return NewFileStore(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
