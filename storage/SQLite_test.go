//go:build sqlite

package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSQLiteStore(t *testing.T) {
	testStore(t, NewSQLiteStore(filepath.Join(t.TempDir(), "cemrl.db")))
}

func TestNewStoreSQLite(t *testing.T) {
	store, err := NewStore("sqlite", filepath.Join(t.TempDir(), "cemrl.db"))
	require.NoError(t, err)
	require.IsType(t, &SQLiteStore{}, store)
}
