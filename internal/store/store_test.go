package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// openTestDB opens a fresh on-disk database under a temp dir. ncruces'
// sqlite driver does not support the mattn-style ":memory:" + shared-cache
// combination this package's pragma sequence relies on, so tests use a
// throwaway file instead of an in-memory database.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
