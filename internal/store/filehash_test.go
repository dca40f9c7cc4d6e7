package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileHashStoreGetMissingReturnsEmpty(t *testing.T) {
	db := openTestDB(t)
	s := NewFileHashStore(db)

	hash, err := s.Get("/does/not/exist.go")
	require.NoError(t, err)
	assert.Equal(t, "", hash)
}

func TestFileHashStoreSetThenGetRoundTrips(t *testing.T) {
	db := openTestDB(t)
	s := NewFileHashStore(db)

	require.NoError(t, s.Set("/proj/main.go", "abc123"))
	hash, err := s.Get("/proj/main.go")
	require.NoError(t, err)
	assert.Equal(t, "abc123", hash)

	require.NoError(t, s.Set("/proj/main.go", "def456"))
	hash, err = s.Get("/proj/main.go")
	require.NoError(t, err)
	assert.Equal(t, "def456", hash)
}
