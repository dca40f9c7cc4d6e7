package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdouB/memoryd/internal/models"
)

func TestFactStoreSupersessionHidesOldVersionByDefault(t *testing.T) {
	db := openTestDB(t)
	fs := NewFactStore(db)

	f1 := models.NewIdentifiedFact(models.FactTechnical, "uses Postgres", 0.6, "session:s1", models.FactScopeGlobal)
	require.NoError(t, fs.Put(f1))

	f2 := f1.Supersede("uses SQLite", 0.9, "session:s2")
	require.NoError(t, fs.Put(f1)) // persist the now-superseded f1
	require.NoError(t, fs.Put(f2))

	visible, err := fs.List(models.FactTechnical, false, 10)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, f2.FactID, visible[0].FactID)

	all, err := fs.List(models.FactTechnical, true, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFactStoreFindByDedupKeyPrefersHighestConfidence(t *testing.T) {
	db := openTestDB(t)
	fs := NewFactStore(db)

	low := models.NewIdentifiedFact(models.FactPreference, "prefers dark mode", 0.5, "s1", models.FactScopeGlobal)
	high := models.NewIdentifiedFact(models.FactPreference, "prefers dark mode", 0.95, "s2", models.FactScopeGlobal)
	require.NoError(t, fs.Put(low))
	require.NoError(t, fs.Put(high))

	found, err := fs.FindByDedupKey(models.FactPreference, "prefers dark mode")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, high.FactID, found.FactID)
}

func TestFactStoreUnprocessedThenMarkProcessed(t *testing.T) {
	db := openTestDB(t)
	fs := NewFactStore(db)

	f := models.NewIdentifiedFact(models.FactGoal, "ship the daemon", 0.7, "s1", models.FactScopeGlobal)
	require.NoError(t, fs.Put(f))

	unprocessed, err := fs.Unprocessed(10)
	require.NoError(t, err)
	require.Len(t, unprocessed, 1)

	require.NoError(t, fs.MarkProcessed(f.FactID))

	unprocessed, err = fs.Unprocessed(10)
	require.NoError(t, err)
	assert.Empty(t, unprocessed)
}

func TestFactStoreGetMissingReturnsNilNil(t *testing.T) {
	db := openTestDB(t)
	fs := NewFactStore(db)

	f, err := fs.Get("does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, f)
}
