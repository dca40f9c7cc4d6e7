package indexing

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdouB/memoryd/internal/embedding"
	"github.com/AbdouB/memoryd/internal/models"
	"github.com/AbdouB/memoryd/internal/store"
)

func TestMemoryIndexerSweepEmbedsUnprocessedItems(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	chunks := store.NewChunkStore(db)
	require.NoError(t, chunks.Upsert("stored_memories", &models.Chunk{
		ChunkID: "m1", SourceID: "note-1", Content: "remember to rotate the API key",
	}, "hash-m1"))

	ix := NewMemoryIndexer(chunks, store.NewFactStore(db), embedding.NewStub(16))
	_, err = ix.Sweep(10)
	require.NoError(t, err)

	unprocessed, err := chunks.Unprocessed("stored_memories", 10)
	require.NoError(t, err)
	assert.Empty(t, unprocessed)
}

func TestMemoryIndexerSweepNoItemsNoRequests(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ix := NewMemoryIndexer(store.NewChunkStore(db), store.NewFactStore(db), embedding.NewStub(16))
	requests, err := ix.Sweep(10)
	require.NoError(t, err)
	assert.Empty(t, requests)
}

func TestMemoryIndexerSweepEmbedsUnprocessedFacts(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	facts := store.NewFactStore(db)
	f := models.NewIdentifiedFact(models.FactPreference, "prefers dark mode", 0.8, "conv-1", models.FactScopeGlobal)
	require.NoError(t, facts.Put(f))

	ix := NewMemoryIndexer(store.NewChunkStore(db), facts, embedding.NewStub(16))
	_, err = ix.Sweep(10)
	require.NoError(t, err)

	remaining, err := facts.Unprocessed(10)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestMemoryIndexerSweepRequestsOptimizationPastThreshold(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	chunks := store.NewChunkStore(db)
	// A single unprocessed-batch pass can never itself reach
	// optimizationThreshold; the check must count the whole collection, so
	// pre-mark every inserted row processed and assert the request still
	// fires off CollectionSize rather than Unprocessed's capped result.
	for i := 0; i < optimizationThreshold; i++ {
		id := fmt.Sprintf("m%d", i)
		require.NoError(t, chunks.Upsert("stored_memories", &models.Chunk{
			ChunkID: id, SourceID: "note", Content: "x",
		}, id))
		require.NoError(t, chunks.MarkProcessed("stored_memories", id))
	}

	ix := NewMemoryIndexer(chunks, store.NewFactStore(db), embedding.NewStub(16))
	requests, err := ix.Sweep(10)
	require.NoError(t, err)
	require.NotEmpty(t, requests)
	assert.Equal(t, "stored_memories", requests[0].Collection)
}
