package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdouB/memoryd/internal/models"
)

func TestChunkStoreUpsertAndContentHashSkip(t *testing.T) {
	db := openTestDB(t)
	cs := NewChunkStore(db)

	c := &models.Chunk{
		ChunkID:    models.ComputeChunkID("session-1", 0, 5, "hello world"),
		SourceID:   "session-1",
		SourceType: models.ChunkSourceConversation,
		Content:    "hello world",
	}
	require.NoError(t, cs.Upsert("conversations", c, ContentHash([]byte("hello world"))))

	hash, err := cs.ContentHash("conversations", c.ChunkID)
	require.NoError(t, err)
	assert.Equal(t, ContentHash([]byte("hello world")), hash)

	missing, err := cs.ContentHash("conversations", "nope")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestChunkStoreSameChunkIDDifferentCollectionsCoexist(t *testing.T) {
	db := openTestDB(t)
	cs := NewChunkStore(db)

	id := models.ComputeChunkID("src", 0, 1, "x")
	conv := &models.Chunk{ChunkID: id, SourceID: "src", SourceType: models.ChunkSourceConversation, Content: "x"}
	mem := &models.Chunk{ChunkID: id, SourceID: "src", SourceType: models.ChunkSourceMemory, Content: "x"}

	require.NoError(t, cs.Upsert("conversations", conv, "h"))
	require.NoError(t, cs.Upsert("stored_memories", mem, "h"))

	got1, err := cs.BySource("conversations", "src")
	require.NoError(t, err)
	assert.Len(t, got1, 1)

	got2, err := cs.BySource("stored_memories", "src")
	require.NoError(t, err)
	assert.Len(t, got2, 1)
}

func TestChunkStoreKeywordSearchFindsUpsertedContent(t *testing.T) {
	db := openTestDB(t)
	cs := NewChunkStore(db)

	c := &models.Chunk{
		ChunkID:    models.ComputeChunkID("doc-1", 0, 1, "the quick brown fox"),
		SourceID:   "doc-1",
		SourceType: models.ChunkSourceCodebase,
		Content:    "the quick brown fox",
	}
	require.NoError(t, cs.Upsert("codebase", c, "h"))

	hits, err := cs.KeywordSearch("quick", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-1", hits[0].SourceID)
}

func TestChunkStoreUnprocessedThenMarkProcessed(t *testing.T) {
	db := openTestDB(t)
	cs := NewChunkStore(db)

	c := &models.Chunk{ChunkID: "c1", SourceID: "s", SourceType: models.ChunkSourceMemory, Content: "y"}
	require.NoError(t, cs.Upsert("stored_memories", c, "h"))

	pending, err := cs.Unprocessed("stored_memories", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, cs.MarkProcessed("stored_memories", "c1"))

	pending, err = cs.Unprocessed("stored_memories", 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCodeSymbolStoreByProject(t *testing.T) {
	db := openTestDB(t)
	syms := NewCodeSymbolStore(db)

	require.NoError(t, syms.Put(Symbol{SymbolID: "sym1", ChunkID: "c1", ProjectPath: "/repo", Name: "Foo", Kind: "func"}))
	require.NoError(t, syms.Put(Symbol{SymbolID: "sym2", ChunkID: "c2", ProjectPath: "/other", Name: "Bar", Kind: "func"}))

	found, err := syms.ByProject("/repo")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Foo", found[0].Name)
}
