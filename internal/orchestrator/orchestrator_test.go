package orchestrator

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdouB/memoryd/internal/classify"
	"github.com/AbdouB/memoryd/internal/embedding"
	"github.com/AbdouB/memoryd/internal/store"
)

func newTestOrchestrator(t *testing.T, gen int) (*Orchestrator, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	o := New(
		store.NewFactStore(db),
		store.NewChunkStore(db),
		store.NewRawStore(db),
		store.NewExtractionLedger(db),
		embedding.NewStub(16),
		gen,
	)
	return o, db
}

func TestIngestPrivateMarkerRoutesToRawStoreWithHashOnlyFact(t *testing.T) {
	o, db := newTestOrchestrator(t, 1)

	out, err := o.Ingest(Item{
		SourceID: "conv-1",
		Text:     "honestly, I'm uncertain this design will hold up",
		Source:   "session",
	})
	require.NoError(t, err)
	assert.Equal(t, classify.RoutePrivate, out.Route)
	require.NotEmpty(t, out.FactID)
	require.NotEmpty(t, out.BlobID)

	fact, err := store.NewFactStore(db).Get(out.FactID)
	require.NoError(t, err)
	require.NotNil(t, fact)
	assert.NotContains(t, fact.Content, "uncertain")
}

func TestIngestInsightRoutesToStoredMemories(t *testing.T) {
	o, db := newTestOrchestrator(t, 1)

	out, err := o.Ingest(Item{
		SourceID:      "synth-1",
		Text:          "working in short focused sprints keeps momentum",
		Source:        "synthesizer",
		MarkedInsight: true,
	})
	require.NoError(t, err)
	assert.Equal(t, classify.RouteInsight, out.Route)

	chunks, err := store.NewChunkStore(db).BySource("stored_memories", "synth-1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
}

func TestIngestDefaultRoutesToCustomFact(t *testing.T) {
	o, db := newTestOrchestrator(t, 1)

	out, err := o.Ingest(Item{SourceID: "conv-2", Text: "the build finished", Source: "session"})
	require.NoError(t, err)
	assert.Equal(t, classify.RouteFact, out.Route)

	fact, err := store.NewFactStore(db).Get(out.FactID)
	require.NoError(t, err)
	require.NotNil(t, fact)
}

func TestIngestSameContentTwiceIsSkippedSecondTime(t *testing.T) {
	o, _ := newTestOrchestrator(t, 1)
	item := Item{SourceID: "conv-3", Text: "the build finished", Source: "session"}

	out1, err := o.Ingest(item)
	require.NoError(t, err)
	assert.False(t, out1.Skipped)

	out2, err := o.Ingest(item)
	require.NoError(t, err)
	assert.True(t, out2.Skipped)
}

func TestIngestSameContentReprocessedUnderNewConfigGeneration(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	item := Item{SourceID: "conv-4", Text: "the build finished", Source: "session"}

	o1 := New(store.NewFactStore(db), store.NewChunkStore(db), store.NewRawStore(db), store.NewExtractionLedger(db), embedding.NewStub(16), 1)
	out1, err := o1.Ingest(item)
	require.NoError(t, err)
	assert.False(t, out1.Skipped)

	o2 := New(store.NewFactStore(db), store.NewChunkStore(db), store.NewRawStore(db), store.NewExtractionLedger(db), embedding.NewStub(16), 2)
	out2, err := o2.Ingest(item)
	require.NoError(t, err)
	assert.False(t, out2.Skipped)
}
