package contemplation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdouB/memoryd/internal/models"
	"github.com/AbdouB/memoryd/internal/store"
)

type zeroLoadSampler struct{}

func (zeroLoadSampler) Sample() (float64, float64, error) { return 5, 10, nil }

type highLoadSampler struct{}

func (highLoadSampler) Sample() (float64, float64, error) { return 95, 95, nil }

func newTestEngine(t *testing.T, sampler ResourceSampler) (*Engine, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	e := New(
		store.NewFactStore(db),
		store.NewPatternStore(db),
		store.NewInsightStore(db),
		store.NewChunkStore(db),
		sampler,
	)
	return e, db
}

func seedConversationChunk(t *testing.T, db *store.DB, id, content string) {
	t.Helper()
	chunkStore := store.NewChunkStore(db)
	err := chunkStore.Upsert("conversations", &models.Chunk{
		ChunkID:  id,
		SourceID: "session-1",
		Content:  content,
	}, "hash-"+id)
	require.NoError(t, err)
}

func TestCycleSkipsUnderHighLoad(t *testing.T) {
	e, db := newTestEngine(t, highLoadSampler{})
	seedConversationChunk(t, db, "c1", "I prefer small pull requests.")

	summary, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Skipped)
}

func TestCycleExtractsFactsFromGatheredChunks(t *testing.T) {
	e, db := newTestEngine(t, zeroLoadSampler{})
	seedConversationChunk(t, db, "c1", "we use PostgreSQL for storage and Go for the backend")

	summary, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ItemsGathered)
	assert.GreaterOrEqual(t, summary.FactsFound, 1)

	facts, err := store.NewFactStore(db).List(models.FactTechnical, false, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, facts)
}

func TestCycleDoesNotReprocessAlreadyGatheredChunk(t *testing.T) {
	e, db := newTestEngine(t, zeroLoadSampler{})
	seedConversationChunk(t, db, "c1", "we use Redis for caching")

	_, err := e.Run(context.Background())
	require.NoError(t, err)

	summary, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.ItemsGathered)
}

func TestCycleGathersAnalysisResultsAlongsideConversations(t *testing.T) {
	e, db := newTestEngine(t, zeroLoadSampler{})
	seedConversationChunk(t, db, "c1", "we use PostgreSQL for storage")

	chunkStore := store.NewChunkStore(db)
	require.NoError(t, chunkStore.Upsert("analysis_results", &models.Chunk{
		ChunkID:  "a1",
		SourceID: "main.go",
		Content:  "analysis of main.go (go): 2 functions [main, run], 0 classes [], 1 imports [fmt]",
	}, "hash-a1"))

	summary, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ItemsGathered)

	remaining, err := chunkStore.Unprocessed("analysis_results", 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestCycleSecondConcurrentRunRejected(t *testing.T) {
	e, _ := newTestEngine(t, zeroLoadSampler{})
	e.running.Store(true)
	defer e.running.Store(false)

	_, err := e.Run(context.Background())
	assert.ErrorIs(t, err, ErrCycleAlreadyRunning)
}

func TestCachedInsightsEmptyBeforeAnyCycle(t *testing.T) {
	e, _ := newTestEngine(t, zeroLoadSampler{})
	_, ok := e.CachedInsights()
	assert.False(t, ok)
}

func TestCachedInsightsExpireAfterTTL(t *testing.T) {
	e, _ := newTestEngine(t, zeroLoadSampler{})
	e.refreshCache([]*models.Insight{{InsightID: "i1"}})
	e.cacheMu.Lock()
	e.cache.expires = time.Now().Add(-time.Second)
	e.cacheMu.Unlock()

	_, ok := e.CachedInsights()
	assert.False(t, ok)
}
