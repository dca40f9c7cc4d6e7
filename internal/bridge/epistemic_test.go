package bridge

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdouB/memoryd/internal/models"
	"github.com/AbdouB/memoryd/internal/store"
)

func TestComputeSnapshotNeutralOnEmptyStore(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	snap, err := ComputeSnapshot(store.NewFactStore(db), store.NewPatternStore(db), store.NewInsightStore(db))
	require.NoError(t, err)
	assert.Equal(t, 0.5, snap.Clarity)
	assert.Equal(t, 1.0, snap.Coherence)
	assert.Equal(t, 0.5, snap.Completion)
}

func TestComputeSnapshotReflectsReinforcedPatternsAndInsights(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	patterns := store.NewPatternStore(db)
	for i := 0; i < 3; i++ {
		p := &models.Pattern{
			PatternID:   uuid.New().String(),
			Type:        models.PatternBehavioral,
			Name:        "solid pattern",
			Confidence:  0.8,
			FirstSeen:   time.Now().UTC(),
			LastSeen:    time.Now().UTC(),
			Occurrences: []string{"dp-1"},
		}
		require.NoError(t, patterns.Put(p))
	}
	insights := store.NewInsightStore(db)
	insight := &models.Insight{
		InsightID:   uuid.New().String(),
		Title:       "steady progress",
		Confidence:  0.7,
		GeneratedAt: time.Now().UTC(),
	}
	require.NoError(t, insights.Put(insight))

	snap, err := ComputeSnapshot(store.NewFactStore(db), patterns, insights)
	require.NoError(t, err)
	assert.Equal(t, 1.0, snap.Clarity)
	assert.InDelta(t, 0.8, snap.Coherence, 1e-9)
	assert.Greater(t, snap.Know, 0.5)
}
