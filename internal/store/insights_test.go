package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdouB/memoryd/internal/models"
)

func TestInsightStoreRecentOrdersNewestFirst(t *testing.T) {
	db := openTestDB(t)
	is := NewInsightStore(db)

	older := &models.Insight{InsightID: "i1", Title: "older", Confidence: 0.7, GeneratedAt: time.Now().UTC().Add(-time.Hour)}
	newer := &models.Insight{InsightID: "i2", Title: "newer", Confidence: 0.8, GeneratedAt: time.Now().UTC()}
	require.NoError(t, is.Put(older))
	require.NoError(t, is.Put(newer))

	recent, err := is.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "i2", recent[0].InsightID)
	assert.Equal(t, "i1", recent[1].InsightID)
}

func TestInsightStorePutIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	is := NewInsightStore(db)

	in := &models.Insight{InsightID: "i1", Title: "t", Confidence: 0.5, GeneratedAt: time.Now().UTC()}
	require.NoError(t, is.Put(in))
	require.NoError(t, is.Put(in))

	all, err := is.Recent(10)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
