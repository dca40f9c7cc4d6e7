package contemplation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdouB/memoryd/internal/models"
)

func TestSynthesizeEmitsTechChoiceInsightWhenEvidenceNearby(t *testing.T) {
	now := time.Now().UTC()
	pattern := &models.Pattern{
		PatternID:  "p1",
		Type:       models.PatternBehavioral,
		Name:       "decision: decided to",
		Confidence: 0.8,
		FirstSeen:  now.Add(-2 * 24 * time.Hour),
		LastSeen:   now,
	}
	fact := models.NewIdentifiedFact(models.FactTechnical, "postgresql", 0.9, "conversation", models.FactScopeGlobal)
	fact.Timestamp = now.Add(-1 * 24 * time.Hour)

	insights := Synthesize([]*models.Pattern{pattern}, []*models.IdentifiedFact{fact})

	require.Len(t, insights, 1)
	assert.Equal(t, "decision: decided to drives technology choices", insights[0].Title)
	assert.LessOrEqual(t, insights[0].Confidence, 0.9*fact.Confidence+1e-9)
	assert.LessOrEqual(t, insights[0].Confidence, 0.8)
}

func TestSynthesizeSkipsWhenNoTechnicalFactsNearby(t *testing.T) {
	now := time.Now().UTC()
	pattern := &models.Pattern{
		PatternID:  "p1",
		Type:       models.PatternBehavioral,
		Name:       "decision: chose",
		Confidence: 0.8,
		FirstSeen:  now.Add(-2 * 24 * time.Hour),
		LastSeen:   now,
	}
	fact := models.NewIdentifiedFact(models.FactTechnical, "redis", 0.9, "conversation", models.FactScopeGlobal)
	fact.Timestamp = now.Add(-30 * 24 * time.Hour) // outside the 7-day window

	insights := Synthesize([]*models.Pattern{pattern}, []*models.IdentifiedFact{fact})
	assert.Empty(t, insights)
}

func TestSynthesizeIgnoresNonBehavioralPatterns(t *testing.T) {
	now := time.Now().UTC()
	pattern := &models.Pattern{
		PatternID:  "p2",
		Type:       models.PatternTemporal,
		Name:       "cycle: x",
		Confidence: 0.9,
		FirstSeen:  now,
		LastSeen:   now,
	}
	fact := models.NewIdentifiedFact(models.FactTechnical, "go", 0.9, "conversation", models.FactScopeGlobal)

	assert.Empty(t, Synthesize([]*models.Pattern{pattern}, []*models.IdentifiedFact{fact}))
}
