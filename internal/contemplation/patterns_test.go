package contemplation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdouB/memoryd/internal/models"
)

func TestTemporalCycleDetectsRegularPeriod(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	var points []DataPoint
	for i := 0; i < 6; i++ {
		points = append(points, DataPoint{
			ID:        "standup-" + string(rune('a'+i)),
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Type:      "daily-standup",
		})
	}

	patterns := Recognize(points)

	var cycle *models.Pattern
	for _, p := range patterns {
		if p.Type == models.PatternTemporal && p.Name == "cycle: daily-standup" {
			cycle = p
		}
	}
	require.NotNil(t, cycle)
	require.NotNil(t, cycle.PeriodSecs)
	assert.InDelta(t, 3600, *cycle.PeriodSecs, 1)
	assert.GreaterOrEqual(t, cycle.Confidence, 0.85)
}

func TestSemanticTopicClusterRequiresThreeHits(t *testing.T) {
	points := []DataPoint{
		{ID: "1", Timestamp: time.Now(), Content: "the build failed with an error"},
		{ID: "2", Timestamp: time.Now(), Content: "got a stack trace from the crash"},
		{ID: "3", Timestamp: time.Now(), Content: "still broken after the fix"},
	}

	patterns := Recognize(points)

	var found bool
	for _, p := range patterns {
		if p.Type == models.PatternSemantic && p.Name == "topic: debugging" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestBehavioralDecisionPhraseNeedsTwoOccurrences(t *testing.T) {
	points := []DataPoint{
		{ID: "1", Timestamp: time.Now(), Content: "we decided to use postgres"},
		{ID: "2", Timestamp: time.Now(), Content: "later decided to switch hosting"},
	}

	patterns := Recognize(points)

	var found bool
	for _, p := range patterns {
		if p.Type == models.PatternBehavioral && p.Name == "decision: decided to" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRecognizeBelowThresholdsEmitsNoPatterns(t *testing.T) {
	points := []DataPoint{
		{ID: "1", Timestamp: time.Now(), Content: "just a normal message"},
	}
	assert.Empty(t, Recognize(points))
}
