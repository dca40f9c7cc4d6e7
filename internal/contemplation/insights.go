package contemplation

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/AbdouB/memoryd/internal/models"
)

// technicalFactWindow is the §4.3.3 margin: a Technical fact counts as
// evidence for a behavioral pattern if its timestamp falls between 7 days
// before the pattern's FirstSeen and 7 days after its LastSeen. Individual
// occurrence times are not consulted, so a fact dated in a long gap between
// two occurrences also counts.
const technicalFactWindow = 7 * 24 * time.Hour

// Synthesize runs the Insight Synthesizer over this cycle's detected
// patterns and facts: for every behavioral pattern, Technical facts dated
// near an occurrence become evidence that the behavior "drives technology
// choices" (§4.3.3).
func Synthesize(patterns []*models.Pattern, facts []*models.IdentifiedFact) []*models.Insight {
	var out []*models.Insight
	for _, p := range patterns {
		if p.Type != models.PatternBehavioral {
			continue
		}
		evidence := technicalFactsNear(p, facts)
		if len(evidence) == 0 {
			continue
		}
		out = append(out, buildTechChoiceInsight(p, evidence))
	}
	return out
}

func technicalFactsNear(p *models.Pattern, facts []*models.IdentifiedFact) []*models.IdentifiedFact {
	windowStart := p.FirstSeen.Add(-technicalFactWindow)
	windowEnd := p.LastSeen.Add(technicalFactWindow)

	var out []*models.IdentifiedFact
	for _, f := range facts {
		if f.Type != models.FactTechnical {
			continue
		}
		if f.Timestamp.Before(windowStart) || f.Timestamp.After(windowEnd) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func buildTechChoiceInsight(p *models.Pattern, evidence []*models.IdentifiedFact) *models.Insight {
	evidenceIDs := make([]string, 0, len(evidence)+1)
	evidenceIDs = append(evidenceIDs, p.PatternID)
	maxEvidenceConfidence := p.Confidence
	for _, f := range evidence {
		evidenceIDs = append(evidenceIDs, f.FactID)
		if f.Confidence > maxEvidenceConfidence {
			maxEvidenceConfidence = f.Confidence
		}
	}

	confidence := math.Min(0.8, 0.9*p.Confidence)
	confidence = boundToEvidence(confidence, maxEvidenceConfidence)

	return &models.Insight{
		InsightID:   uuid.New().String(),
		Title:       fmt.Sprintf("%s drives technology choices", p.Name),
		Description: fmt.Sprintf("%d technical fact(s) observed within 7 days of this behavior pattern's occurrences", len(evidence)),
		Evidence:    evidenceIDs,
		Confidence:  confidence,
		GeneratedAt: time.Now().UTC(),
	}
}

// boundToEvidence enforces §4.3.3's general rule: an insight's confidence
// never exceeds 0.9 times the strongest single piece of evidence behind it.
func boundToEvidence(confidence, maxEvidenceConfidence float64) float64 {
	return math.Min(confidence, 0.9*maxEvidenceConfidence)
}
