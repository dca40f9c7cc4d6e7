package bridge

import (
	"github.com/AbdouB/memoryd/internal/store"
)

// Snapshot is the epistemic read-side projection reported by the daemon's
// status command (SPEC_FULL.md supplemental features), patterned
// on the teacher's EpistemicState/calculateEpistemicState but computed from
// IdentifiedFact/Pattern/Insight counts instead of Finding/Unknown/DeadEnd.
type Snapshot struct {
	Know        float64 `json:"know"`
	Uncertainty float64 `json:"uncertainty"`
	Clarity     float64 `json:"clarity"`
	Coherence   float64 `json:"coherence"`
	Completion  float64 `json:"completion"`
	Overall     float64 `json:"overall"`
}

const snapshotSampleSize = 500

// ComputeSnapshot derives a Snapshot from current store contents — a cheap,
// programmatic confidence read alongside the qualitative startup_context
// payload (no new persisted entity, per the supplemental-feature note).
func ComputeSnapshot(facts *store.FactStore, patterns *store.PatternStore, insights *store.InsightStore) (Snapshot, error) {
	unprocessed, err := facts.Unprocessed(snapshotSampleSize)
	if err != nil {
		return Snapshot{}, err
	}
	allPatterns, err := patterns.AboveConfidence(0, snapshotSampleSize)
	if err != nil {
		return Snapshot{}, err
	}
	recentInsights, err := insights.Recent(snapshotSampleSize)
	if err != nil {
		return Snapshot{}, err
	}

	s := Snapshot{}

	// Know: base confidence, boosted by how much corroborated material
	// (solid patterns, synthesized insights) already exists.
	s.Know = clamp01(0.5 + float64(len(allPatterns))*0.02 + float64(len(recentInsights))*0.05)

	// Uncertainty: grows with the backlog of facts contemplation hasn't
	// processed yet — unresolved raw material the picture isn't built on.
	s.Uncertainty = clamp01(0.5 + float64(len(unprocessed))*0.02 - float64(len(recentInsights))*0.05)

	// Clarity: fraction of patterns that have been reinforced past the
	// midpoint, rather than sitting near the archive threshold.
	if len(allPatterns) > 0 {
		solid := 0
		for _, p := range allPatterns {
			if p.Confidence >= 0.5 {
				solid++
			}
		}
		s.Clarity = float64(solid) / float64(len(allPatterns))
	} else {
		s.Clarity = 0.5
	}

	// Coherence: average pattern confidence, a proxy for how well the
	// recognized patterns hang together rather than being one-off noise.
	if len(allPatterns) > 0 {
		var sum float64
		for _, p := range allPatterns {
			sum += p.Confidence
		}
		s.Coherence = sum / float64(len(allPatterns))
	} else {
		s.Coherence = 1.0
	}

	// Completion: how much of the gathered raw material has actually been
	// turned into an insight.
	total := len(unprocessed) + len(recentInsights)
	if total > 0 {
		s.Completion = float64(len(recentInsights)) / float64(total)
	} else {
		s.Completion = 0.5
	}

	s.Overall = clamp01(
		s.Know*0.30 +
			s.Clarity*0.20 +
			s.Coherence*0.20 +
			s.Completion*0.15 -
			s.Uncertainty*0.15,
	)

	return s, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
