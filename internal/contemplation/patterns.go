package contemplation

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/orsinium-labs/stopwords"

	"github.com/AbdouB/memoryd/internal/models"
)

// englishStopwords filters common words out of a point's content before
// topic-keyword matching, so a topic keyword's hit count reflects actual
// subject-matter mentions rather than incidental overlap with filler text.
var englishStopwords = stopwords.MustGet("en")

// stripStopwords lowercases content and drops any word the stopword list
// recognizes, joining what remains back into a single string for substring
// matching against topicKeywords.
func stripStopwords(content string) string {
	words := strings.Fields(strings.ToLower(content))
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if englishStopwords.Contains(w) {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

func newPatternID() string { return uuid.New().String() }

// DataPoint is one observation the Pattern Recognizer scans — a
// conversation turn, a logged event, an analysis result. Type, when set,
// names the event/action the point represents; otherwise the recognizer
// falls back to a content hash as its signature (§4.3.2).
type DataPoint struct {
	ID        string
	Timestamp time.Time
	Content   string
	Type      string
}

// signature implements §4.3.2's "type/action/event field, or md5-prefix
// of content[:50]" rule.
func signature(dp DataPoint) string {
	if dp.Type != "" {
		return dp.Type
	}
	content := dp.Content
	if len(content) > 50 {
		content = content[:50]
	}
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])[:12]
}

// sequenceWindows are the window sizes §4.3.2 scans for repeated temporal
// sequences.
var sequenceWindows = []int{2, 3, 4, 5}

// Recognize runs the Pattern Recognizer over a batch of data points
// gathered by the contemplation cycle and returns newly detected patterns.
// It does not consult or update the pattern store. Engine.Run stores every
// returned pattern as a new record; existing patterns are not looked up or
// reinforced.
func Recognize(points []DataPoint) []*models.Pattern {
	sorted := make([]DataPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	var out []*models.Pattern
	out = append(out, temporalSequences(sorted)...)
	out = append(out, temporalCycles(sorted)...)
	out = append(out, semanticTopicClusters(sorted)...)
	out = append(out, behavioralDecisions(sorted)...)
	return out
}

// temporalSequences finds window-signature strings that repeat at least 3
// times across the series, at each configured window size.
func temporalSequences(points []DataPoint) []*models.Pattern {
	var out []*models.Pattern
	for _, w := range sequenceWindows {
		if len(points) < w {
			continue
		}
		groups := make(map[string][]DataPoint)
		for i := 0; i+w <= len(points); i++ {
			window := points[i : i+w]
			sigs := make([]string, w)
			for j, dp := range window {
				sigs[j] = signature(dp)
			}
			key := strings.Join(sigs, "->")
			groups[key] = append(groups[key], window...)
		}
		for key, members := range groups {
			count := len(members) / w
			if count < 3 {
				continue
			}
			out = append(out, buildSequencePattern(key, members, count))
		}
	}
	return out
}

func buildSequencePattern(key string, members []DataPoint, count int) *models.Pattern {
	confidence := math.Min(0.9, 0.5+0.1*float64(count))
	ids := make([]string, 0, len(members))
	var first, last time.Time
	for i, dp := range members {
		ids = append(ids, dp.ID)
		if i == 0 || dp.Timestamp.Before(first) {
			first = dp.Timestamp
		}
		if i == 0 || dp.Timestamp.After(last) {
			last = dp.Timestamp
		}
	}
	return &models.Pattern{
		PatternID:   newPatternID(),
		Type:        models.PatternTemporal,
		Name:        "sequence: " + key,
		Description: fmt.Sprintf("sequence %q repeated %d times", key, count),
		Occurrences: ids,
		Confidence:  confidence,
		FirstSeen:   first,
		LastSeen:    last,
	}
}

// temporalCycles groups points by signature and looks for a regular
// inter-arrival period (coefficient of variation under 30%).
func temporalCycles(points []DataPoint) []*models.Pattern {
	groups := make(map[string][]DataPoint)
	for _, dp := range points {
		sig := signature(dp)
		groups[sig] = append(groups[sig], dp)
	}

	var out []*models.Pattern
	for sig, members := range groups {
		if len(members) < 3 {
			continue
		}
		sort.Slice(members, func(i, j int) bool { return members[i].Timestamp.Before(members[j].Timestamp) })

		intervals := make([]float64, 0, len(members)-1)
		for i := 1; i < len(members); i++ {
			intervals = append(intervals, members[i].Timestamp.Sub(members[i-1].Timestamp).Seconds())
		}
		mean, std := meanStd(intervals)
		if mean <= 0 || std/mean >= 0.3 {
			continue
		}

		confidence := math.Min(0.9, 0.6+(1-std/mean))
		ids := make([]string, len(members))
		for i, dp := range members {
			ids[i] = dp.ID
		}
		period := mean
		out = append(out, &models.Pattern{
			PatternID:   newPatternID(),
			Type:        models.PatternTemporal,
			Name:        "cycle: " + sig,
			Description: fmt.Sprintf("recurs roughly every %.0fs", mean),
			Occurrences: ids,
			Confidence:  confidence,
			FirstSeen:   members[0].Timestamp,
			LastSeen:    members[len(members)-1].Timestamp,
			PeriodSecs:  &period,
		})
	}
	return out
}

func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean = sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	std = math.Sqrt(sq / float64(len(xs)))
	return mean, std
}

// topicKeywords is the fixed keyword table §4.3.2's semantic topic
// clusters are matched against.
var topicKeywords = map[string][]string{
	"technology":       {"api", "database", "server", "deploy", "library", "framework", "build", "compile"},
	"debugging":        {"bug", "error", "exception", "crash", "stack trace", "fails", "broken"},
	"project-planning": {"deadline", "milestone", "roadmap", "sprint", "backlog", "priority"},
	"collaboration":    {"review", "feedback", "pair", "meeting", "sync", "standup"},
	"performance":      {"latency", "throughput", "slow", "optimize", "benchmark", "profiling"},
}

// semanticTopicClusters counts fixed-keyword hits across the whole batch's
// content and emits a pattern for any topic mentioned at least 3 times.
func semanticTopicClusters(points []DataPoint) []*models.Pattern {
	hitsByTopic := make(map[string]int)
	idsByTopic := make(map[string][]string)

	for _, dp := range points {
		lower := stripStopwords(dp.Content)
		for topic, keywords := range topicKeywords {
			for _, kw := range keywords {
				if strings.Contains(lower, kw) {
					hitsByTopic[topic]++
					idsByTopic[topic] = append(idsByTopic[topic], dp.ID)
					break
				}
			}
		}
	}

	var out []*models.Pattern
	for topic, count := range hitsByTopic {
		if count < 3 {
			continue
		}
		confidence := math.Min(0.9, 0.5+0.05*float64(count))
		out = append(out, &models.Pattern{
			PatternID:   newPatternID(),
			Type:        models.PatternSemantic,
			Name:        "topic: " + topic,
			Description: fmt.Sprintf("%d mentions touching %q", count, topic),
			Occurrences: idsByTopic[topic],
			Confidence:  confidence,
			FirstSeen:   time.Now().UTC(),
			LastSeen:    time.Now().UTC(),
		})
	}
	return out
}

// decisionPhrases are the fixed markers §4.3.2's Behavioral Pattern
// Detector scans for.
var decisionPhrases = []string{"decided to", "chose", "selected", "opted for", "went with"}

// behavioralDecisions emits a pattern per decision phrase mentioned at
// least twice across the batch.
func behavioralDecisions(points []DataPoint) []*models.Pattern {
	hits := make(map[string][]DataPoint)
	for _, dp := range points {
		lower := strings.ToLower(dp.Content)
		for _, phrase := range decisionPhrases {
			if strings.Contains(lower, phrase) {
				hits[phrase] = append(hits[phrase], dp)
			}
		}
	}

	var out []*models.Pattern
	for phrase, members := range hits {
		if len(members) < 2 {
			continue
		}
		confidence := math.Min(0.9, 0.5+0.1*float64(len(members)))
		ids := make([]string, len(members))
		var first, last time.Time
		for i, dp := range members {
			ids[i] = dp.ID
			if i == 0 || dp.Timestamp.Before(first) {
				first = dp.Timestamp
			}
			if i == 0 || dp.Timestamp.After(last) {
				last = dp.Timestamp
			}
		}
		out = append(out, &models.Pattern{
			PatternID:   newPatternID(),
			Type:        models.PatternBehavioral,
			Name:        "decision: " + phrase,
			Description: fmt.Sprintf("%q appears %d times", phrase, len(members)),
			Occurrences: ids,
			Confidence:  confidence,
			FirstSeen:   first,
			LastSeen:    last,
		})
	}
	return out
}
