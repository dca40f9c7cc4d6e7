package contemplation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AbdouB/memoryd/internal/logging"
	"github.com/AbdouB/memoryd/internal/models"
	"github.com/AbdouB/memoryd/internal/store"
)

// ErrCycleAlreadyRunning is returned by Run when a prior cycle is still in
// flight — §5 guarantees contemplation cycles are globally serialized.
var ErrCycleAlreadyRunning = errors.New("contemplation: cycle already running")

// minExtractionConfidence is §4.3's acceptance gate for candidate facts.
const minExtractionConfidence = 0.6

// minFactsForPatternPass and minPatternsForInsightPass gate the cycle's
// later stages so the Pattern Recognizer and Insight Synthesizer only run
// once there is enough material to be worth the pass (§4.3).
const (
	minFactsForPatternPass    = 10
	minPatternsForInsightPass = 3
)

// gatherLimit is the "≤100 unprocessed items" cap of §4.3's gather step.
const gatherLimit = 100

// cycleHardCap is §5's 5-minute hard timeout for one contemplation cycle.
const cycleHardCap = 5 * time.Minute

// ResourceSampler reports current system load. Structurally identical to
// scheduler.ResourceSampler so a scheduler.SystemSampler can be passed in
// directly without an import cycle.
type ResourceSampler interface {
	Sample() (cpuPercent, memPercent float64, err error)
}

// Summary reports what one contemplation cycle did, for logging and the
// TTL-1h insight cache.
type Summary struct {
	Skipped      bool
	SkipReason   string
	ItemsGathered int
	FactsFound    int
	PatternsFound int
	InsightsFound int
}

// Engine owns one contemplation cycle's state: the stores it reads from
// and writes to, the in-memory processed-items set, and the insight
// cache. Grounded on roelfdiedericks-goclaw's maintenance cycle shape
// (internal/memorygraph/maintenance.go): ordered sub-steps, each
// independently fallible, logged and skipped rather than aborting the
// whole cycle.
type Engine struct {
	facts    *store.FactStore
	patterns *store.PatternStore
	insights *store.InsightStore
	chunks   *store.ChunkStore

	resources ResourceSampler

	running atomic.Bool

	mu             sync.Mutex
	processedItems map[string]struct{} // in-memory, per §4.3 step 2

	cache      *cachedInsights
	cacheMu    sync.Mutex
}

type cachedInsights struct {
	insights []*models.Insight
	expires  time.Time
}

// New constructs a contemplation Engine.
func New(facts *store.FactStore, patterns *store.PatternStore, insights *store.InsightStore, chunks *store.ChunkStore, resources ResourceSampler) *Engine {
	return &Engine{
		facts:          facts,
		patterns:       patterns,
		insights:       insights,
		chunks:         chunks,
		resources:      resources,
		processedItems: make(map[string]struct{}),
	}
}

// Run executes one contemplation cycle per §4.3: gate on load, gather,
// extract, recognize, synthesize, cache. At most one cycle runs at a
// time; a second concurrent call returns ErrCycleAlreadyRunning
// immediately rather than blocking (§5's "at most one cycle in flight").
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	if !e.running.CompareAndSwap(false, true) {
		return Summary{}, ErrCycleAlreadyRunning
	}
	defer e.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, cycleHardCap)
	defer cancel()

	if e.resources != nil {
		cpuPct, memPct, err := e.resources.Sample()
		if err == nil && (cpuPct >= 30 || memPct >= 70) {
			return Summary{Skipped: true, SkipReason: "load gate: cpu or mem above contemplation threshold"}, nil
		}
	}

	points, err := e.gather(ctx)
	if err != nil {
		logging.L_warn("contemplation: gather failed", "error", err)
		return Summary{}, err
	}

	var extracted []*models.IdentifiedFact
	for _, p := range points {
		for _, f := range Extract(p.Content, "conversation") {
			if f.Confidence >= minExtractionConfidence {
				extracted = append(extracted, f)
			}
		}
	}
	extracted = DedupKeepHighest(extracted)
	for _, f := range extracted {
		if err := e.persistFact(f); err != nil {
			logging.L_warn("contemplation: persist fact failed", "error", err)
		}
	}

	summary := Summary{ItemsGathered: len(points), FactsFound: len(extracted)}

	if len(extracted) < minFactsForPatternPass {
		return summary, nil
	}
	detected := Recognize(points)
	for _, p := range detected {
		if err := e.patterns.Put(p); err != nil {
			logging.L_warn("contemplation: persist pattern failed", "error", err)
		}
	}
	summary.PatternsFound = len(detected)

	if len(detected) < minPatternsForInsightPass {
		return summary, nil
	}
	generated := Synthesize(detected, extracted)
	for _, in := range generated {
		if err := e.insights.Put(in); err != nil {
			logging.L_warn("contemplation: persist insight failed", "error", err)
		}
	}
	summary.InsightsFound = len(generated)

	e.refreshCache(generated)
	return summary, nil
}

// persistFact dedups an extracted fact against the store: an existing
// fact at the same dedup key is superseded when the candidate's confidence
// is strictly higher; otherwise the candidate is dropped.
func (e *Engine) persistFact(f *models.IdentifiedFact) error {
	existing, err := e.facts.FindByDedupKey(f.Type, f.Content)
	if err != nil {
		return err
	}
	if existing == nil {
		return e.facts.Put(f)
	}
	if existing.Confidence >= f.Confidence {
		return nil
	}
	next := existing.Supersede(f.Content, f.Confidence, f.Source)
	if err := e.facts.Put(existing); err != nil {
		return err
	}
	return e.facts.Put(next)
}

// gatherCollections are §4.3 step 1's two contemplation inputs: raw
// conversation chunks and the Codebase Indexer's derived per-file
// analysis summaries.
var gatherCollections = []string{"conversations", "analysis_results"}

// gather collects up to gatherLimit unprocessed chunks per collection in
// gatherCollections, skipping anything this engine instance has already
// gathered in any earlier cycle (§4.3 step 1/2).
func (e *Engine) gather(ctx context.Context) ([]DataPoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var points []DataPoint
	for _, collection := range gatherCollections {
		if ctx.Err() != nil {
			break
		}
		chunks, err := e.chunks.Unprocessed(collection, gatherLimit)
		if err != nil {
			return nil, err
		}
		for _, c := range chunks {
			key := collection + ":" + c.ChunkID
			if _, seen := e.processedItems[key]; seen {
				continue
			}
			if ctx.Err() != nil {
				break
			}
			points = append(points, DataPoint{
				ID:        key,
				Timestamp: chunkTimestamp(c),
				Content:   c.Content,
			})
			e.processedItems[key] = struct{}{}
			if err := e.chunks.MarkProcessed(collection, c.ChunkID); err != nil {
				logging.L_warn("contemplation: mark processed failed", "collection", collection, "error", err)
			}
		}
	}
	return points, nil
}

func chunkTimestamp(c *models.Chunk) time.Time {
	if raw, ok := c.Metadata["first_timestamp"].(string); ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}

// refreshCache updates the TTL-1h cache of recently generated insights
// (§4.3's "update insight cache" step).
func (e *Engine) refreshCache(insights []*models.Insight) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	e.cache = &cachedInsights{insights: insights, expires: time.Now().Add(time.Hour)}
}

// CachedInsights returns this run's cached insights if the TTL hasn't
// expired, and whether the cache was valid.
func (e *Engine) CachedInsights() ([]*models.Insight, bool) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	if e.cache == nil || time.Now().After(e.cache.expires) {
		return nil, false
	}
	return e.cache.insights, true
}
