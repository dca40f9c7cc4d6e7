package indexing

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AbdouB/memoryd/internal/embedding"
	searchutil "github.com/AbdouB/memoryd/internal/search"
	"github.com/AbdouB/memoryd/internal/store"
)

// recencyWindow is the §4.2.3 rerank formula's max_age_days: a chunk a year
// or older contributes no recency boost.
const recencyWindow = 365 * 24 * time.Hour

// Result is one reranked, deduplicated search hit (§4.2.3).
type Result struct {
	ChunkID    string
	SourceID   string
	SourceType string
	Content    string
	Score      float64
}

// Searcher implements the search contract: per-collection parallel
// semantic + keyword retrieval, merge-by-content dedupe, and the shared
// rerank formula.
type Searcher struct {
	chunks *store.ChunkStore
	embed  embedding.Service
}

// NewSearcher constructs a Searcher.
func NewSearcher(chunks *store.ChunkStore, embed embedding.Service) *Searcher {
	return &Searcher{chunks: chunks, embed: embed}
}

type semanticHit struct {
	chunkID, sourceID, sourceType, content string
	createdAt                              time.Time
	score                                  float64
}

type keywordHit struct {
	chunkID, sourceID, sourceType, content string
	score                                  float64
}

// Search runs the semantic and keyword halves of collection's query in
// parallel, merges hits by content hash (§4.2.3's "merges results by
// content hash (dedupe)" — the same text can reach the Semantic Store
// under more than one chunk_id via different chunking passes, so chunk_id
// alone under-dedupes), reranks, and returns the top limit results.
func (s *Searcher) Search(ctx context.Context, collection, query string, limit int) ([]Result, error) {
	var (
		semHits []semanticHit
		semErr  error
		kwHits  []keywordHit
		kwErr   error
		wg      sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		semHits, semErr = s.semanticQuery(collection, query)
	}()
	go func() {
		defer wg.Done()
		kw, err := s.chunks.KeywordSearch(query, limit*4)
		kwErr = err
		// KeywordSearch runs across every collection's FTS rows; its
		// ChunkID is the "collection:chunk_id" row_key (§3), so scope to
		// this collection and recover the bare chunk_id for merging with
		// the semantic half.
		prefix := collection + ":"
		for _, m := range kw {
			chunkID, ok := strings.CutPrefix(m.ChunkID, prefix)
			if !ok {
				continue
			}
			kwHits = append(kwHits, keywordHit{
				chunkID:    chunkID,
				sourceID:   m.SourceID,
				sourceType: m.SourceType,
				content:    m.Content,
				score:      -m.Rank, // bm25 rank is ascending-is-better; negate to ascending-is-worse
			})
		}
	}()
	wg.Wait()

	if semErr != nil {
		return nil, semErr
	}
	if kwErr != nil {
		return nil, kwErr
	}

	merged := map[string]*Result{}
	createdAt := map[string]time.Time{}

	for _, h := range semHits {
		key := sha256Hex(h.content)
		merged[key] = &Result{
			ChunkID: h.chunkID, SourceID: h.sourceID, SourceType: h.sourceType,
			Content: h.content, Score: h.score,
		}
		createdAt[key] = h.createdAt
	}
	for _, h := range kwHits {
		key := sha256Hex(h.content)
		if existing, ok := merged[key]; ok {
			if h.score > existing.Score {
				existing.Score = h.score
			}
			continue
		}
		merged[key] = &Result{
			ChunkID: h.chunkID, SourceID: h.sourceID, SourceType: h.sourceType,
			Content: h.content, Score: h.score,
		}
	}

	results := make([]Result, 0, len(merged))
	for id, r := range merged {
		r.Score = rerank(r.Score, createdAt[id], query, r.Content)
		results = append(results, *r)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// semanticQuery embeds query and brute-force-cosines it against every
// embedded chunk in collection (§4.2.3; a stand-in for a vec0-backed ANN
// index, see store.ChunkStore.SemanticCandidates).
func (s *Searcher) semanticQuery(collection, query string) ([]semanticHit, error) {
	if s.embed == nil || !s.embed.Available() {
		return nil, nil
	}

	queryVec, err := s.embed.Embed(query, embedding.ContentGeneral)
	if err != nil {
		return nil, err
	}

	candidates, err := s.chunks.SemanticCandidates(collection)
	if err != nil {
		return nil, err
	}

	hits := make([]semanticHit, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Embedding) == 0 {
			continue
		}
		similarity := cosineSimilarity(queryVec, c.Embedding)
		hits = append(hits, semanticHit{
			chunkID:    c.ChunkID,
			sourceID:   c.SourceID,
			sourceType: string(c.SourceType),
			content:    c.Content,
			createdAt:  c.CreatedAt,
			score:      similarity, // "1 - distance" == cosine similarity
		})
	}
	return hits, nil
}

// rerank applies §4.2.3's shared formula:
//
//	score * (1 + recency_boost*0.2) * (1.5 if literal substring match else 1.0)
//	recency_boost = max(0, 1 - age_days/365)
func rerank(score float64, createdAt time.Time, query, content string) float64 {
	recencyBoost := 0.0
	if !createdAt.IsZero() {
		age := time.Since(createdAt)
		recencyBoost = math.Max(0, 1-float64(age)/float64(recencyWindow))
	}

	out := score * (1 + recencyBoost*0.2)
	if searchutil.QueryMatches(query, content) {
		out *= 1.5
	}
	return out
}

// cosineSimilarity mirrors store's private helper — duplicated at the
// package boundary rather than exported, since the Semantic Store keeps
// vector math as an internal implementation detail.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
