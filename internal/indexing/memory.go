package indexing

import (
	"github.com/AbdouB/memoryd/internal/embedding"
	"github.com/AbdouB/memoryd/internal/store"
)

// optimizationThreshold is the per-collection item count past which the
// Memory Indexer emits an optimization task instead of silently growing
// the collection forever (§4.2.3).
const optimizationThreshold = 5000

// OptimizationRequest is emitted when a collection crosses
// optimizationThreshold; the caller (wired to the scheduler) decides what
// "optimize" means operationally (e.g. re-embed stale vectors, vacuum).
type OptimizationRequest struct {
	Collection string
	Size       int
}

// MemoryIndexer periodically walks unindexed items across the
// stored_memories / identified_facts / raw_embeddings collections,
// embeds them, and signals when a collection has grown large enough to
// warrant optimization (§4.2.3). Items are embedded from their own content
// only; no context (recent sessions, related facts) is added.
type MemoryIndexer struct {
	chunks *store.ChunkStore
	facts  *store.FactStore
	embed  embedding.Service
}

// NewMemoryIndexer constructs a MemoryIndexer.
func NewMemoryIndexer(chunks *store.ChunkStore, facts *store.FactStore, embed embedding.Service) *MemoryIndexer {
	return &MemoryIndexer{chunks: chunks, facts: facts, embed: embed}
}

// memoryCollections are the chunk-table collections the Memory Indexer
// sweeps (§4.2.3); "conversations" and "codebase" have their own dedicated
// indexers and are swept by those instead. "identified_facts" lives in its
// own FactStore table and is swept separately in Sweep below.
var memoryCollections = []string{"stored_memories", "raw_embeddings"}

// Sweep marks up to limit unprocessed items per collection as processed,
// first embedding each chunk that has no vector yet and each fact, and
// returns any optimization requests triggered by collection growth. The
// growth check counts the collection's true total size, not the
// limit-capped batch just swept, since a capped batch can never reach
// optimizationThreshold on its own.
func (ix *MemoryIndexer) Sweep(limit int) ([]OptimizationRequest, error) {
	var requests []OptimizationRequest

	for _, collection := range memoryCollections {
		items, err := ix.chunks.Unprocessed(collection, limit)
		if err != nil {
			return requests, err
		}
		for _, c := range items {
			if ix.embed != nil && ix.embed.Available() && len(c.Embedding) == 0 {
				vec, err := ix.embed.Embed(c.Content, embedding.ContentGeneral)
				if err != nil {
					continue
				}
				c.Embedding = vec
				contentHash, hashErr := ix.chunks.ContentHash(collection, c.ChunkID)
				if hashErr != nil {
					continue
				}
				if err := ix.chunks.Upsert(collection, c, contentHash); err != nil {
					continue
				}
			}
			if err := ix.chunks.MarkProcessed(collection, c.ChunkID); err != nil {
				continue
			}
		}

		size, err := ix.chunks.CollectionSize(collection)
		if err != nil {
			return requests, err
		}
		if size >= optimizationThreshold {
			requests = append(requests, OptimizationRequest{Collection: collection, Size: size})
		}
	}

	if ix.facts != nil {
		facts, err := ix.facts.Unprocessed(limit)
		if err != nil {
			return requests, err
		}
		for _, f := range facts {
			if ix.embed != nil && ix.embed.Available() {
				vec, err := ix.embed.Embed(factEmbedText(f.Content), embedding.ContentGeneral)
				if err == nil {
					_ = ix.facts.SetEmbedding(f.FactID, vec)
				}
			}
			if err := ix.facts.MarkProcessed(f.FactID); err != nil {
				continue
			}
		}

		count, err := ix.facts.Count()
		if err != nil {
			return requests, err
		}
		if count >= optimizationThreshold {
			requests = append(requests, OptimizationRequest{Collection: "identified_facts", Size: count})
		}
	}

	return requests, nil
}

// factEmbedText renders a fact's content field as embeddable text; facts
// carry arbitrary JSON content (§3 IdentifiedFact.content), so anything
// that isn't already a string is skipped rather than guessed at.
func factEmbedText(content any) string {
	if s, ok := content.(string); ok {
		return s
	}
	return ""
}
