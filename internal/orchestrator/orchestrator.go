// Package orchestrator implements the Storage Orchestrator (§4.5): every
// write is first classified, then routed to the Raw Store or one of the
// Semantic Store's collections, with the classifier's decision table kept
// in internal/classify and the two backends kept in internal/store.
package orchestrator

import (
	"time"

	"github.com/AbdouB/memoryd/internal/classify"
	"github.com/AbdouB/memoryd/internal/embedding"
	"github.com/AbdouB/memoryd/internal/models"
	"github.com/AbdouB/memoryd/internal/store"
)

// Item is one piece of content ready to be classified and routed.
type Item struct {
	SourceID      string
	Text          string
	Bytes         []byte
	MarkedPrivate bool
	MarkedInsight bool
	Source        string
	IsBinary      bool
	Scope         models.FactScope
	Confidence    float64
	// SemanticHash is the caller-supplied opaque hash for anything routed
	// to private_memory (§9 Open Question 2); the core does not validate
	// it. If blank, the orchestrator computes the content hash of the
	// item's bytes and uses that instead, so ad hoc private writes still
	// work without the caller pre-computing one.
	SemanticHash string
}

// Outcome reports where an Item ended up, for callers (indexers,
// contemplation) that want to log or test routing decisions.
type Outcome struct {
	Route   classify.Route
	FactID  string
	ChunkID string
	BlobID  string
	// Skipped is true when the (source_id, content_hash) pair was already
	// processed this config generation (§4.5 at-most-once extraction).
	Skipped bool
}

// Orchestrator wires the Classifier's routing decision to the Raw Store
// and Semantic Store backends.
type Orchestrator struct {
	facts   *store.FactStore
	chunks  *store.ChunkStore
	raw     *store.RawStore
	ledger  *store.ExtractionLedger
	embed   embedding.Service
	genID   int
}

// New constructs an Orchestrator. configGeneration scopes the at-most-once
// extraction guarantee (§4.5) — pass config.LoadResult.Generation.
func New(facts *store.FactStore, chunks *store.ChunkStore, raw *store.RawStore, ledger *store.ExtractionLedger, embed embedding.Service, configGeneration int) *Orchestrator {
	return &Orchestrator{facts: facts, chunks: chunks, raw: raw, ledger: ledger, embed: embed, genID: configGeneration}
}

// Ingest classifies item and writes it to the appropriate backend,
// enforcing the at-most-once-per-config-generation extraction guarantee.
func (o *Orchestrator) Ingest(item Item) (Outcome, error) {
	bytes := item.Bytes
	if bytes == nil {
		bytes = []byte(item.Text)
	}
	contentHash := store.ContentHash(bytes)

	if o.ledger != nil {
		done, err := o.ledger.AlreadyProcessed(item.SourceID, contentHash, o.genID)
		if err != nil {
			return Outcome{}, err
		}
		if done {
			return Outcome{Skipped: true}, nil
		}
	}

	route := classify.Classify(classify.Input{
		Text:          item.Text,
		MarkedPrivate: item.MarkedPrivate,
		MarkedInsight: item.MarkedInsight,
		Source:        item.Source,
		IsBinary:      item.IsBinary,
	})

	var (
		out Outcome
		err error
	)
	switch route {
	case classify.RoutePrivate:
		out, err = o.routePrivate(item, bytes, contentHash)
	case classify.RouteInsight:
		out, err = o.routeInsight(item, contentHash)
	case classify.RouteRaw:
		out, err = o.routeRaw(item, bytes, contentHash)
	default:
		out, err = o.routeFact(item)
	}
	if err != nil {
		return Outcome{}, err
	}
	out.Route = route

	if o.ledger != nil {
		if markErr := o.ledger.MarkProcessed(item.SourceID, contentHash, o.genID); markErr != nil {
			return out, markErr
		}
	}
	return out, nil
}

// routePrivate stores the opaque blob in the Raw Store's private_memory
// namespace and writes only a semantic_hash shadow fact into the Semantic
// Store — the text itself never crosses that boundary (§4.5 guarantee
// "no read-through from Raw Store private blobs").
func (o *Orchestrator) routePrivate(item Item, bytes []byte, contentHash string) (Outcome, error) {
	semanticHash := item.SemanticHash
	if semanticHash == "" {
		semanticHash = contentHash
	}

	blob, err := o.raw.PutPrivateBlob(item.Source, semanticHash, bytes)
	if err != nil {
		return Outcome{}, err
	}

	fact := models.NewIdentifiedFact(models.FactCustom, semanticHash, 1.0, item.Source, models.FactScopePrivate)
	if err := o.facts.Put(fact); err != nil {
		return Outcome{}, err
	}
	return Outcome{FactID: fact.FactID, BlobID: blob.BlobID}, nil
}

// routeInsight writes content into the Semantic Store's stored_memories
// collection (§4.5 row 2).
func (o *Orchestrator) routeInsight(item Item, contentHash string) (Outcome, error) {
	chunkID := models.ComputeChunkID(item.SourceID, 0, len(item.Text), item.Text)
	chunk := &models.Chunk{
		ChunkID:    chunkID,
		SourceID:   item.SourceID,
		SourceType: models.ChunkSourceMemory,
		Content:    item.Text,
	}
	if o.embed != nil && o.embed.Available() {
		if vec, err := o.embed.Embed(item.Text, embedding.ContentGeneral); err == nil {
			chunk.Embedding = vec
		}
	}
	if err := o.chunks.Upsert("stored_memories", chunk, contentHash); err != nil {
		return Outcome{}, err
	}
	return Outcome{ChunkID: chunkID}, nil
}

// routeRaw serializes binary/structured content to embedding-input text in
// raw_embeddings, and keeps the original bytes as a referenced side-blob in
// the Raw Store (§4.5 row 3).
func (o *Orchestrator) routeRaw(item Item, bytes []byte, contentHash string) (Outcome, error) {
	blobID, err := o.raw.PutBlob("raw_embeddings", item.Source, bytes)
	if err != nil {
		return Outcome{}, err
	}

	text := item.Text
	if text == "" {
		text = string(bytes)
	}
	chunkID := models.ComputeChunkID(item.SourceID, 0, len(text), text)
	chunk := &models.Chunk{
		ChunkID:    chunkID,
		SourceID:   item.SourceID,
		SourceType: models.ChunkSourceMemory,
		Content:    text,
		Metadata:   map[string]any{"raw_blob_id": blobID},
	}
	if o.embed != nil && o.embed.Available() {
		if vec, err := o.embed.Embed(text, embedding.ContentGeneral); err == nil {
			chunk.Embedding = vec
		}
	}
	if err := o.chunks.Upsert("raw_embeddings", chunk, contentHash); err != nil {
		return Outcome{}, err
	}
	return Outcome{ChunkID: chunkID, BlobID: blobID}, nil
}

// routeFact is the default: identified_facts, type=custom (§4.5 row 4).
func (o *Orchestrator) routeFact(item Item) (Outcome, error) {
	scope := item.Scope
	if scope == "" {
		scope = models.FactScopeGlobal
	}
	confidence := item.Confidence
	if confidence == 0 {
		confidence = 0.5
	}
	fact := models.NewIdentifiedFact(models.FactCustom, item.Text, confidence, item.Source, scope)
	fact.Timestamp = time.Now().UTC()
	if err := o.facts.Put(fact); err != nil {
		return Outcome{}, err
	}
	return Outcome{FactID: fact.FactID}, nil
}
