package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/AbdouB/memoryd/internal/models"
)

// ChunkStore is the vector-collection half of the Semantic Store: the
// `conversations`, `codebase`, `stored_memories`, and `raw_embeddings`
// collections named in §6's GLOSSARY, all sharing the discriminated
// `chunks` table (collection, chunk_id) composite key.
type ChunkStore struct {
	db *DB
}

// NewChunkStore constructs a chunk repository.
func NewChunkStore(db *DB) *ChunkStore { return &ChunkStore{db: db} }

type chunkRow struct {
	ChunkID     string  `db:"chunk_id"`
	Collection  string  `db:"collection"`
	SourceID    string  `db:"source_id"`
	SourceType  string  `db:"source_type"`
	Content     string  `db:"content"`
	ContentHash string  `db:"content_hash"`
	Metadata    *string `db:"metadata"`
	Embedding   []byte  `db:"embedding"`
	StartOffset int     `db:"start_offset"`
	EndOffset   int     `db:"end_offset"`
	Processed   bool    `db:"processed"`
	CreatedAt   string  `db:"created_at"`
}

func rowToChunk(r chunkRow) (*models.Chunk, error) {
	c := &models.Chunk{
		ChunkID:     r.ChunkID,
		SourceID:    r.SourceID,
		SourceType:  models.ChunkSourceType(r.SourceType),
		Content:     r.Content,
		StartOffset: r.StartOffset,
		EndOffset:   r.EndOffset,
	}
	if r.Metadata != nil && *r.Metadata != "" {
		if err := json.Unmarshal([]byte(*r.Metadata), &c.Metadata); err != nil {
			return nil, err
		}
	}
	if len(r.Embedding) > 0 {
		c.Embedding = decodeVector(r.Embedding)
	}
	if r.CreatedAt != "" {
		if ts, err := time.Parse(time.RFC3339, r.CreatedAt); err == nil {
			c.CreatedAt = ts
		}
	}
	return c, nil
}

// Upsert writes a chunk into collection, replacing any prior chunk with the
// same (collection, chunk_id), and mirrors its content into the keyword
// index (§3 GLOSSARY "Semantic Store" — dual semantic+keyword backing).
func (s *ChunkStore) Upsert(collection string, c *models.Chunk, contentHash string) error {
	var metadata any
	if c.Metadata != nil {
		b, err := json.Marshal(c.Metadata)
		if err != nil {
			return err
		}
		metadata = string(b)
	}
	var embedding any
	if len(c.Embedding) > 0 {
		embedding = encodeVector(c.Embedding)
	}

	_, err := s.db.Exec(`
		INSERT INTO chunks (
			chunk_id, collection, source_id, source_type, content, content_hash,
			metadata, embedding, start_offset, end_offset, processed, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(collection, chunk_id) DO UPDATE SET
			content = excluded.content,
			content_hash = excluded.content_hash,
			metadata = excluded.metadata,
			embedding = excluded.embedding,
			start_offset = excluded.start_offset,
			end_offset = excluded.end_offset
	`, c.ChunkID, collection, c.SourceID, c.SourceType, c.Content, contentHash,
		metadata, embedding, c.StartOffset, c.EndOffset, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return err
	}

	rowKey := collection + ":" + c.ChunkID
	_, err = s.db.Exec(`DELETE FROM keyword_index WHERE row_key = ?`, rowKey)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO keyword_index (row_key, source_type, source_id, content) VALUES (?, ?, ?, ?)
	`, rowKey, c.SourceType, c.SourceID, c.Content)
	return err
}

// IndexKeyword writes (or replaces) a standalone keyword_index row not
// backed by a chunks-table row, for granularities finer than a chunk — the
// Conversation Indexer's per-message full-text entries (§4.2.1), keyed by
// rowKey (e.g. "<session_id>:<message_index>").
func (s *ChunkStore) IndexKeyword(rowKey, sourceType, sourceID, content string) error {
	if _, err := s.db.Exec(`DELETE FROM keyword_index WHERE row_key = ?`, rowKey); err != nil {
		return err
	}
	_, err := s.db.Exec(`
		INSERT INTO keyword_index (row_key, source_type, source_id, content) VALUES (?, ?, ?, ?)
	`, rowKey, sourceType, sourceID, content)
	return err
}

// ContentHash returns the stored content_hash for an existing chunk, or ""
// if absent — used for the reindex-skip decision (§4.2.1, §4.2.2).
func (s *ChunkStore) ContentHash(collection, chunkID string) (string, error) {
	var hash string
	err := s.db.Get(&hash, `
		SELECT content_hash FROM chunks WHERE collection = ? AND chunk_id = ?
	`, collection, chunkID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// Unprocessed returns up to limit chunks from collection with processed = 0,
// for the Memory Indexer's periodic embedding pass (§4.2.3).
func (s *ChunkStore) Unprocessed(collection string, limit int) ([]*models.Chunk, error) {
	var rows []chunkRow
	err := s.db.Select(&rows, `
		SELECT chunk_id, collection, source_id, source_type, content, content_hash,
		       metadata, embedding, start_offset, end_offset, processed, created_at
		FROM chunks WHERE collection = ? AND processed = 0 LIMIT ?
	`, collection, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Chunk, 0, len(rows))
	for _, r := range rows {
		c, err := rowToChunk(r)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// MarkProcessed flags a chunk as embedded/indexed.
func (s *ChunkStore) MarkProcessed(collection, chunkID string) error {
	_, err := s.db.Exec(`
		UPDATE chunks SET processed = 1 WHERE collection = ? AND chunk_id = ?
	`, collection, chunkID)
	return err
}

// BySource returns all chunks produced from sourceID within collection, in
// offset order — used to rebuild a session's sliding-window chunk set.
func (s *ChunkStore) BySource(collection, sourceID string) ([]*models.Chunk, error) {
	var rows []chunkRow
	err := s.db.Select(&rows, `
		SELECT chunk_id, collection, source_id, source_type, content, content_hash,
		       metadata, embedding, start_offset, end_offset, processed, created_at
		FROM chunks WHERE collection = ? AND source_id = ? ORDER BY start_offset ASC
	`, collection, sourceID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Chunk, 0, len(rows))
	for _, r := range rows {
		c, err := rowToChunk(r)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// SemanticCandidates returns every chunk in collection carrying an
// embedding, for the brute-force cosine pass backing SemanticSearch until a
// vec0 virtual table replaces it (see vector.go).
func (s *ChunkStore) SemanticCandidates(collection string) ([]*models.Chunk, error) {
	var rows []chunkRow
	err := s.db.Select(&rows, `
		SELECT chunk_id, collection, source_id, source_type, content, content_hash,
		       metadata, embedding, start_offset, end_offset, processed, created_at
		FROM chunks WHERE collection = ? AND embedding IS NOT NULL
	`, collection)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Chunk, 0, len(rows))
	for _, r := range rows {
		c, err := rowToChunk(r)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// CollectionSize returns the total row count for collection, for the
// Memory Indexer's optimization-threshold check (§4.2.3) — deliberately
// the whole collection, not the capped batch Unprocessed returns, since a
// batch limit can never cross a 5000-item threshold on its own.
func (s *ChunkStore) CollectionSize(collection string) (int, error) {
	var n int
	err := s.db.Get(&n, `SELECT COUNT(*) FROM chunks WHERE collection = ?`, collection)
	return n, err
}

// KeywordMatch is one FTS5 hit from the keyword index.
type KeywordMatch struct {
	ChunkID    string
	SourceID   string
	SourceType string
	Content    string
	Rank       float64
}

// KeywordSearch runs the keyword half of the search contract (§4.2.3
// "semantic+keyword merge/dedup/rerank").
func (s *ChunkStore) KeywordSearch(query string, limit int) ([]KeywordMatch, error) {
	type row struct {
		RowKey     string  `db:"row_key"`
		SourceID   string  `db:"source_id"`
		SourceType string  `db:"source_type"`
		Content    string  `db:"content"`
		Rank       float64 `db:"rank"`
	}
	var rows []row
	err := s.db.Select(&rows, `
		SELECT row_key, source_id, source_type, content, bm25(keyword_index) AS rank
		FROM keyword_index WHERE keyword_index MATCH ? ORDER BY rank LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]KeywordMatch, 0, len(rows))
	for _, r := range rows {
		out = append(out, KeywordMatch{
			ChunkID:    r.RowKey,
			SourceID:   r.SourceID,
			SourceType: r.SourceType,
			Content:    r.Content,
			Rank:       r.Rank,
		})
	}
	return out, nil
}

// CodeSymbolStore is the `code_symbols` collection (§4.2.2 AST-extracted
// symbol metadata, one row per symbol discovered while indexing a file).
type CodeSymbolStore struct {
	db *DB
}

// NewCodeSymbolStore constructs a code-symbol repository.
func NewCodeSymbolStore(db *DB) *CodeSymbolStore { return &CodeSymbolStore{db: db} }

// Symbol is a named, kinded code entity extracted from a chunk.
type Symbol struct {
	SymbolID    string
	ChunkID     string
	ProjectPath string
	Name        string
	Kind        string
	Metadata    map[string]any
}

// Put inserts or replaces a symbol row.
func (s *CodeSymbolStore) Put(sym Symbol) error {
	var metadata any
	if sym.Metadata != nil {
		b, err := json.Marshal(sym.Metadata)
		if err != nil {
			return err
		}
		metadata = string(b)
	}
	_, err := s.db.Exec(`
		INSERT INTO code_symbols (symbol_id, chunk_id, project_path, name, kind, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol_id) DO UPDATE SET
			chunk_id = excluded.chunk_id,
			name = excluded.name,
			kind = excluded.kind,
			metadata = excluded.metadata
	`, sym.SymbolID, sym.ChunkID, sym.ProjectPath, sym.Name, sym.Kind, metadata,
		time.Now().UTC().Format(time.RFC3339))
	return err
}

// ByProject lists every symbol extracted from files under projectPath.
func (s *CodeSymbolStore) ByProject(projectPath string) ([]Symbol, error) {
	type row struct {
		SymbolID    string  `db:"symbol_id"`
		ChunkID     string  `db:"chunk_id"`
		ProjectPath string  `db:"project_path"`
		Name        string  `db:"name"`
		Kind        string  `db:"kind"`
		Metadata    *string `db:"metadata"`
	}
	var rows []row
	err := s.db.Select(&rows, `
		SELECT symbol_id, chunk_id, project_path, name, kind, metadata
		FROM code_symbols WHERE project_path = ?
	`, projectPath)
	if err != nil {
		return nil, err
	}
	out := make([]Symbol, 0, len(rows))
	for _, r := range rows {
		sym := Symbol{SymbolID: r.SymbolID, ChunkID: r.ChunkID, ProjectPath: r.ProjectPath, Name: r.Name, Kind: r.Kind}
		if r.Metadata != nil && *r.Metadata != "" {
			_ = json.Unmarshal([]byte(*r.Metadata), &sym.Metadata)
		}
		out = append(out, sym)
	}
	return out, nil
}
