package store

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/AbdouB/memoryd/internal/models"
)

// FactStore is the `identified_facts` collection of the Semantic Store
// (§3 IdentifiedFact, §4.5). Persists the full fact as JSON (the encoding
// of the IdentifiedFact struct) plus a handful of queryable columns,
// the same dual-storage shape the teacher daemon uses for findings.
type FactStore struct {
	db *DB
}

// NewFactStore constructs a fact repository.
func NewFactStore(db *DB) *FactStore { return &FactStore{db: db} }

// dedupKey implements the Fact Extractor's dedup key (§4.3.1): (type,
// lowercased content).
func dedupKey(factType models.FactType, content any) string {
	b, _ := json.Marshal(content)
	return string(factType) + ":" + strings.ToLower(string(b))
}

// Put upserts a fact. Facts are never overwritten in place per §3; this is
// only used for the initial insert of each version, keyed by fact_id so a
// repeated submit of the same fact is idempotent (§8 property 2).
func (s *FactStore) Put(f *models.IdentifiedFact) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	var expiration any
	if f.Expiration != nil {
		expiration = f.Expiration.Format(time.RFC3339)
	}

	_, err = s.db.Exec(`
		INSERT INTO identified_facts (
			fact_id, fact_type, confidence, source, timestamp, expiration,
			scope, version, supersedes, superseded_by, verification_status,
			dedup_key, processed, fact_data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(fact_id) DO UPDATE SET
			superseded_by = excluded.superseded_by,
			verification_status = excluded.verification_status,
			fact_data = excluded.fact_data
	`, f.FactID, f.Type, f.Confidence, f.Source, f.Timestamp.Format(time.RFC3339),
		expiration, f.Scope, f.Version, f.Supersedes, f.SupersededBy,
		f.VerificationStatus, dedupKey(f.Type, f.Content), string(data))
	return err
}

// FindByDedupKey returns the highest-confidence fact matching the dedup key
// (§4.3.1 "keep highest confidence"), or nil if none exists.
func (s *FactStore) FindByDedupKey(factType models.FactType, content any) (*models.IdentifiedFact, error) {
	var data string
	err := s.db.Get(&data, `
		SELECT fact_data FROM identified_facts
		WHERE dedup_key = ? ORDER BY confidence DESC LIMIT 1
	`, dedupKey(factType, content))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var f models.IdentifiedFact
	if err := json.Unmarshal([]byte(data), &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Get retrieves a fact by id.
func (s *FactStore) Get(id string) (*models.IdentifiedFact, error) {
	var data string
	err := s.db.Get(&data, `SELECT fact_data FROM identified_facts WHERE fact_id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var f models.IdentifiedFact
	if err := json.Unmarshal([]byte(data), &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// List returns facts of a type, excluding superseded ones unless
// includeSuperseded is set (§8 scenario 3: "queries with include_superseded =
// false (default) return only F2").
func (s *FactStore) List(factType models.FactType, includeSuperseded bool, limit int) ([]*models.IdentifiedFact, error) {
	query := `SELECT fact_data FROM identified_facts WHERE fact_type = ?`
	if !includeSuperseded {
		query += ` AND verification_status != 'superseded'`
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`

	var rows []string
	if err := s.db.Select(&rows, query, factType, limit); err != nil {
		return nil, err
	}
	out := make([]*models.IdentifiedFact, 0, len(rows))
	for _, raw := range rows {
		var f models.IdentifiedFact
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			continue
		}
		out = append(out, &f)
	}
	return out, nil
}

// Unprocessed returns up to limit facts with processed = false, for the
// Contemplation Engine's gather step (§4.3 cycle step 1).
func (s *FactStore) Unprocessed(limit int) ([]*models.IdentifiedFact, error) {
	var rows []string
	err := s.db.Select(&rows, `
		SELECT fact_data FROM identified_facts WHERE processed = 0 ORDER BY timestamp ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*models.IdentifiedFact, 0, len(rows))
	for _, raw := range rows {
		var f models.IdentifiedFact
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			continue
		}
		out = append(out, &f)
	}
	return out, nil
}

// MarkProcessed flags a fact as processed so it is not re-gathered (§4.3
// cycle step 2's `processed_items` membership).
func (s *FactStore) MarkProcessed(id string) error {
	_, err := s.db.Exec(`UPDATE identified_facts SET processed = 1 WHERE fact_id = ?`, id)
	return err
}

// SetEmbedding stores a fact's vector, for the Memory Indexer's sweep over
// identified_facts (§4.2.3).
func (s *FactStore) SetEmbedding(id string, vec []float32) error {
	_, err := s.db.Exec(`UPDATE identified_facts SET embedding = ? WHERE fact_id = ?`, encodeVector(vec), id)
	return err
}

// Count returns the total number of facts ever recorded, for the Memory
// Indexer's optimization-threshold check (§4.2.3).
func (s *FactStore) Count() (int, error) {
	var n int
	err := s.db.Get(&n, `SELECT COUNT(*) FROM identified_facts`)
	return n, err
}

// TechnicalWithin supports the Insight Synthesizer rule (§4.3.3): it
// returns Technical facts whose extraction time is within window of t.
func (s *FactStore) TechnicalWithin(t time.Time, window time.Duration) ([]*models.IdentifiedFact, error) {
	lo := t.Add(-window).Format(time.RFC3339)
	hi := t.Add(window).Format(time.RFC3339)
	var rows []string
	err := s.db.Select(&rows, `
		SELECT fact_data FROM identified_facts
		WHERE fact_type = ? AND timestamp BETWEEN ? AND ?
	`, models.FactTechnical, lo, hi)
	if err != nil {
		return nil, err
	}
	out := make([]*models.IdentifiedFact, 0, len(rows))
	for _, raw := range rows {
		var f models.IdentifiedFact
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			continue
		}
		out = append(out, &f)
	}
	return out, nil
}
