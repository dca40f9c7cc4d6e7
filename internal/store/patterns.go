package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/AbdouB/memoryd/internal/models"
)

// PatternStore is the `patterns` collection backing the Pattern Recognizer
// (§3 Pattern, §4.3.2).
type PatternStore struct {
	db *DB
}

// NewPatternStore constructs a pattern repository.
func NewPatternStore(db *DB) *PatternStore { return &PatternStore{db: db} }

// Put upserts a pattern, storing the full struct as JSON plus the columns
// needed for listing/archival queries.
func (s *PatternStore) Put(p *models.Pattern) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO patterns (pattern_id, pattern_type, name, confidence, first_seen, last_seen, archived, pattern_data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pattern_id) DO UPDATE SET
			confidence = excluded.confidence,
			last_seen = excluded.last_seen,
			archived = excluded.archived,
			pattern_data = excluded.pattern_data
	`, p.PatternID, p.Type, p.Name, p.Confidence,
		p.FirstSeen.Format(time.RFC3339), p.LastSeen.Format(time.RFC3339), p.Archived, string(data))
	return err
}

// Get retrieves a pattern by id.
func (s *PatternStore) Get(id string) (*models.Pattern, error) {
	var data string
	err := s.db.Get(&data, `SELECT pattern_data FROM patterns WHERE pattern_id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p models.Pattern
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ByType returns non-archived patterns of a type. The contemplation cycle
// does not call it: it stores each recognized pattern as a new record
// without looking up existing ones.
func (s *PatternStore) ByType(patternType models.PatternType) ([]*models.Pattern, error) {
	var rows []string
	err := s.db.Select(&rows, `
		SELECT pattern_data FROM patterns WHERE pattern_type = ? AND archived = 0
	`, patternType)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Pattern, 0, len(rows))
	for _, raw := range rows {
		var p models.Pattern
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			continue
		}
		out = append(out, &p)
	}
	return out, nil
}

// AboveConfidence returns non-archived patterns at or above a confidence
// floor, highest first; the bridge's epistemic snapshot uses it (with a
// floor of 0) to sample the current patterns.
func (s *PatternStore) AboveConfidence(min float64, limit int) ([]*models.Pattern, error) {
	var rows []string
	err := s.db.Select(&rows, `
		SELECT pattern_data FROM patterns
		WHERE archived = 0 AND confidence >= ?
		ORDER BY confidence DESC LIMIT ?
	`, min, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Pattern, 0, len(rows))
	for _, raw := range rows {
		var p models.Pattern
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			continue
		}
		out = append(out, &p)
	}
	return out, nil
}
