package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/AbdouB/memoryd/internal/models"
)

// InsightStore is the `insights` collection backing the Insight Synthesizer
// (§3 Insight, §4.3.3). Insights are written once and never revised in
// place; a later contemplation cycle produces a new insight rather than
// mutating an old one.
type InsightStore struct {
	db *DB
}

// NewInsightStore constructs an insight repository.
func NewInsightStore(db *DB) *InsightStore { return &InsightStore{db: db} }

// Put inserts an insight. Idempotent by insight_id (§8 property 2).
func (s *InsightStore) Put(in *models.Insight) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO insights (insight_id, title, confidence, generated_at, insight_data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(insight_id) DO NOTHING
	`, in.InsightID, in.Title, in.Confidence, in.GeneratedAt.Format(time.RFC3339), string(data))
	return err
}

// Get retrieves an insight by id.
func (s *InsightStore) Get(id string) (*models.Insight, error) {
	var data string
	err := s.db.Get(&data, `SELECT insight_data FROM insights WHERE insight_id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var in models.Insight
	if err := json.Unmarshal([]byte(data), &in); err != nil {
		return nil, err
	}
	return &in, nil
}

// Recent returns the most recently generated insights, newest first — used
// by the bridge's epistemic snapshot. The contemplation engine's TTL-1h
// cache is filled from each cycle's own output, not from this query.
func (s *InsightStore) Recent(limit int) ([]*models.Insight, error) {
	var rows []string
	err := s.db.Select(&rows, `
		SELECT insight_data FROM insights ORDER BY generated_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Insight, 0, len(rows))
	for _, raw := range rows {
		var in models.Insight
		if err := json.Unmarshal([]byte(raw), &in); err != nil {
			continue
		}
		out = append(out, &in)
	}
	return out, nil
}
