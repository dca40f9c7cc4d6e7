package store

import (
	"database/sql"
	"time"
)

// ExtractionLedger enforces the Storage Orchestrator's at-most-once
// extraction guarantee (§4.5): a given (source_id, content_hash) pair is
// processed at most once per config generation.
type ExtractionLedger struct {
	db *DB
}

// NewExtractionLedger constructs an extraction-ledger repository.
func NewExtractionLedger(db *DB) *ExtractionLedger { return &ExtractionLedger{db: db} }

// AlreadyProcessed reports whether (sourceID, contentHash) has already been
// recorded under configGeneration.
func (l *ExtractionLedger) AlreadyProcessed(sourceID, contentHash string, configGeneration int) (bool, error) {
	var processedAt string
	err := l.db.Get(&processedAt, `
		SELECT processed_at FROM extraction_ledger
		WHERE source_id = ? AND content_hash = ? AND config_generation = ?
	`, sourceID, contentHash, configGeneration)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkProcessed records that (sourceID, contentHash) has been extracted
// under configGeneration. A repeat call for the same triple is a no-op.
func (l *ExtractionLedger) MarkProcessed(sourceID, contentHash string, configGeneration int) error {
	_, err := l.db.Exec(`
		INSERT INTO extraction_ledger (source_id, content_hash, config_generation, processed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(source_id, content_hash, config_generation) DO NOTHING
	`, sourceID, contentHash, configGeneration, time.Now().UTC().Format(time.RFC3339))
	return err
}
