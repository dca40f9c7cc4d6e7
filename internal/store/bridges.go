package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/AbdouB/memoryd/internal/models"
)

// BridgeStore is the `bridges` collection backing the Session-Continuity
// Bridge (§3 SessionBridge, §4.4).
type BridgeStore struct {
	db *DB
}

// NewBridgeStore constructs a bridge repository.
func NewBridgeStore(db *DB) *BridgeStore { return &BridgeStore{db: db} }

// Put inserts or replaces a bridge.
func (s *BridgeStore) Put(b *models.SessionBridge) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	var toSession, activatedAt any
	if b.ToSession != nil {
		toSession = *b.ToSession
	}
	if b.ActivatedAt != nil {
		activatedAt = b.ActivatedAt.Format(time.RFC3339)
	}
	_, err = s.db.Exec(`
		INSERT INTO bridges (bridge_id, from_session, to_session, created_at, activated_at, bridge_data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(bridge_id) DO UPDATE SET
			to_session = excluded.to_session,
			activated_at = excluded.activated_at,
			bridge_data = excluded.bridge_data
	`, b.BridgeID, b.FromSession, toSession, b.CreatedAt.Format(time.RFC3339), activatedAt, string(data))
	return err
}

// Get retrieves a bridge by id.
func (s *BridgeStore) Get(id string) (*models.SessionBridge, error) {
	var data string
	err := s.db.Get(&data, `SELECT bridge_data FROM bridges WHERE bridge_id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var b models.SessionBridge
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// MostRecentUnactivated returns the newest bridge from fromSession that has
// not yet been activated, or nil — the handoff a new session should pick up
// (§4.4 activation).
func (s *BridgeStore) MostRecentUnactivated(fromSession string) (*models.SessionBridge, error) {
	var data string
	err := s.db.Get(&data, `
		SELECT bridge_data FROM bridges
		WHERE from_session = ? AND activated_at IS NULL
		ORDER BY created_at DESC LIMIT 1
	`, fromSession)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var b models.SessionBridge
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// MostRecentUnactivatedAny returns the newest unactivated bridge across all
// prior sessions — used on startup, when the new session doesn't yet know
// which prior session it is continuing from (§4.4 activation: "Find
// most-recent unactivated bridge").
func (s *BridgeStore) MostRecentUnactivatedAny() (*models.SessionBridge, error) {
	var data string
	err := s.db.Get(&data, `
		SELECT bridge_data FROM bridges
		WHERE activated_at IS NULL
		ORDER BY created_at DESC LIMIT 1
	`)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var b models.SessionBridge
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// PruneExpired deletes bridges created before the retention cutoff (§4.4
// retention rules, driven by config.SessionContinuity.BridgeRetentionDays).
func (s *BridgeStore) PruneExpired(olderThan time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM bridges WHERE created_at < ?`, olderThan.Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PruneActivatedOlderThan deletes activated bridges created before cutoff
// (§4.4 retention: activated bridges expire after bridge_retention_days).
func (s *BridgeStore) PruneActivatedOlderThan(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM bridges WHERE activated_at IS NOT NULL AND created_at < ?
	`, cutoff.Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PruneUnactivatedOlderThan deletes never-activated bridges created before
// cutoff (§4.4 retention: unactivated bridges get a 2x grace window).
func (s *BridgeStore) PruneUnactivatedOlderThan(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM bridges WHERE activated_at IS NULL AND created_at < ?
	`, cutoff.Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
