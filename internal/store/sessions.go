package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/AbdouB/memoryd/internal/models"
)

// SessionStore is the `sessions` collection. Sessions are stored as a JSON
// blob (the encoding of ConversationSession; fields the struct does not
// model are not kept) alongside a handful of queryable columns, same
// dual-storage shape as the rest of this package.
type SessionStore struct {
	db *DB
}

// NewSessionStore constructs a session repository.
func NewSessionStore(db *DB) *SessionStore { return &SessionStore{db: db} }

// Put upserts a session.
func (s *SessionStore) Put(sess *models.ConversationSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	var endedAt any
	if sess.EndedAt != nil {
		endedAt = sess.EndedAt.Format(time.RFC3339)
	}
	_, err = s.db.Exec(`
		INSERT INTO sessions (session_id, started_at, ended_at, steward_id, assistant_instance_id, indexed, session_data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			ended_at = excluded.ended_at,
			indexed = excluded.indexed,
			session_data = excluded.session_data
	`, sess.SessionID, sess.StartedAt.Format(time.RFC3339), endedAt, sess.StewardID,
		sess.AssistantInstanceID, sess.Indexed, string(data))
	return err
}

// Get retrieves a session by id.
func (s *SessionStore) Get(id string) (*models.ConversationSession, error) {
	var data string
	err := s.db.Get(&data, `SELECT session_data FROM sessions WHERE session_id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sess models.ConversationSession
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// ContentHash returns the stored content_hash for a session, used by the
// Conversation Indexer's reindex decision (§4.2.1: "reindex only if the
// content_hash of ids[0] changed").
func (s *SessionStore) ContentHash(id string) (string, error) {
	var hash sql.NullString
	err := s.db.Get(&hash, `SELECT content_hash FROM sessions WHERE session_id = ?`, id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return hash.String, nil
}

// SetContentHash records the content hash used for the reindex decision.
func (s *SessionStore) SetContentHash(id, hash string) error {
	_, err := s.db.Exec(`UPDATE sessions SET content_hash = ? WHERE session_id = ?`, hash, id)
	return err
}

// MarkIndexed flags a session as having completed conversation indexing.
func (s *SessionStore) MarkIndexed(id string) error {
	_, err := s.db.Exec(`UPDATE sessions SET indexed = 1 WHERE session_id = ?`, id)
	return err
}

// Unindexed returns up to limit sessions not yet indexed, oldest first.
func (s *SessionStore) Unindexed(limit int) ([]*models.ConversationSession, error) {
	var rows []string
	err := s.db.Select(&rows, `
		SELECT session_data FROM sessions WHERE indexed = 0 ORDER BY started_at ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*models.ConversationSession, 0, len(rows))
	for _, raw := range rows {
		var sess models.ConversationSession
		if err := json.Unmarshal([]byte(raw), &sess); err != nil {
			continue
		}
		out = append(out, &sess)
	}
	return out, nil
}

// Latest returns the most recently started session for a steward, or nil if
// none exists — used by the Bridge's greeting-by-gap logic (§4.4).
func (s *SessionStore) Latest(stewardID string) (*models.ConversationSession, error) {
	var data string
	err := s.db.Get(&data, `
		SELECT session_data FROM sessions WHERE steward_id = ? ORDER BY started_at DESC LIMIT 1
	`, stewardID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sess models.ConversationSession
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}
