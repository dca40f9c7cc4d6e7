package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/AbdouB/memoryd/internal/models"
)

// RawStore is the append-only, content-addressed blob adapter (§3
// PrivateBlob, §4.5 "Raw Store / private_memory", §5 "single-writer per blob
// namespace"). Within a namespace, writes are serialized by the caller (the
// Orchestrator); this adapter itself only needs to be safe for the shared
// sqlite connection, which sqlx already guarantees.
type RawStore struct {
	db *DB
}

// NewRawStore constructs a Raw Store adapter over db.
func NewRawStore(db *DB) *RawStore { return &RawStore{db: db} }

// ContentHash is the Raw Store's content-addressing function (sha256 over
// raw bytes), used to decide idempotent upserts (§8 property 2).
func ContentHash(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// PutBlob appends bytes to namespace, keyed by content hash so that writing
// the same bytes twice is a no-op (idempotent upsert, §8 property 2).
func (r *RawStore) PutBlob(namespace, source string, bytes []byte) (string, error) {
	hash := ContentHash(bytes)
	id := namespace + ":" + hash

	var existing string
	err := r.db.Get(&existing, `SELECT blob_id FROM raw_blobs WHERE blob_id = ?`, id)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}

	_, err = r.db.Exec(`
		INSERT INTO raw_blobs (blob_id, namespace, content_hash, source, bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, namespace, hash, source, bytes, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", err
	}
	return id, nil
}

// PutPrivateBlob stores an opaque blob under the private_memory namespace.
// The core never inspects bytes beyond storing them; only semanticHash is
// usable downstream (§3 PrivateBlob invariant, §4.5 privacy partition).
func (r *RawStore) PutPrivateBlob(source, semanticHash string, bytes []byte) (*models.PrivateBlob, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := r.db.Exec(`
		INSERT INTO raw_blobs (blob_id, namespace, content_hash, source, semantic_hash, bytes, created_at)
		VALUES (?, 'private_memory', ?, ?, ?, ?, ?)
	`, id, ContentHash(bytes), source, semanticHash, bytes, now.Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	return &models.PrivateBlob{
		BlobID:       id,
		SemanticHash: semanticHash,
		CreatedAt:    now,
		Source:       source,
		Bytes:        bytes,
	}, nil
}

// blobRow is never exported with a Bytes-returning read path for namespaces
// other than private_memory reads performed by the privacy-boundary-aware
// caller; see Classifier/Orchestrator for the enforcement point (§7
// "Privacy-boundary violations").
type blobRow struct {
	BlobID      string `db:"blob_id"`
	ContentHash string `db:"content_hash"`
	CreatedAt   string `db:"created_at"`
}

// HasBlob reports whether content-hash h already exists in namespace,
// without reading bytes back — used by reindex-skip decisions.
func (r *RawStore) HasBlob(namespace, hash string) (bool, error) {
	var row blobRow
	err := r.db.Get(&row, `SELECT blob_id, content_hash, created_at FROM raw_blobs WHERE blob_id = ?`, namespace+":"+hash)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
