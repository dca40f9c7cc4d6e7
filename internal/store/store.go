// Package store implements the Storage Orchestrator's two backends: the
// Raw Store (append-only content-addressed blobs) and the Semantic Store
// (vector collections plus a keyword full-text index), both over a single
// embedded SQLite database, patterned on the teacher daemon's
// migration-slice-plus-sqlx approach generalized to this spec's collections.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"

	_ "github.com/ncruces/go-sqlite3/driver"
)

// DB wraps the shared connection used by every collection/repository in
// this package.
type DB struct {
	*sqlx.DB
	path string
}

// DefaultDBPath mirrors the teacher's project-local-then-home-dir fallback,
// scoped to the daemon's home_dir layout (§6).
func DefaultDBPath(homeDir string) string {
	return filepath.Join(homeDir, "databases", "memoryd.db")
}

// Open opens or creates the database at path and runs migrations.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	conn, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := conn.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	d := &DB{DB: conn, path: path}
	if err := d.migrate(); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return d, nil
}

// Path returns the database file path.
func (d *DB) Path() string { return d.path }

func (d *DB) migrate() error {
	migrations := []string{
		migrationRawBlobs,
		migrationSessions,
		migrationFacts,
		migrationPatterns,
		migrationInsights,
		migrationChunks,
		migrationCodeSymbols,
		migrationBridges,
		migrationFileHashes,
		migrationKeywordIndex,
		migrationExtractionLedger,
		migrationProjects,
		migrationIndexes,
	}
	for _, m := range migrations {
		if _, err := d.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

const migrationRawBlobs = `
CREATE TABLE IF NOT EXISTS raw_blobs (
    blob_id TEXT PRIMARY KEY,
    namespace TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    source TEXT,
    semantic_hash TEXT,
    bytes BLOB,
    created_at TEXT NOT NULL
);
`

const migrationSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    ended_at TEXT,
    steward_id TEXT,
    assistant_instance_id TEXT,
    indexed BOOLEAN DEFAULT 0,
    content_hash TEXT,
    session_data TEXT NOT NULL
);
`

const migrationFacts = `
CREATE TABLE IF NOT EXISTS identified_facts (
    fact_id TEXT PRIMARY KEY,
    fact_type TEXT NOT NULL,
    confidence REAL NOT NULL,
    source TEXT,
    timestamp TEXT NOT NULL,
    expiration TEXT,
    scope TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    supersedes TEXT,
    superseded_by TEXT,
    verification_status TEXT NOT NULL DEFAULT 'unverified',
    dedup_key TEXT NOT NULL,
    processed BOOLEAN DEFAULT 0,
    fact_data TEXT NOT NULL,
    embedding BLOB
);
`

const migrationPatterns = `
CREATE TABLE IF NOT EXISTS patterns (
    pattern_id TEXT PRIMARY KEY,
    pattern_type TEXT NOT NULL,
    name TEXT NOT NULL,
    confidence REAL NOT NULL,
    first_seen TEXT NOT NULL,
    last_seen TEXT NOT NULL,
    archived BOOLEAN DEFAULT 0,
    pattern_data TEXT NOT NULL
);
`

const migrationInsights = `
CREATE TABLE IF NOT EXISTS insights (
    insight_id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    confidence REAL NOT NULL,
    generated_at TEXT NOT NULL,
    insight_data TEXT NOT NULL
);
`

// migrationChunks backs the conversations/codebase/stored_memories/
// raw_embeddings collections (§3 Chunk, §6 GLOSSARY collections) in one
// table discriminated by collection name, with embeddings stored as a
// little-endian float32 BLOB for the vector-search path.
const migrationChunks = `
CREATE TABLE IF NOT EXISTS chunks (
    chunk_id TEXT NOT NULL,
    collection TEXT NOT NULL,
    source_id TEXT NOT NULL,
    source_type TEXT NOT NULL,
    content TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    metadata TEXT,
    embedding BLOB,
    start_offset INTEGER,
    end_offset INTEGER,
    processed BOOLEAN DEFAULT 0,
    created_at TEXT NOT NULL,
    PRIMARY KEY (collection, chunk_id)
);
`

const migrationCodeSymbols = `
CREATE TABLE IF NOT EXISTS code_symbols (
    symbol_id TEXT PRIMARY KEY,
    chunk_id TEXT NOT NULL,
    project_path TEXT NOT NULL,
    name TEXT NOT NULL,
    kind TEXT NOT NULL,
    metadata TEXT,
    created_at TEXT NOT NULL
);
`

const migrationBridges = `
CREATE TABLE IF NOT EXISTS bridges (
    bridge_id TEXT PRIMARY KEY,
    from_session TEXT NOT NULL,
    to_session TEXT,
    created_at TEXT NOT NULL,
    activated_at TEXT,
    bridge_data TEXT NOT NULL
);
`

// migrationFileHashes backs the Codebase Indexer's per-path content hash
// store (§4.2.2 codebase reindex skip). Sessions keep their reindex hash
// in sessions.content_hash instead.
const migrationFileHashes = `
CREATE TABLE IF NOT EXISTS file_hashes (
    path TEXT PRIMARY KEY,
    content_hash TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`

// migrationKeywordIndex is the full-text index side of the Semantic Store
// (§3 GLOSSARY "Semantic Store"). FTS5 gives prefix/substring-ish keyword
// querying without a second engine.
const migrationKeywordIndex = `
CREATE VIRTUAL TABLE IF NOT EXISTS keyword_index USING fts5(
    row_key UNINDEXED,
    source_type UNINDEXED,
    source_id UNINDEXED,
    content
);
`

// migrationExtractionLedger backs the Storage Orchestrator's at-most-once
// extraction guarantee (§4.5: "a (source_id, content_hash) pair is
// processed at most once per configuration generation").
const migrationExtractionLedger = `
CREATE TABLE IF NOT EXISTS extraction_ledger (
    source_id TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    config_generation INTEGER NOT NULL,
    processed_at TEXT NOT NULL,
    PRIMARY KEY (source_id, content_hash, config_generation)
);
`

// migrationProjects backs the Codebase Indexer's per-project metadata
// (§4.2.2: path, name, language distribution, dependencies, framework
// heuristics), one row per indexed project root.
const migrationProjects = `
CREATE TABLE IF NOT EXISTS project_metadata (
    path TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    language_distribution TEXT NOT NULL,
    dependencies TEXT,
    frameworks TEXT,
    updated_at TEXT NOT NULL
);
`

const migrationIndexes = `
CREATE INDEX IF NOT EXISTS idx_facts_type ON identified_facts(fact_type);
CREATE INDEX IF NOT EXISTS idx_facts_dedup ON identified_facts(dedup_key);
CREATE INDEX IF NOT EXISTS idx_facts_processed ON identified_facts(processed);
CREATE INDEX IF NOT EXISTS idx_chunks_collection ON chunks(collection);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source_id);
CREATE INDEX IF NOT EXISTS idx_chunks_processed ON chunks(collection, processed);
CREATE INDEX IF NOT EXISTS idx_symbols_project ON code_symbols(project_path);
CREATE INDEX IF NOT EXISTS idx_bridges_activated ON bridges(activated_at);
`
