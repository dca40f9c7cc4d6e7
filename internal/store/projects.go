package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/AbdouB/memoryd/internal/models"
)

// ProjectStore is the Codebase Indexer's per-project metadata repository
// (§4.2.2 "store per-project metadata").
type ProjectStore struct {
	db *DB
}

// NewProjectStore constructs a project-metadata repository.
func NewProjectStore(db *DB) *ProjectStore { return &ProjectStore{db: db} }

type projectRow struct {
	Path                 string `db:"path"`
	Name                 string `db:"name"`
	LanguageDistribution string `db:"language_distribution"`
	Dependencies         string `db:"dependencies"`
	Frameworks           string `db:"frameworks"`
	UpdatedAt            string `db:"updated_at"`
}

// Put upserts a project's metadata row.
func (s *ProjectStore) Put(m *models.ProjectMetadata) error {
	langs, err := json.Marshal(m.LanguageDistribution)
	if err != nil {
		return err
	}
	deps, err := json.Marshal(m.Dependencies)
	if err != nil {
		return err
	}
	frameworks, err := json.Marshal(m.Frameworks)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO project_metadata (path, name, language_distribution, dependencies, frameworks, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name = excluded.name,
			language_distribution = excluded.language_distribution,
			dependencies = excluded.dependencies,
			frameworks = excluded.frameworks,
			updated_at = excluded.updated_at
	`, m.Path, m.Name, string(langs), string(deps), string(frameworks), m.UpdatedAt.Format(time.RFC3339))
	return err
}

// Get returns a project's stored metadata, or nil if path has never been
// indexed.
func (s *ProjectStore) Get(path string) (*models.ProjectMetadata, error) {
	var row projectRow
	err := s.db.Get(&row, `
		SELECT path, name, language_distribution, dependencies, frameworks, updated_at
		FROM project_metadata WHERE path = ?
	`, path)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rowToProjectMetadata(row)
}

func rowToProjectMetadata(row projectRow) (*models.ProjectMetadata, error) {
	m := &models.ProjectMetadata{Path: row.Path, Name: row.Name}
	if row.LanguageDistribution != "" {
		if err := json.Unmarshal([]byte(row.LanguageDistribution), &m.LanguageDistribution); err != nil {
			return nil, err
		}
	}
	if row.Dependencies != "" {
		if err := json.Unmarshal([]byte(row.Dependencies), &m.Dependencies); err != nil {
			return nil, err
		}
	}
	if row.Frameworks != "" {
		if err := json.Unmarshal([]byte(row.Frameworks), &m.Frameworks); err != nil {
			return nil, err
		}
	}
	if row.UpdatedAt != "" {
		if ts, err := time.Parse(time.RFC3339, row.UpdatedAt); err == nil {
			m.UpdatedAt = ts
		}
	}
	return m, nil
}
