package saved

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists saved-project metadata rows, always scoped by owner.
type Store interface {
	Insert(ctx context.Context, p *Project) error
	Get(ctx context.Context, userID, id string) (*Project, error)
	List(ctx context.Context, userID string) ([]Project, error)
	Delete(ctx context.Context, userID, id string) error
}

// Schema is the table backing saved-project metadata, applied by
// deployment migrations.
const Schema = `
CREATE TABLE IF NOT EXISTS refine_saved_projects (
    id              UUID PRIMARY KEY,
    user_id         TEXT NOT NULL,
    name            TEXT NOT NULL,
    archive_path    TEXT NOT NULL,
    thumbnail_path  TEXT,
    refine_version  TEXT,
    source_filename TEXT,
    size_bytes      BIGINT NOT NULL DEFAULT 0,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS refine_saved_projects_user_idx
    ON refine_saved_projects (user_id, updated_at DESC);
`

const projectColumns = `id, user_id, name, archive_path, thumbnail_path, refine_version, source_filename, size_bytes, created_at, updated_at`

// PostgresStore is the pgx-backed metadata store.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, p *Project) error {
	const q = `
INSERT INTO refine_saved_projects
    (id, user_id, name, archive_path, thumbnail_path, refine_version, source_filename, size_bytes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING created_at, updated_at;
`
	err := s.db.QueryRow(ctx, q,
		p.ID, p.UserID, p.Name, p.ArchivePath, p.ThumbnailPath,
		p.RefineVersion, p.SourceFilename, p.SizeBytes,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert saved project: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, userID, id string) (*Project, error) {
	const q = `
SELECT ` + projectColumns + `
FROM refine_saved_projects
WHERE id = $1 AND user_id = $2;
`
	var p Project
	err := s.db.QueryRow(ctx, q, id, userID).Scan(
		&p.ID, &p.UserID, &p.Name, &p.ArchivePath, &p.ThumbnailPath,
		&p.RefineVersion, &p.SourceFilename, &p.SizeBytes, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch saved project: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) List(ctx context.Context, userID string) ([]Project, error) {
	const q = `
SELECT ` + projectColumns + `
FROM refine_saved_projects
WHERE user_id = $1
ORDER BY updated_at DESC;
`
	rows, err := s.db.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list saved projects: %w", err)
	}
	defer rows.Close()

	out := make([]Project, 0, 16)
	for rows.Next() {
		var p Project
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.Name, &p.ArchivePath, &p.ThumbnailPath,
			&p.RefineVersion, &p.SourceFilename, &p.SizeBytes, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, userID, id string) error {
	const q = `DELETE FROM refine_saved_projects WHERE id = $1 AND user_id = $2;`
	tag, err := s.db.Exec(ctx, q, id, userID)
	if err != nil {
		return fmt.Errorf("delete saved project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
