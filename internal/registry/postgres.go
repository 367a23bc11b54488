package registry

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the durable registry. The upsert's WHERE clause pins
// the existing row's owner so a conflicting registration affects zero
// rows instead of silently reassigning the project.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema is the table backing the durable registry, applied by deployment
// migrations.
const Schema = `
CREATE TABLE IF NOT EXISTS refine_runtime_projects (
    project_id     TEXT PRIMARY KEY,
    owner_id       TEXT NOT NULL,
    project_name   TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_access_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS refine_runtime_projects_owner_idx
    ON refine_runtime_projects (owner_id, last_access_at DESC);
`

func (s *PostgresStore) Register(ctx context.Context, projectID, ownerID, name string) error {
	const q = `
INSERT INTO refine_runtime_projects (project_id, owner_id, project_name, last_access_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (project_id) DO UPDATE
SET project_name = EXCLUDED.project_name, last_access_at = now()
WHERE refine_runtime_projects.owner_id = EXCLUDED.owner_id;
`
	tag, err := s.db.Exec(ctx, q, projectID, ownerID, name)
	if err != nil {
		return fmt.Errorf("register project %s: %w", projectID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOwnershipConflict
	}
	return nil
}

// Touch refreshes last_access_at. Best effort: ownership enforcement has
// already passed by the time this runs, so failures are logged, never
// propagated.
func (s *PostgresStore) Touch(ctx context.Context, projectID, ownerID string) error {
	const q = `
UPDATE refine_runtime_projects
SET last_access_at = now()
WHERE project_id = $1 AND owner_id = $2;
`
	if _, err := s.db.Exec(ctx, q, projectID, ownerID); err != nil {
		log.Printf("[warn] operation=touch_project project_id=%s error=%v", projectID, err)
	}
	return nil
}

func (s *PostgresStore) BelongsTo(ctx context.Context, projectID, ownerID string) (bool, error) {
	const q = `
SELECT EXISTS (
    SELECT 1 FROM refine_runtime_projects
    WHERE project_id = $1 AND owner_id = $2
);
`
	var exists bool
	if err := s.db.QueryRow(ctx, q, projectID, ownerID).Scan(&exists); err != nil {
		return false, fmt.Errorf("ownership check for project %s: %w", projectID, err)
	}
	return exists, nil
}

func (s *PostgresStore) ListOwned(ctx context.Context, ownerID string) ([]string, error) {
	const q = `
SELECT project_id FROM refine_runtime_projects
WHERE owner_id = $1
ORDER BY last_access_at DESC;
`
	rows, err := s.db.Query(ctx, q, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list owned projects: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0, 16)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Remove deletes the entry scoped to its owner. Removing a non-existent
// entry is success.
func (s *PostgresStore) Remove(ctx context.Context, projectID, ownerID string) error {
	const q = `DELETE FROM refine_runtime_projects WHERE project_id = $1 AND owner_id = $2;`
	if _, err := s.db.Exec(ctx, q, projectID, ownerID); err != nil {
		return fmt.Errorf("remove project %s: %w", projectID, err)
	}
	return nil
}

// ListStale returns entries across all owners whose last access is older
// than maxAge. Cleanup-only: bypasses the owner scope.
func (s *PostgresStore) ListStale(ctx context.Context, maxAge time.Duration) ([]string, error) {
	const q = `
SELECT project_id FROM refine_runtime_projects
WHERE last_access_at <= $1;
`
	rows, err := s.db.Query(ctx, q, time.Now().Add(-maxAge))
	if err != nil {
		return nil, fmt.Errorf("list stale projects: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PostgresStore) RemoveAny(ctx context.Context, projectID string) error {
	const q = `DELETE FROM refine_runtime_projects WHERE project_id = $1;`
	if _, err := s.db.Exec(ctx, q, projectID); err != nil {
		return fmt.Errorf("remove project %s during cleanup: %w", projectID, err)
	}
	return nil
}
