// Package registry maps live backend project ids to owning users. It is
// used purely for access control; the backend owns project existence.
package registry

import (
	"context"
	"errors"
	"time"
)

// ErrOwnershipConflict is returned when a project id is already registered
// to a different owner. Surfaced to clients as forbidden.
var ErrOwnershipConflict = errors.New("project is registered to another user")

// Entry is a claim of ownership over a live backend project.
type Entry struct {
	ProjectID    string
	OwnerID      string
	Name         string
	CreatedAt    time.Time
	LastAccessAt time.Time
}

// Store is the project ownership registry. Register is upsert-by-project-id
// and rejects cross-owner overwrites; ListStale and RemoveAny bypass the
// owner scope and are reserved for the cleanup sweep.
type Store interface {
	Register(ctx context.Context, projectID, ownerID, name string) error
	Touch(ctx context.Context, projectID, ownerID string) error
	BelongsTo(ctx context.Context, projectID, ownerID string) (bool, error)
	ListOwned(ctx context.Context, ownerID string) ([]string, error)
	Remove(ctx context.Context, projectID, ownerID string) error
	ListStale(ctx context.Context, maxAge time.Duration) ([]string, error)
	RemoveAny(ctx context.Context, projectID string) error
}
