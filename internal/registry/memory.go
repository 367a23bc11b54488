package registry

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the single-instance dev registry. State resets on
// restart, which is acceptable for a single-node deployment.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Register(ctx context.Context, projectID, ownerID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[projectID]; ok {
		if existing.OwnerID != ownerID {
			return ErrOwnershipConflict
		}
		existing.Name = name
		existing.LastAccessAt = s.now()
		return nil
	}

	now := s.now()
	s.entries[projectID] = &Entry{
		ProjectID:    projectID,
		OwnerID:      ownerID,
		Name:         name,
		CreatedAt:    now,
		LastAccessAt: now,
	}
	return nil
}

func (s *MemoryStore) Touch(ctx context.Context, projectID, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[projectID]; ok && entry.OwnerID == ownerID {
		entry.LastAccessAt = s.now()
	}
	return nil
}

func (s *MemoryStore) BelongsTo(ctx context.Context, projectID, ownerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[projectID]
	return ok && entry.OwnerID == ownerID, nil
}

func (s *MemoryStore) ListOwned(ctx context.Context, ownerID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var owned []*Entry
	for _, entry := range s.entries {
		if entry.OwnerID == ownerID {
			owned = append(owned, entry)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].LastAccessAt.After(owned[j].LastAccessAt)
	})

	ids := make([]string, 0, len(owned))
	for _, entry := range owned {
		ids = append(ids, entry.ProjectID)
	}
	return ids, nil
}

func (s *MemoryStore) Remove(ctx context.Context, projectID, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[projectID]; ok && entry.OwnerID == ownerID {
		delete(s.entries, projectID)
	}
	return nil
}

func (s *MemoryStore) ListStale(ctx context.Context, maxAge time.Duration) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := s.now().Add(-maxAge)
	var stale []string
	for id, entry := range s.entries {
		if !entry.LastAccessAt.After(threshold) {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)
	return stale, nil
}

func (s *MemoryStore) RemoveAny(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, projectID)
	return nil
}
