package saved

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps saved-project metadata in process memory. Used for
// single-instance development runs and tests; production deployments use
// the Postgres store.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]Project
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]Project),
		now:      time.Now,
	}
}

func (s *MemoryStore) Insert(_ context.Context, p *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.projects[p.ID] = *p
	return nil
}

func (s *MemoryStore) Get(_ context.Context, userID, id string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok || p.UserID != userID {
		return nil, ErrNotFound
	}
	copied := p
	return &copied, nil
}

func (s *MemoryStore) List(_ context.Context, userID string) ([]Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Project, 0, 8)
	for _, p := range s.projects {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok || p.UserID != userID {
		return ErrNotFound
	}
	delete(s.projects, id)
	return nil
}
