package wearer

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// MemStore is a [Store] held in process memory. It is used when no database
// is configured and loses everything on restart.
type MemStore struct {
	mu       sync.RWMutex
	loadouts map[string]Loadout
	now      func() time.Time
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		loadouts: make(map[string]Loadout),
		now:      time.Now,
	}
}

func (s *MemStore) Get(_ context.Context, id string) (*Loadout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.loadouts[id]
	if !ok {
		return nil, nil
	}
	l.Gags = slices.Clone(l.Gags)
	return &l, nil
}

func (s *MemStore) Put(_ context.Context, l *Loadout) error {
	if err := l.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l.UpdatedAt = s.now()
	stored := *l
	stored.Gags = slices.Clone(l.Gags)
	s.loadouts[l.WearerID] = stored
	return nil
}

func (s *MemStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.loadouts, id)
	return nil
}

func (s *MemStore) List(_ context.Context) ([]Loadout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Loadout, 0, len(s.loadouts))
	for _, l := range s.loadouts {
		l.Gags = slices.Clone(l.Gags)
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b Loadout) int { return cmp.Compare(a.WearerID, b.WearerID) })
	return out, nil
}
