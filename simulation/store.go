package simulation

import (
	"context"
	"sync"
	"time"
)

// Store persists simulation records keyed by their identifier.
type Store interface {
	// Create inserts a new record.
	Create(ctx context.Context, sim *Simulation) error

	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, id string) (*Simulation, error)

	// Update overwrites an existing record or returns ErrNotFound.
	Update(ctx context.Context, sim *Simulation) error

	// Delete removes a record or returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// ListByCreator returns all simulations where created_by matches, in no
	// particular order. Sorting and pagination happen in memory at the
	// service layer.
	ListByCreator(ctx context.Context, userID string) ([]*Simulation, error)

	// PruneTerminal removes terminal records completed before the cutoff and
	// returns the number removed.
	PruneTerminal(ctx context.Context, before time.Time) (int, error)
}

// MemoryStore is a volatile Store implementation backed by a process local
// map. It is safe for concurrent access and best suited for tests or demo
// deployments. Records are cloned on the way in and out to prevent external
// mutation of internal state.
type MemoryStore struct {
	mu   sync.RWMutex
	sims map[string]*Simulation
}

// NewMemoryStore constructs an empty in-memory simulation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sims: make(map[string]*Simulation)}
}

// Create inserts a new record.
func (s *MemoryStore) Create(ctx context.Context, sim *Simulation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sims[sim.ID] = sim.Clone()
	return nil
}

// Get returns a clone of the record or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Simulation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sim, ok := s.sims[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sim.Clone(), nil
}

// Update overwrites an existing record.
func (s *MemoryStore) Update(ctx context.Context, sim *Simulation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sims[sim.ID]; !ok {
		return ErrNotFound
	}
	s.sims[sim.ID] = sim.Clone()
	return nil
}

// Delete removes a record.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sims[id]; !ok {
		return ErrNotFound
	}
	delete(s.sims, id)
	return nil
}

// ListByCreator returns clones of all records created by userID.
func (s *MemoryStore) ListByCreator(ctx context.Context, userID string) ([]*Simulation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Simulation
	for _, sim := range s.sims {
		if sim.CreatedBy == userID {
			out = append(out, sim.Clone())
		}
	}
	return out, nil
}

// PruneTerminal removes terminal records completed before the cutoff.
func (s *MemoryStore) PruneTerminal(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pruned := 0
	for id, sim := range s.sims {
		if sim.Status.Terminal() && sim.CompletedAt != nil && sim.CompletedAt.Before(before) {
			delete(s.sims, id)
			pruned++
		}
	}
	return pruned, nil
}
