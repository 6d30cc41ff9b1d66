package table

import (
	"sort"
	"sync"
)

// Store holds the tables materialized during one processing run.
// Each run owns its own Store; the lock only protects readers such as
// status snapshots that may look at a store while the run is writing it.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{tables: make(map[string]*Table)}
}

// Put stores the table for an entity, replacing any previous one.
func (s *Store) Put(name string, t *Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[name] = t
}

// Get returns the table for an entity.
func (s *Store) Get(name string) (*Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[name]
	return t, ok
}

// Has reports whether the entity has been materialized.
func (s *Store) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// Names returns the stored entity names, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tables))
	for n := range s.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of stored tables.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables)
}
