package session

import (
	"context"
	"sync"
)

// MemoryStore is the in-process session store. It is the default backend
// for single-instance deployments and for tests.
//
// MemoryStore is safe for concurrent use.
type MemoryStore struct {
	mu       sync.Mutex
	profiles map[string]*Profile
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]*Profile)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, token string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[token]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// Update implements Store. The whole read-modify-write runs under one lock,
// so two concurrent updates to the same session cannot interleave.
func (s *MemoryStore) Update(_ context.Context, token string, fn func(*Profile) error) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.profiles[token].Clone()
	if work == nil {
		work = NewGuestProfile()
	}

	// fn runs on a copy so an aborted update leaves the stored profile
	// untouched.
	if err := fn(work); err != nil {
		return nil, err
	}

	s.profiles[token] = work
	return work.Clone(), nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.profiles, token)
	return nil
}

// Len reports the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.profiles)
}
