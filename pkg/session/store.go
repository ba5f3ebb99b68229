package session

import (
	"maps"
	"slices"
	"sync"
)

// Store maps session keys to sessions for hosts serving several sessions.
type Store[T any] struct {
	sessions map[Key]*Session[T]
	mu       sync.RWMutex
}

// NewStore creates an empty [Store].
func NewStore[T any]() *Store[T] {
	return &Store[T]{sessions: map[Key]*Session[T]{}}
}

// Get returns the session for key, creating it if needed.
func (s *Store[T]) Get(key Key) *Session[T] {
	s.mu.RLock()
	sess, ok := s.sessions[key]
	s.mu.RUnlock()

	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[key]; ok {
		return sess
	}

	sess = New[T](key)
	s.sessions[key] = sess

	return sess
}

// Lookup returns the session for key without creating it.
func (s *Store[T]) Lookup(key Key) (*Session[T], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[key]

	return sess, ok
}

// Delete removes the session for key.
func (s *Store[T]) Delete(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, key)
}

// Keys returns the known session keys, sorted.
func (s *Store[T]) Keys() []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Sorted(maps.Keys(s.sessions))
}
