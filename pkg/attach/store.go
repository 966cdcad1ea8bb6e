package attach

import (
	"reflect"
	"sync"
)

// Store is a type-keyed attachment lookup.
// It is safe for concurrent use; values that are themselves shared between
// sessions must synchronize their own internals.
type Store struct {
	mu    sync.RWMutex
	items map[reflect.Type]any
}

// New creates an empty store, optionally seeded with values.
// Each value is keyed by its dynamic type.
func New(values ...any) *Store {
	s := &Store{items: make(map[reflect.Type]any)}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add stores v under its dynamic type, replacing any previous value.
// Nil values are ignored.
func (s *Store) Add(v any) {
	if v == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[reflect.TypeOf(v)] = v
}

// Lookup returns the value stored under key.
func (s *Store) Lookup(key reflect.Type) (any, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// Remove deletes the value stored under key.
func (s *Store) Remove(key reflect.Type) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

// Len returns the number of stored attachments.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Clone returns a shallow copy of the store. Values are shared.
func (s *Store) Clone() *Store {
	c := New()
	if s == nil {
		return c
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range s.items {
		c.items[k] = v
	}
	return c
}

// Get returns the attachment of type T.
func Get[T any](s *Store) (T, bool) {
	var zero T
	v, ok := s.Lookup(reflect.TypeFor[T]())
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Put stores v under the static type T.
// Use it when T is an interface type and the dynamic type would be wrong key.
func Put[T any](s *Store, v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[reflect.TypeFor[T]()] = v
}
