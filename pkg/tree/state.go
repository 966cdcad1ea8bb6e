package tree

import "sort"

// State holds the fields of one stateful node instance.
// A State survives reconciliation for as long as its node is matched.
type State struct {
	fields map[string]any
}

// NewState creates a State from initial field values.
func NewState(fields map[string]any) *State {
	s := &State{fields: make(map[string]any, len(fields))}
	for k, v := range fields {
		s.fields[k] = v
	}
	return s
}

// Get returns a field value, or nil if unset.
func (s *State) Get(field string) any {
	if s == nil {
		return nil
	}
	return s.fields[field]
}

// Lookup returns a field value and whether it is set.
func (s *State) Lookup(field string) (any, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.fields[field]
	return v, ok
}

// Int returns a field as an int, or 0 if it is not one.
func (s *State) Int(field string) int {
	v, _ := s.Get(field).(int)
	return v
}

// String returns a field as a string, or "" if it is not one.
func (s *State) String(field string) string {
	v, _ := s.Get(field).(string)
	return v
}

// Bool returns a field as a bool.
func (s *State) Bool(field string) bool {
	v, _ := s.Get(field).(bool)
	return v
}

// Set writes a field immediately.
// Handlers declare writes through Context.Set instead; Set is for the
// scheduler applying those writes and for tests.
func (s *State) Set(field string, v any) {
	s.fields[field] = v
}

// Fields returns the sorted field names.
func (s *State) Fields() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.fields))
	for k := range s.fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
