package models

import "sync"

// FormState accumulates the role and entered values of one form instance.
// It performs no validation. Safe for concurrent use.
type FormState struct {
	mu     sync.RWMutex
	role   Role
	values Values
}

func NewFormState(role Role) *FormState {
	return &FormState{role: role, values: Values{}}
}

// Role returns the current role selection.
func (s *FormState) Role() Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

// SetRole changes the active schema. Entered values are kept, including
// those of fields the new role does not show.
func (s *FormState) SetRole(role Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.role = role
}

// SetField overwrites one value.
func (s *FormState) SetField(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// SetFields overwrites several values at once.
func (s *FormState) SetFields(values Values) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.values[k] = v
	}
}

// CurrentValues returns a snapshot the caller may modify.
func (s *FormState) CurrentValues() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.Clone()
}

// ActiveValues returns the snapshot restricted to fields.
func (s *FormState) ActiveValues(fields []FieldDefinition) Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.Only(fields)
}

// Clear empties the values. The role is kept.
func (s *FormState) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = Values{}
}
