package model

import (
	"encoding/json"
	"sort"
)

// RoleSet is an unordered set of role ids.
type RoleSet map[string]struct{}

// NewRoleSet builds a set from ids, skipping empty ones.
func NewRoleSet(ids ...string) RoleSet {
	s := make(RoleSet, len(ids))
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

// Has reports membership.
func (s RoleSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of roles.
func (s RoleSet) Len() int { return len(s) }

// Difference returns s − other.
func (s RoleSet) Difference(other RoleSet) RoleSet {
	out := make(RoleSet)
	for id := range s {
		if _, ok := other[id]; !ok {
			out[id] = struct{}{}
		}
	}
	return out
}

// Equal reports whether both sets hold the same ids.
func (s RoleSet) Equal(other RoleSet) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if _, ok := other[id]; !ok {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (s RoleSet) Clone() RoleSet {
	out := make(RoleSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Sorted returns the ids in ascending order, for logs and stable output.
func (s RoleSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s RoleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array of ids.
func (s *RoleSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewRoleSet(ids...)
	return nil
}
