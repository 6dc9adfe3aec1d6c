// internal/models/set.go
package models

import "sort"

// StringSet is an unordered set of strings.
type StringSet map[string]struct{}

func NewStringSet(values ...string) StringSet {
	s := make(StringSet, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

func (s StringSet) Add(values ...string) {
	for _, v := range values {
		s[v] = struct{}{}
	}
}

func (s StringSet) Remove(values ...string) {
	for _, v := range values {
		delete(s, v)
	}
}

func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

func (s StringSet) Clone() StringSet {
	out := make(StringSet, len(s))
	for v := range s {
		out[v] = struct{}{}
	}
	return out
}

// Union returns s ∪ o.
func (s StringSet) Union(o StringSet) StringSet {
	out := s.Clone()
	for v := range o {
		out[v] = struct{}{}
	}
	return out
}

// Minus returns s \ o.
func (s StringSet) Minus(o StringSet) StringSet {
	out := make(StringSet, len(s))
	for v := range s {
		if !o.Has(v) {
			out[v] = struct{}{}
		}
	}
	return out
}

// Intersects reports whether any value of s is in values.
func (s StringSet) Intersects(values []string) bool {
	for _, v := range values {
		if s.Has(v) {
			return true
		}
	}
	return false
}

func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (s StringSet) Equal(o StringSet) bool {
	if len(s) != len(o) {
		return false
	}
	for v := range s {
		if !o.Has(v) {
			return false
		}
	}
	return true
}
