// internal/models/field.go
package models

import "strings"

// FieldID identifies one column of a marketplace schema.
type FieldID string

// NormalizeFieldID strips bracketed annotations ("color_name [Color]"),
// trims and truncates at the first space.
func NormalizeFieldID(raw string) FieldID {
	var b strings.Builder
	depth := 0
	for _, r := range raw {
		switch {
		case r == '[':
			depth++
		case r == ']':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			b.WriteRune(r)
		}
	}
	s := strings.TrimSpace(b.String())
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		s = s[:i]
	}
	return FieldID(s)
}

func (f FieldID) String() string { return string(f) }

// Contains reports whether the field id contains sub, ignoring case.
func (f FieldID) Contains(sub string) bool {
	return strings.Contains(strings.ToLower(string(f)), strings.ToLower(sub))
}
