// internal/models/group.go
package models

import (
	"sort"
	"strings"
)

// Group is the set of SKUs sharing one resolved value for a field.
type Group struct {
	Key  string
	SKUs []SKU
}

// GroupKey derives the deterministic group key of a record for a field.
func GroupKey(scope Scope, field FieldID, flags FlagSet, rec *Record) string {
	parts := []string{scope.Key(), string(field)}
	switch {
	case flags.IsSameValue():
		parts = append(parts, "*")
	case flags.IsChildSameValue():
		parts = append(parts, string(rec.GroupParent()))
	default:
		parts = append(parts, string(rec.GroupParent()), strings.TrimSpace(rec.Variation))
	}
	return strings.Join(parts, "|")
}

// GroupSKUs partitions the template's records for one field. ChildOnly fields
// skip parents that have children. Groups come out in first-appearance order.
func GroupSKUs(t *Template, scope Scope, field FieldID, flags FlagSet) []Group {
	var groups []Group
	pos := make(map[string]int)
	for _, rec := range t.Records() {
		if flags.IsChildOnly() && !rec.IsChild() && t.HasChildren(rec.SKU) {
			continue
		}
		key := GroupKey(scope, field, flags, rec)
		i, ok := pos[key]
		if !ok {
			i = len(groups)
			pos[key] = i
			groups = append(groups, Group{Key: key})
		}
		groups[i].SKUs = append(groups[i].SKUs, rec.SKU)
	}
	return groups
}

func sortStrings(s []string) { sort.Strings(s) }
