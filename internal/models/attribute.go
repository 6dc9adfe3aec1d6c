// internal/models/attribute.go
package models

import (
	"sort"
	"strings"
)

// Category is the garment class used to pick possible values and size tables.
type Category string

const (
	CategoryAny      Category = ""
	CategoryClothing Category = "clothing"
	CategoryShoe     Category = "shoe"
	CategoryOther    Category = "other"
	// CategoryNoConversion covers product types whose sizes and measures are
	// copied verbatim (rugs).
	CategoryNoConversion Category = "no_conversion"
)

// ValueScope locates one possible-value list.
type ValueScope struct {
	Marketplace string
	Country     string
	Lang        string
	Category    Category
}

func (v ValueScope) Key() string {
	return strings.ToLower(v.Marketplace) + "|" + strings.ToUpper(v.Country) + "|" +
		strings.ToLower(v.Lang) + "|" + strings.ToLower(string(v.Category))
}

// Attribute is the metadata of one field across marketplaces.
type Attribute struct {
	Name           string              `json:"name"`
	Fields         map[string]FieldID  `json:"fields"`
	Flags          FlagSet             `json:"flags"`
	MaxLength      int                 `json:"max_length,omitempty"`
	PossibleValues map[string][]string `json:"possible_values,omitempty"`
}

// FieldFor returns the attribute's field id in a marketplace.
func (a *Attribute) FieldFor(marketplace string) (FieldID, bool) {
	id, ok := a.Fields[strings.ToLower(marketplace)]
	return id, ok
}

// Possible returns the allowed values of a scope, falling back to the
// category-independent list.
func (a *Attribute) Possible(vs ValueScope) []string {
	if a.PossibleValues == nil {
		return nil
	}
	if vals, ok := a.PossibleValues[vs.Key()]; ok {
		return vals
	}
	if vs.Category != CategoryAny {
		vs.Category = CategoryAny
		return a.PossibleValues[vs.Key()]
	}
	return nil
}

// HasPossibleValues reports whether any scope has a closed value list.
func (a *Attribute) HasPossibleValues() bool {
	for _, v := range a.PossibleValues {
		if len(v) > 0 {
			return true
		}
	}
	return false
}

// AddPossibleValues merges values into a scope's list, sorted and deduplicated.
func (a *Attribute) AddPossibleValues(vs ValueScope, values ...string) {
	if a.PossibleValues == nil {
		a.PossibleValues = make(map[string][]string)
	}
	set := NewStringSet(a.PossibleValues[vs.Key()]...)
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			set.Add(v)
		}
	}
	a.PossibleValues[vs.Key()] = set.Sorted()
}

// AttributeTable indexes attributes by (marketplace, field id).
type AttributeTable struct {
	attrs   []*Attribute
	byField map[string]map[FieldID]*Attribute
}

func NewAttributeTable(attrs []*Attribute) *AttributeTable {
	t := &AttributeTable{byField: make(map[string]map[FieldID]*Attribute)}
	for _, a := range attrs {
		t.Add(a)
	}
	return t
}

// Add indexes a. A later attribute with the same marketplace field wins.
func (t *AttributeTable) Add(a *Attribute) {
	t.attrs = append(t.attrs, a)
	for mkt, id := range a.Fields {
		mkt = strings.ToLower(mkt)
		m, ok := t.byField[mkt]
		if !ok {
			m = make(map[FieldID]*Attribute)
			t.byField[mkt] = m
		}
		m[id] = a
	}
}

func (t *AttributeTable) Get(marketplace string, id FieldID) (*Attribute, bool) {
	a, ok := t.byField[strings.ToLower(marketplace)][id]
	return a, ok
}

// All returns the attributes sorted by name.
func (t *AttributeTable) All() []*Attribute {
	out := append([]*Attribute(nil), t.attrs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// WithFlag returns the fields of a marketplace whose attribute has f.
func (t *AttributeTable) WithFlag(marketplace string, f Flag) []FieldID {
	var out []FieldID
	for id, a := range t.byField[strings.ToLower(marketplace)] {
		if a.Flags.Has(f) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
