// internal/models/alias.go
package models

import (
	"fmt"
	"sort"
)

// Concept is a schema-independent field meaning that several marketplace
// schema versions spell differently.
type Concept string

const (
	ConceptSKU         Concept = "sku"
	ConceptParentSKU   Concept = "parent_sku"
	ConceptVariation   Concept = "variation"
	ConceptProductType Concept = "product_type"
	ConceptGender      Concept = "gender"
	ConceptListPrice   Concept = "list_price"
	ConceptTitle       Concept = "title"
	ConceptBulletPoint Concept = "bullet_point"
	ConceptKeywords    Concept = "keywords"
	ConceptDescription Concept = "description"
	ConceptColor       Concept = "color"
)

// AliasTable maps each concept to its field ids, most recent schema first.
type AliasTable struct {
	Version  int                   `json:"version"`
	Concepts map[Concept][]FieldID `json:"concepts"`
}

// DefaultAliasTable returns the built-in alias table. A registry file may
// ship a newer version.
func DefaultAliasTable() *AliasTable {
	bullets := make([]FieldID, 0, 10)
	for i := 1; i <= 5; i++ {
		bullets = append(bullets, FieldID(fmt.Sprintf("bullet_point#%d.value", i)))
	}
	for i := 1; i <= 5; i++ {
		bullets = append(bullets, FieldID(fmt.Sprintf("bullet_point%d", i)))
	}

	return &AliasTable{
		Version: 1,
		Concepts: map[Concept][]FieldID{
			ConceptSKU:         {"contribution_sku#1.value", "item_sku", "sku"},
			ConceptParentSKU:   {"child_parent_sku_relationship#1.parent_sku", "parent_sku"},
			ConceptVariation:   {"color#1.value", "color_name", "variation_key"},
			ConceptProductType: {"product_type#1.value", "feed_product_type", "product_type"},
			ConceptGender:      {"target_gender#1.value", "department_name", "gender"},
			ConceptListPrice:   {"list_price#1.value", "list_price", "list_price_with_tax"},
			ConceptTitle:       {"item_name#1.value", "item_name", "title"},
			ConceptBulletPoint: bullets,
			ConceptKeywords:    {"generic_keyword#1.value", "generic_keywords", "keywords"},
			ConceptDescription: {"product_description#1.value", "product_description", "description"},
			ConceptColor:       {"color#1.value", "color_name", "color"},
		},
	}
}

// Aliases returns the field ids of a concept.
func (t *AliasTable) Aliases(c Concept) []FieldID {
	if t == nil {
		return nil
	}
	return t.Concepts[c]
}

// Is reports whether id is one of the aliases of c.
func (t *AliasTable) Is(c Concept, id FieldID) bool {
	for _, a := range t.Aliases(c) {
		if a == id {
			return true
		}
	}
	return false
}

// Lookup returns the first alias of c that is a key of values.
func (t *AliasTable) Lookup(c Concept, values map[FieldID]string) (FieldID, string, bool) {
	for _, a := range t.Aliases(c) {
		if v, ok := values[a]; ok {
			return a, v, true
		}
	}
	return "", "", false
}

// Add appends id to c unless already present, and bumps the version.
func (t *AliasTable) Add(c Concept, id FieldID) bool {
	if t.Is(c, id) {
		return false
	}
	if t.Concepts == nil {
		t.Concepts = make(map[Concept][]FieldID)
	}
	t.Concepts[c] = append(t.Concepts[c], id)
	t.Version++
	return true
}

// Merge overlays other on top of t: other's aliases come first.
func (t *AliasTable) Merge(other *AliasTable) *AliasTable {
	out := &AliasTable{Version: t.Version, Concepts: make(map[Concept][]FieldID)}
	if other != nil && other.Version > out.Version {
		out.Version = other.Version
	}
	for c, ids := range t.Concepts {
		out.Concepts[c] = append([]FieldID(nil), ids...)
	}
	if other == nil {
		return out
	}
	for c, ids := range other.Concepts {
		merged := append([]FieldID(nil), ids...)
		for _, id := range out.Concepts[c] {
			if !containsField(merged, id) {
				merged = append(merged, id)
			}
		}
		out.Concepts[c] = merged
	}
	return out
}

// ConceptNames lists the known concepts in sorted order.
func (t *AliasTable) ConceptNames() []Concept {
	out := make([]Concept, 0, len(t.Concepts))
	for c := range t.Concepts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func containsField(ids []FieldID, id FieldID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
