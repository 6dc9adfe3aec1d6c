// internal/models/template.go
package models

import (
	"strings"

	apperrors "listing-workers/internal/common/errors"
)

// SKU identifies one sellable product variant.
type SKU string

// Record is one SKU row of a source template.
type Record struct {
	SKU         SKU
	Parent      SKU
	Variation   string
	ProductType string
	Values      map[FieldID]string
}

// IsChild reports whether the record belongs to a parent.
func (r *Record) IsChild() bool { return r.Parent != "" && r.Parent != r.SKU }

// GroupParent is the parent used for grouping: a parent groups with itself.
func (r *Record) GroupParent() SKU {
	if r.IsChild() {
		return r.Parent
	}
	return r.SKU
}

// Template is an immutable, integrity-checked snapshot of a source sheet.
type Template struct {
	Scope    Scope
	Aliases  *AliasTable
	records  []*Record
	index    map[SKU]int
	children map[SKU][]SKU
}

// NewTemplate builds a template from raw rows. Rows without a SKU are
// skipped. The SKU column must exist, SKUs must be unique and every parent
// reference must point to a top-level record present in the sheet.
func NewTemplate(scope Scope, aliases *AliasTable, rows []map[FieldID]string) (*Template, error) {
	if aliases == nil {
		aliases = DefaultAliasTable()
	}
	t := &Template{
		Scope:    scope,
		Aliases:  aliases,
		index:    make(map[SKU]int),
		children: make(map[SKU][]SKU),
	}

	skuColumnSeen := false
	for _, row := range rows {
		_, rawSKU, ok := aliases.Lookup(ConceptSKU, row)
		if !ok {
			continue
		}
		skuColumnSeen = true
		sku := SKU(strings.TrimSpace(rawSKU))
		if sku == "" {
			continue
		}
		if _, dup := t.index[sku]; dup {
			return nil, apperrors.NewDuplicateSKUError(string(sku))
		}

		rec := &Record{SKU: sku, Values: make(map[FieldID]string, len(row))}
		for k, v := range row {
			rec.Values[k] = v
		}
		if _, p, ok := aliases.Lookup(ConceptParentSKU, row); ok {
			rec.Parent = SKU(strings.TrimSpace(p))
		}
		if _, v, ok := aliases.Lookup(ConceptVariation, row); ok {
			rec.Variation = strings.TrimSpace(v)
		}
		if _, pt, ok := aliases.Lookup(ConceptProductType, row); ok {
			rec.ProductType = strings.TrimSpace(pt)
		}

		t.index[sku] = len(t.records)
		t.records = append(t.records, rec)
	}

	if len(rows) > 0 && !skuColumnSeen {
		return nil, apperrors.NewSchemaError("Missing column",
			"the source template has no SKU column ("+joinFields(aliases.Aliases(ConceptSKU))+")")
	}

	for _, rec := range t.records {
		if !rec.IsChild() {
			continue
		}
		i, ok := t.index[rec.Parent]
		if !ok {
			return nil, apperrors.NewInconsistentParentError(string(rec.SKU), string(rec.Parent), "parent not found")
		}
		if parent := t.records[i]; parent.IsChild() {
			return nil, apperrors.NewInconsistentParentError(string(rec.SKU), string(rec.Parent), "parent is itself a child")
		}
		t.children[rec.Parent] = append(t.children[rec.Parent], rec.SKU)
	}

	return t, nil
}

func joinFields(ids []FieldID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}

// Records returns records in sheet order.
func (t *Template) Records() []*Record { return t.records }

func (t *Template) Record(sku SKU) (*Record, bool) {
	i, ok := t.index[sku]
	if !ok {
		return nil, false
	}
	return t.records[i], true
}

func (t *Template) Len() int { return len(t.records) }

// Value returns the source value of a SKU's field.
func (t *Template) Value(sku SKU, field FieldID) string {
	rec, ok := t.Record(sku)
	if !ok {
		return ""
	}
	return rec.Values[field]
}

// ConceptValue resolves a concept through the alias table.
func (t *Template) ConceptValue(sku SKU, c Concept) (FieldID, string) {
	rec, ok := t.Record(sku)
	if !ok {
		return "", ""
	}
	id, v, _ := t.Aliases.Lookup(c, rec.Values)
	return id, v
}

// Children returns the children of parent in sheet order.
func (t *Template) Children(parent SKU) []SKU { return t.children[parent] }

// HasChildren reports whether sku is a parent with at least one child.
func (t *Template) HasChildren(sku SKU) bool { return len(t.children[sku]) > 0 }

// ProductType returns the record's product type, inherited from the parent
// when the child row leaves it empty.
func (t *Template) ProductType(sku SKU) string {
	rec, ok := t.Record(sku)
	if !ok {
		return ""
	}
	if rec.ProductType == "" && rec.IsChild() {
		if p, ok := t.Record(rec.Parent); ok {
			return p.ProductType
		}
	}
	return rec.ProductType
}

// ProductTypes lists distinct product types in first-appearance order.
func (t *Template) ProductTypes() []string {
	seen := make(map[string]bool)
	var out []string
	for _, rec := range t.records {
		pt := t.ProductType(rec.SKU)
		if pt == "" || seen[pt] {
			continue
		}
		seen[pt] = true
		out = append(out, pt)
	}
	return out
}

// Fields lists every field id present in at least one record, in
// first-appearance order with map keys sorted per record.
func (t *Template) Fields() []FieldID {
	seen := make(map[FieldID]bool)
	var out []FieldID
	for _, rec := range t.records {
		keys := make([]string, 0, len(rec.Values))
		for k := range rec.Values {
			keys = append(keys, string(k))
		}
		sortStrings(keys)
		for _, k := range keys {
			if !seen[FieldID(k)] {
				seen[FieldID(k)] = true
				out = append(out, FieldID(k))
			}
		}
	}
	return out
}

// ValueMap holds resolved values per SKU and field.
type ValueMap map[SKU]map[FieldID]string

func (m ValueMap) Get(sku SKU, field FieldID) string { return m[sku][field] }

func (m ValueMap) Has(sku SKU, field FieldID) bool {
	return strings.TrimSpace(m[sku][field]) != ""
}

func (m ValueMap) Set(sku SKU, field FieldID, value string) {
	row, ok := m[sku]
	if !ok {
		row = make(map[FieldID]string)
		m[sku] = row
	}
	row[field] = value
}

// Clone deep-copies the map.
func (m ValueMap) Clone() ValueMap {
	out := make(ValueMap, len(m))
	for sku, row := range m {
		cp := make(map[FieldID]string, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out[sku] = cp
	}
	return out
}
