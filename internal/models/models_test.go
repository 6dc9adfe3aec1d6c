package models

import (
	"encoding/json"
	"testing"

	apperrors "listing-workers/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Field ids
// ==========================

func TestNormalizeFieldID(t *testing.T) {
	tests := []struct {
		raw  string
		want FieldID
	}{
		{"item_sku", "item_sku"},
		{"  color_name [Couleur]  ", "color_name"},
		{"[marketplace=FR] list_price#1.value (EUR)", "list_price#1.value"},
		{"bullet_point1 [1] [required]", "bullet_point1"},
		{"broken]name", "brokenname"},
		{"[unterminated name", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := NormalizeFieldID(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, string(got), "[")
			assert.NotContains(t, string(got), "]")
		})
	}
}

// ==========================
// Flags
// ==========================

func TestFlagSet(t *testing.T) {
	s := NewFlagSet(ChildSameValue, NoAI)
	assert.True(t, s.IsChildSameValue())
	assert.True(t, s.IsNoAI())
	assert.False(t, s.IsSameValue())
	assert.Equal(t, "NoAI|ChildSameValue", s.String())

	s = s.With(MandatoryAmazon).Without(NoAI)
	assert.True(t, s.IsMandatoryFor("Amazon"))
	assert.False(t, s.IsMandatoryFor("temu"))
	assert.False(t, s.IsNoAI())

	parsed, err := ParseFlagSet("copy, size|PutFirstValue")
	require.NoError(t, err)
	assert.Equal(t, NewFlagSet(Copy, Size, PutFirstValue), parsed)

	_, err = ParseFlagSet("Copy,Bogus")
	assert.Error(t, err)
}

func TestFlagSet_JSON(t *testing.T) {
	data, err := json.Marshal(NewFlagSet(SameValue, Copy))
	require.NoError(t, err)
	assert.JSONEq(t, `["SameValue","Copy"]`, string(data))

	var s FlagSet
	require.NoError(t, json.Unmarshal(data, &s))
	assert.True(t, s.IsSameValue())
	assert.True(t, s.IsCopy())
}

// ==========================
// Alias table
// ==========================

func TestAliasTable_Lookup(t *testing.T) {
	aliases := DefaultAliasTable()
	row := map[FieldID]string{"contribution_sku#1.value": "SKU-1", "item_name": "Robe"}

	id, v, ok := aliases.Lookup(ConceptSKU, row)
	require.True(t, ok)
	assert.Equal(t, FieldID("contribution_sku#1.value"), id)
	assert.Equal(t, "SKU-1", v)

	id, _, ok = aliases.Lookup(ConceptTitle, row)
	require.True(t, ok)
	assert.Equal(t, FieldID("item_name"), id)

	_, _, ok = aliases.Lookup(ConceptKeywords, row)
	assert.False(t, ok)
}

func TestAliasTable_AddAndMerge(t *testing.T) {
	base := DefaultAliasTable()
	assert.False(t, base.Add(ConceptSKU, "item_sku"))
	assert.Equal(t, 1, base.Version)

	overlay := &AliasTable{Version: 3, Concepts: map[Concept][]FieldID{ConceptSKU: {"seller_sku"}}}
	merged := base.Merge(overlay)
	assert.Equal(t, 3, merged.Version)
	assert.Equal(t, FieldID("seller_sku"), merged.Aliases(ConceptSKU)[0])
	assert.True(t, merged.Is(ConceptSKU, "item_sku"))
	assert.NotContains(t, base.Aliases(ConceptSKU), FieldID("seller_sku"))
}

// ==========================
// Template integrity
// ==========================

func sampleRows() []map[FieldID]string {
	return []map[FieldID]string{
		{"item_sku": "P1", "item_name": "Robe", "feed_product_type": "dress"},
		{"item_sku": "C1", "parent_sku": "P1", "color_name": "Rouge", "size_name": "38"},
		{"item_sku": "C2", "parent_sku": "P1", "color_name": "Rouge", "size_name": "40"},
		{"item_sku": "C3", "parent_sku": "P1", "color_name": "Bleu", "size_name": "38"},
		{"item_sku": ""},
	}
}

func TestNewTemplate(t *testing.T) {
	tpl, err := NewTemplate(Scope{"amazon", "FR", "fr"}, nil, sampleRows())
	require.NoError(t, err)

	assert.Equal(t, 4, tpl.Len())
	assert.Equal(t, []SKU{"C1", "C2", "C3"}, tpl.Children("P1"))
	assert.Equal(t, "dress", tpl.ProductType("C2"), "children inherit the parent product type")
	assert.Equal(t, []string{"dress"}, tpl.ProductTypes())

	rec, ok := tpl.Record("C3")
	require.True(t, ok)
	assert.True(t, rec.IsChild())
	assert.Equal(t, "Bleu", rec.Variation)
}

func TestNewTemplate_IntegrityErrors(t *testing.T) {
	tests := []struct {
		name string
		rows []map[FieldID]string
		code apperrors.ErrorCode
	}{
		{
			name: "duplicate sku",
			rows: []map[FieldID]string{{"item_sku": "A"}, {"item_sku": "A"}},
			code: apperrors.ErrCodeDuplicateSKU,
		},
		{
			name: "unknown parent",
			rows: []map[FieldID]string{{"item_sku": "C", "parent_sku": "P"}},
			code: apperrors.ErrCodeInconsistentParent,
		},
		{
			name: "grandchild",
			rows: []map[FieldID]string{
				{"item_sku": "P"},
				{"item_sku": "C", "parent_sku": "P"},
				{"item_sku": "G", "parent_sku": "C"},
			},
			code: apperrors.ErrCodeInconsistentParent,
		},
		{
			name: "no sku column",
			rows: []map[FieldID]string{{"item_name": "x"}},
			code: apperrors.ErrCodeSchema,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTemplate(Scope{}, nil, tt.rows)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.CodeOf(err))
		})
	}
}

// ==========================
// Grouping
// ==========================

func TestGroupSKUs(t *testing.T) {
	scope := Scope{"amazon", "UK", "en"}
	tpl, err := NewTemplate(Scope{"amazon", "FR", "fr"}, nil, sampleRows())
	require.NoError(t, err)

	t.Run("same value", func(t *testing.T) {
		groups := GroupSKUs(tpl, scope, "brand_name", NewFlagSet(SameValue))
		require.Len(t, groups, 1)
		assert.Equal(t, []SKU{"P1", "C1", "C2", "C3"}, groups[0].SKUs)
	})

	t.Run("child same value", func(t *testing.T) {
		groups := GroupSKUs(tpl, scope, "item_name", NewFlagSet(ChildSameValue))
		require.Len(t, groups, 1)
		assert.Equal(t, []SKU{"P1", "C1", "C2", "C3"}, groups[0].SKUs)
	})

	t.Run("per variant", func(t *testing.T) {
		groups := GroupSKUs(tpl, scope, "color_name", 0)
		require.Len(t, groups, 3)
		assert.Equal(t, []SKU{"P1"}, groups[0].SKUs)
		assert.Equal(t, []SKU{"C1", "C2"}, groups[1].SKUs)
		assert.Equal(t, []SKU{"C3"}, groups[2].SKUs)
	})

	t.Run("child only skips parents", func(t *testing.T) {
		groups := GroupSKUs(tpl, scope, "size_name", NewFlagSet(ChildOnly))
		require.Len(t, groups, 2)
		assert.Equal(t, []SKU{"C1", "C2"}, groups[0].SKUs)
	})

	t.Run("keys are stable", func(t *testing.T) {
		rec, _ := tpl.Record("C1")
		a := GroupKey(scope, "color_name", 0, rec)
		b := GroupKey(scope, "color_name", 0, rec)
		assert.Equal(t, a, b)
		assert.Equal(t, "amazon|UK|en|color_name|P1|Rouge", a)
	})
}

// ==========================
// Attributes and sets
// ==========================

func TestAttribute_Possible(t *testing.T) {
	a := &Attribute{Name: "department", Fields: map[string]FieldID{"amazon": "department_name"}}
	a.AddPossibleValues(ValueScope{"amazon", "FR", "fr", CategoryAny}, "Femme", "Homme", "Femme", " ")
	a.AddPossibleValues(ValueScope{"amazon", "FR", "fr", CategoryShoe}, "Femme")

	assert.Equal(t, []string{"Femme", "Homme"}, a.Possible(ValueScope{"Amazon", "fr", "FR", CategoryClothing}))
	assert.Equal(t, []string{"Femme"}, a.Possible(ValueScope{"amazon", "FR", "fr", CategoryShoe}))
	assert.Nil(t, a.Possible(ValueScope{"amazon", "DE", "de", CategoryAny}))

	table := NewAttributeTable([]*Attribute{a})
	got, ok := table.Get("AMAZON", "department_name")
	require.True(t, ok)
	assert.Same(t, a, got)
}

func TestStringSet(t *testing.T) {
	a := NewStringSet("x", "y")
	b := NewStringSet("y", "z")
	assert.Equal(t, []string{"x", "y", "z"}, a.Union(b).Sorted())
	assert.Equal(t, []string{"x"}, a.Minus(b).Sorted())
	assert.True(t, a.Intersects([]string{"q", "y"}))
	assert.True(t, a.Equal(NewStringSet("y", "x")))
}
