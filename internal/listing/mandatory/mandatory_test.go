package mandatory

import (
	"context"
	"strings"
	"sync"
	"testing"

	"listing-workers/internal/common/completion"
	"listing-workers/internal/common/kvstore"
	"listing-workers/internal/common/logger"
	"listing-workers/internal/listing/consensus"
	"listing-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

// fieldOracle answers per field mentioned in the prompt.
type fieldOracle struct {
	mu      sync.Mutex
	answers map[string][]string
	asked   map[string]int
}

func newOracle(answers map[string][]string) *fieldOracle {
	return &fieldOracle{answers: answers, asked: map[string]int{}}
}

func (o *fieldOracle) Ask(_ context.Context, _, prompt string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for field, replies := range o.answers {
		if !strings.Contains(prompt, `"`+field+`"`) {
			continue
		}
		i := o.asked[field]
		o.asked[field]++
		r := replies[i%len(replies)]
		if r == "NETWORK" {
			return "", &completion.NetworkError{Code: completion.CodeUnavailable, Message: "down"}
		}
		return r, nil
	}
	return "NO", nil
}

func (o *fieldOracle) Asked(field string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.asked[field]
}

func newClassifier(t *testing.T, kv kvstore.Store, svc completion.Service) *Classifier {
	log := logger.NewTestLogger(t)
	d := consensus.NewDispatcher(consensus.NewRunner(svc, log), 4)
	return NewClassifier(NewStore(kv), d, consensus.DefaultPhaseBudget(), "m", log)
}

func set(values ...string) models.StringSet { return models.NewStringSet(values...) }

func fields(ids ...string) []models.FieldID {
	out := make([]models.FieldID, len(ids))
	for i, id := range ids {
		out[i] = models.FieldID(id)
	}
	return out
}

// ==========================
// Effective set
// ==========================

func TestDecisions_Effective(t *testing.T) {
	tests := []struct {
		name string
		d    Decisions
		want []string
	}{
		{
			name: "current plus ai added",
			d:    Decisions{Current: set("sku", "title"), AIAdded: set("brand"), AIRemoved: set("title")},
			want: []string{"brand", "sku", "title"},
		},
		{
			name: "previous replaces current and loses ai removed",
			d:    Decisions{Current: set("sku", "title"), Previous: set("sku", "color", "size"), AIRemoved: set("size")},
			want: []string{"color", "sku"},
		},
		{
			name: "manual removal beats ai",
			d:    Decisions{Current: set("sku"), AIAdded: set("brand"), ManualRemoved: set("brand")},
			want: []string{"sku"},
		},
		{
			name: "manual addition always wins",
			d:    Decisions{Previous: set("sku"), AIRemoved: set("care"), ManualAdded: set("care")},
			want: []string{"care", "sku"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.d.Effective().Sorted())
		})
	}
}

func TestDecisions_EffectiveFormulaHolds(t *testing.T) {
	d := NewDecisions()
	d.Current = set("a", "b")
	check := func() {
		base := d.Current
		if len(d.Previous) > 0 {
			base = d.Previous.Minus(d.AIRemoved)
		}
		want := base.Union(d.AIAdded).Minus(d.ManualRemoved).Union(d.ManualAdded)
		assert.True(t, want.Equal(d.Effective()))
	}

	ops := []func(){
		func() { d.recordAI("c", true) },
		func() { d.recordAI("a", false) },
		func() { d.Previous = set("a", "d") },
		func() { d.ManualRemoved.Add("d") },
		func() { d.ManualAdded.Add("a") },
		func() { d.recordAI("a", true) },
		func() { d.Previous = set() },
	}
	for _, op := range ops {
		op()
		check()
	}
}

// ==========================
// Classification
// ==========================

func TestClassify_TwoPhases(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	oracle := newOracle(map[string][]string{
		"brand_name": {"YES"},
		"care_label": {"NO"},
		"color_name": {"YES", "NO"},
		"pattern":    {"maybe"},
	})
	c := newClassifier(t, kv, oracle)

	d, err := c.Classify(context.Background(), Request{
		ProductType: "dress",
		Scope:       models.Scope{Marketplace: "amazon", Country: "UK", Lang: "en"},
		Fields:      fields("brand_name", "care_label", "color_name", "pattern"),
		Current:     set("item_sku"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"brand_name", "color_name"}, d.AIAdded.Sorted(), "color wins phase two three to two")
	assert.Equal(t, []string{"care_label"}, d.AIRemoved.Sorted())
	assert.Equal(t, []string{"brand_name", "care_label", "color_name", "pattern"}, d.Reviewed.Sorted())
	assert.Equal(t, []string{"brand_name", "color_name", "item_sku"}, d.Effective().Sorted())

	assert.Equal(t, 2, oracle.Asked("brand_name"))
	assert.Equal(t, 7, oracle.Asked("color_name"))
	assert.Equal(t, 14, oracle.Asked("pattern"), "both budgets spent on invalid replies")
}

func TestClassify_ReviewedFieldsAreNeverAskedAgain(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	oracle := newOracle(map[string][]string{"brand_name": {"YES"}, "material": {"NO"}})

	req := Request{ProductType: "dress", Fields: fields("brand_name")}
	_, err := newClassifier(t, kv, oracle).Classify(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 2, oracle.Asked("brand_name"))

	req.Fields = fields("brand_name", "material")
	d, err := newClassifier(t, kv, oracle).Classify(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, oracle.Asked("brand_name"))
	assert.Equal(t, 2, oracle.Asked("material"))
	assert.True(t, d.AIAdded.Has("brand_name"), "earlier verdicts are reloaded")
	assert.True(t, d.AIRemoved.Has("material"))
}

func TestClassify_NetworkFailureKeepsDecidedFields(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	oracle := newOracle(map[string][]string{"brand_name": {"YES"}, "material": {"NETWORK"}})
	c := newClassifier(t, kv, oracle)

	_, err := c.Classify(context.Background(), Request{ProductType: "dress", Fields: fields("brand_name", "material")})
	require.Error(t, err)
	assert.True(t, consensus.IsNetworkFailure(err))

	stored, err := NewStore(kv).Load(context.Background(), "dress")
	require.NoError(t, err)
	assert.True(t, stored.Reviewed.Has("brand_name"))
	assert.True(t, stored.AIAdded.Has("brand_name"))
	assert.False(t, stored.Reviewed.Has("material"), "failed field is asked again next time")
}

func TestClassify_PreviousRunEvidence(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	c := newClassifier(t, kv, newOracle(nil))

	d, err := c.Classify(context.Background(), Request{
		ProductType: "dress",
		Current:     set("item_sku", "item_name"),
		Previous:    set("item_sku", "color_name"),
		NoAI:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"color_name", "item_sku"}, d.Effective().Sorted())

	stored, err := NewStore(kv).Load(context.Background(), "dress")
	require.NoError(t, err)
	assert.Equal(t, []string{"color_name", "item_sku"}, stored.Previous.Sorted())
}

func TestManualOverrides(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	c := newClassifier(t, kv, newOracle(nil))
	ctx := context.Background()

	d, err := c.SetManual(ctx, "dress", "care_label", true)
	require.NoError(t, err)
	assert.True(t, d.ManualAdded.Has("care_label"))

	d, err = c.SetManual(ctx, "dress", "care_label", false)
	require.NoError(t, err)
	assert.False(t, d.ManualAdded.Has("care_label"))
	assert.True(t, d.ManualRemoved.Has("care_label"))

	d, err = c.ClearManual(ctx, "dress", "care_label")
	require.NoError(t, err)
	assert.Empty(t, d.ManualRemoved)

	d, err = c.SetPrevious(ctx, "dress", fields("item_sku"))
	require.NoError(t, err)
	assert.Equal(t, []string{"item_sku"}, d.Previous.Sorted())
}
