// internal/workers/listing/fill-template/handler_test.go
package filltemplate

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "listing-workers/internal/common/errors"
	"listing-workers/internal/common/kvstore"
	"listing-workers/internal/common/logger"
	"listing-workers/internal/listing/consensus"
	"listing-workers/internal/listing/equivalence"
	"listing-workers/internal/listing/pipeline"
	"listing-workers/internal/listing/resolver"
	"listing-workers/internal/listing/sizing"
	"listing-workers/internal/models"
	"listing-workers/pkg/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type translator struct {
	mu    sync.Mutex
	calls int
}

func (tr *translator) Ask(_ context.Context, _, prompt string) (string, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.calls++
	if strings.Contains(prompt, "Robe d'été") {
		return `{"value": "Summer dress"}`, nil
	}
	return `{"value": "?"}`, nil
}

func (tr *translator) Calls() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.calls
}

var (
	scopeFR = models.Scope{Marketplace: "amazon", Country: "FR", Lang: "fr"}
	scopeUK = models.Scope{Marketplace: "amazon", Country: "UK", Lang: "en"}
)

func createTestHandler(t *testing.T, svc *translator) *Handler {
	log := logger.NewTestLogger(t)
	kv := kvstore.NewMemoryStore()
	runner := consensus.NewRunner(svc, log, consensus.WithCache(consensus.NewCache(kv, log)))
	budget := consensus.DefaultPhaseBudget()
	deps := resolver.Deps{
		Dispatcher:  consensus.NewDispatcher(runner, 4),
		Sizes:       sizing.NewEngine(nil),
		Categories:  sizing.NewCategoryClassifier(kv, runner, "m", log),
		Equivalence: equivalence.New(kv, runner, budget, "m", log),
		Budget:      budget,
		Text:        resolver.TextBudget{Replies: 1, MaxRetries: 3},
		Model:       "m",
		Logger:      log,
	}

	reg := registry.New()
	require.NoError(t, reg.AddAttribute(&models.Attribute{
		Name:   "title",
		Fields: map[string]models.FieldID{"amazon": "item_name"},
		Flags:  models.NewFlagSet(models.ChildSameValue),
	}))

	config := &Config{Timeout: 10 * time.Second, DefaultSheet: "Template"}
	return NewHandler(config, pipeline.New(resolver.DefaultRegistry(deps), log), reg, log)
}

func createInput() *Input {
	return &Input{
		Source: Sheet{
			Scope: scopeFR,
			Rows: [][]string{
				{"item_sku", "parent_sku", "feed_product_type", "item_name"},
				{"P1", "", "dress", "Robe d'été"},
				{"C1", "P1", "", ""},
				{"C2", "P1", "", ""},
			},
		},
		Target: Sheet{
			Scope: scopeUK,
			Rows:  [][]string{{"item_sku", "parent_sku", "item_name"}},
		},
	}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_FillsTarget(t *testing.T) {
	svc := &translator{}
	h := createTestHandler(t, svc)

	output, err := h.Execute(context.Background(), createInput())
	require.NoError(t, err)

	assert.NotEmpty(t, output.RunID)
	assert.Zero(t, output.FailureCount)
	assert.Equal(t, [][]string{
		{"item_sku", "parent_sku", "item_name"},
		{"P1", "", "Summer dress"},
		{"C1", "P1", "Summer dress"},
		{"C2", "P1", "Summer dress"},
	}, output.Rows)
	assert.Equal(t, 1, svc.Calls())
	assert.Equal(t, "Summer dress", output.Lang["P1"]["item_name"])
}

func TestHandler_Execute_ReusesLangSeed(t *testing.T) {
	svc := &translator{}
	h := createTestHandler(t, svc)

	input := createInput()
	input.LangSeed = map[string]map[string]string{
		"P1": {"item_name": "Seeded dress"},
		"C1": {"item_name": "Seeded dress"},
		"C2": {"item_name": "Seeded dress"},
	}
	output, err := h.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.Zero(t, svc.Calls())
	assert.Equal(t, "Seeded dress", output.Rows[2][2])
}

func TestHandler_Execute_HonorsLayout(t *testing.T) {
	h := createTestHandler(t, &translator{})

	input := createInput()
	input.Source.Sheet = "Listings"
	input.Source.HeaderRow = 1
	input.Source.Rows = append([][]string{{"Amazon template v3"}}, input.Source.Rows...)

	output, err := h.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.Len(t, output.Rows, 4)
	assert.Equal(t, "C2", output.Rows[3][0])
}

// ==========================
// Error Handling Tests
// ==========================

func TestHandler_Execute_TemplateIntegrity(t *testing.T) {
	h := createTestHandler(t, &translator{})

	input := createInput()
	input.Source.Rows = append(input.Source.Rows, []string{"C1", "P1", "", ""})

	_, err := h.Execute(context.Background(), input)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeDuplicateSKU, apperrors.CodeOf(err))
	assert.True(t, apperrors.IsFatal(err))
}

func TestHandler_ParseInput(t *testing.T) {
	h := createTestHandler(t, &translator{})

	valid, err := json.Marshal(createInput())
	require.NoError(t, err)

	tests := []struct {
		name      string
		variables string
		wantErr   bool
	}{
		{"valid", string(valid), false},
		{"not json", `{`, true},
		{"missing target", `{"source": {"scope": {"marketplace": "amazon", "country": "FR", "lang": "fr"}, "rows": [["item_sku"]]}}`, true},
		{"empty rows", strings.Replace(string(valid), `"rows":[["item_sku","parent_sku","item_name"]]`, `"rows":[]`, 1), true},
		{"blank scope", strings.Replace(string(valid), `"country":"UK"`, `"country":""`, 1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := h.parseInput(tt.variables)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, scopeUK, input.Target.Scope)
				return
			}
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrCodeInvalidJobInput, apperrors.CodeOf(err))
		})
	}
}
