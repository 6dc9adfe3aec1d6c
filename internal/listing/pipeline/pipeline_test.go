package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"

	apperrors "listing-workers/internal/common/errors"
	"listing-workers/internal/common/kvstore"
	"listing-workers/internal/common/logger"
	"listing-workers/internal/listing/consensus"
	"listing-workers/internal/listing/equivalence"
	"listing-workers/internal/listing/ledger"
	"listing-workers/internal/listing/mandatory"
	"listing-workers/internal/listing/resolver"
	"listing-workers/internal/listing/sizing"
	"listing-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type oracle struct {
	mu    sync.Mutex
	rules [][2]string
	calls int
}

func (o *oracle) Ask(_ context.Context, _, prompt string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	for _, r := range o.rules {
		if strings.Contains(prompt, r[0]) {
			return r[1], nil
		}
	}
	return "OTHER", nil
}

func (o *oracle) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

var (
	scopeFR = models.Scope{Marketplace: "amazon", Country: "FR", Lang: "fr"}
	scopeUK = models.Scope{Marketplace: "amazon", Country: "UK", Lang: "en"}
)

func newDeps(t *testing.T, svc *oracle, kv kvstore.Store, text resolver.TextBudget) resolver.Deps {
	log := logger.NewTestLogger(t)
	runner := consensus.NewRunner(svc, log, consensus.WithCache(consensus.NewCache(kv, log)))
	budget := consensus.DefaultPhaseBudget()
	return resolver.Deps{
		Dispatcher:  consensus.NewDispatcher(runner, 4),
		Sizes:       sizing.NewEngine(nil),
		Categories:  sizing.NewCategoryClassifier(kv, runner, "m", log),
		Equivalence: equivalence.New(kv, runner, budget, "m", log),
		Budget:      budget,
		Text:        text,
		Model:       "m",
		Logger:      log,
	}
}

func newPipeline(t *testing.T, svc *oracle, kv kvstore.Store, opts ...Option) *Pipeline {
	d := newDeps(t, svc, kv, resolver.TextBudget{Replies: 2, MaxRetries: 6})
	return New(resolver.DefaultRegistry(d), d.Logger, opts...)
}

func sourceSheet() *MemorySheet {
	wb := NewMemorySheet()
	wb.AddSheet("Template", [][]string{
		{"item_sku [required]", "parent_sku", "feed_product_type", "item_name", "color_name", "size_name", "list_price", "product_description"},
		{"P1", "", "dress", "Robe d'été", "Rouge", "", "19,99", "Robe légère"},
		{"C1", "P1", "", "", "Rouge", "38", "19,99", ""},
		{"C2", "P1", "", "", "Rouge", "40", "19,99", ""},
	})
	return wb
}

func targetSheet() *MemorySheet {
	wb := NewMemorySheet()
	wb.AddSheet("Template", [][]string{
		{"item_sku", "parent_sku", "item_name", "color_name", "size_name", "list_price", "product_description"},
	})
	return wb
}

func attributes(extra ...*models.Attribute) *models.AttributeTable {
	color := &models.Attribute{Name: "color", Fields: map[string]models.FieldID{"amazon": "color_name"}}
	color.AddPossibleValues(models.ValueScope{Marketplace: "amazon", Country: "UK", Lang: "en"}, "Black", "Red", "White")
	size := &models.Attribute{Name: "size", Fields: map[string]models.FieldID{"amazon": "size_name"}, Flags: models.NewFlagSet(models.Size)}
	return models.NewAttributeTable(append([]*models.Attribute{color, size}, extra...))
}

func loadRequest(t *testing.T) Request {
	t.Helper()
	src, _, err := LoadTemplate(sourceSheet(), DefaultLayout("Template"), scopeFR, nil)
	require.NoError(t, err)
	fields, err := TargetFields(targetSheet(), DefaultLayout("Template"))
	require.NoError(t, err)
	return Request{Source: src, Target: scopeUK, Fields: fields, Attributes: attributes()}
}

var translations = [][2]string{
	{"Robe légère", `{"value": "Light dress"}`},
	{"Robe d'été", `{"value": "Summer dress"}`},
	{"has the value", "Red"},
}

// ==========================
// Run
// ==========================

func TestRun_ResolvesTemplateAndIsIdempotent(t *testing.T) {
	svc := &oracle{rules: translations}
	kv := kvstore.NewMemoryStore()
	req := loadRequest(t)

	first, err := newPipeline(t, svc, kv).Run(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, first.RunID)
	assert.Empty(t, first.Failures)
	assert.Equal(t, 6, svc.Calls(), "title, equivalence and description take two replies each")

	out := first.Output
	assert.Equal(t, "C1", out.Get("C1", "item_sku"))
	assert.Equal(t, "P1", out.Get("C1", "parent_sku"))
	assert.False(t, out.Has("P1", "parent_sku"))
	assert.Equal(t, "Summer dress", out.Get("C2", "item_name"))
	assert.Equal(t, "Red", out.Get("C2", "color_name"))
	assert.Equal(t, "10", out.Get("C1", "size_name"))
	assert.Equal(t, "12", out.Get("C2", "size_name"))
	assert.Equal(t, "17.99", out.Get("P1", "list_price"))
	assert.Equal(t, "Light dress", out.Get("C1", "product_description"))
	assert.Equal(t, "Summer dress", first.Lang.Get("P1", "item_name"))

	second, err := newPipeline(t, svc, kv).Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 6, svc.Calls(), "second run is answered from persisted state")
	assert.Equal(t, first.Output, second.Output)
	assert.NotEqual(t, first.RunID, second.RunID)

	target := targetSheet()
	require.NoError(t, WriteOutput(target, DefaultLayout("Template"), []models.SKU{"P1", "C1", "C2"}, second.Output))
	assert.Equal(t,
		[]string{"C1", "P1", "Summer dress", "Red", "10", "17.99", "Light dress"},
		target.Rows("Template")[2])
}

func TestRun_ChildSameValueAsksOnce(t *testing.T) {
	wb := NewMemorySheet()
	wb.AddSheet("Template", [][]string{
		{"item_sku", "parent_sku", "feed_product_type", "item_name", "color_name"},
		{"P1", "", "dress", "Robe d'été", "Rouge"},
		{"C1", "P1", "", "", "Rouge"},
		{"C2", "P1", "", "", "Bleu"},
	})
	src, _, err := LoadTemplate(wb, DefaultLayout("Template"), scopeFR, nil)
	require.NoError(t, err)

	title := &models.Attribute{
		Name:   "title",
		Fields: map[string]models.FieldID{"amazon": "item_name"},
		Flags:  models.NewFlagSet(models.ChildSameValue),
	}
	svc := &oracle{rules: translations}
	d := newDeps(t, svc, kvstore.NewMemoryStore(), resolver.TextBudget{Replies: 1, MaxRetries: 3})
	p := New(resolver.DefaultRegistry(d), d.Logger)

	res, err := p.Run(context.Background(), Request{
		Source:     src,
		Target:     scopeUK,
		Fields:     []models.FieldID{"item_name"},
		Attributes: models.NewAttributeTable([]*models.Attribute{title}),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, svc.Calls())
	for _, sku := range []models.SKU{"P1", "C1", "C2"} {
		assert.Equal(t, "Summer dress", res.Output.Get(sku, "item_name"), string(sku))
	}
}

func TestRun_DefersKeywordsUntilTitle(t *testing.T) {
	svc := &oracle{rules: translations}
	req := loadRequest(t)
	req.Fields = []models.FieldID{"generic_keywords", "item_name"}

	res, err := newPipeline(t, svc, kvstore.NewMemoryStore()).Run(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, res.Failures)
	assert.Equal(t, "summer dress", res.Output.Get("C1", "generic_keywords"))
}

type captureStore struct {
	runID    string
	failures []ledger.Failure
}

func (c *captureStore) SaveFailures(_ context.Context, runID string, _ models.Scope, f []ledger.Failure) error {
	c.runID, c.failures = runID, f
	return nil
}

type captureNotifier struct {
	summary *ledger.Summary
}

func (c *captureNotifier) Notify(_ context.Context, s ledger.Summary) error {
	c.summary = &s
	return nil
}

func TestRun_FieldFailuresGoToLedger(t *testing.T) {
	req := loadRequest(t)
	req.Fields = []models.FieldID{"item_sku", "color_name", "list_price"}
	color := &models.Attribute{Name: "color", Fields: map[string]models.FieldID{"amazon": "color_name"}}
	color.AddPossibleValues(models.ValueScope{Marketplace: "amazon", Country: "DE", Lang: "de"}, "Rot", "Blau")
	req.Attributes = models.NewAttributeTable([]*models.Attribute{color})

	store, notifier := &captureStore{}, &captureNotifier{}
	res, err := newPipeline(t, &oracle{}, kvstore.NewMemoryStore(), WithLedger(store, notifier)).Run(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, res.Failures, 1)
	assert.Equal(t, "color_name", res.Failures[0].Field)
	assert.Equal(t, string(apperrors.ErrCodeNoPossibleValue), res.Failures[0].Code)
	assert.Equal(t, "17.99", res.Output.Get("C1", "list_price"), "other fields still resolve")

	assert.Equal(t, res.RunID, store.runID)
	assert.Len(t, store.failures, 1)
	require.NotNil(t, notifier.summary)
	assert.Equal(t, 1, notifier.summary.Failures)
}

type greedy struct{ name string }

func (g greedy) Name() string                                           { return g.name }
func (g greedy) CanFill(*models.Attribute, string, models.FieldID) bool { return true }
func (g greedy) Fill(context.Context, *resolver.Job) error              { return nil }

func TestRun_ResolverConflictAborts(t *testing.T) {
	reg := resolver.NewRegistry()
	reg.Register(1, greedy{name: "a"})
	reg.Register(1, greedy{name: "b"})

	req := loadRequest(t)
	req.Fields = []models.FieldID{"item_name"}
	res, err := New(reg, logger.NewTestLogger(t)).Run(context.Background(), req)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, apperrors.IsFatal(err))
}

func TestRun_RequiresSource(t *testing.T) {
	_, err := New(resolver.NewRegistry(), nil).Run(context.Background(), Request{})
	assert.Equal(t, apperrors.ErrCodeInvalidJobInput, apperrors.CodeOf(err))
}

func TestRun_MandatoryFieldsAreGenerated(t *testing.T) {
	svc := &oracle{rules: [][2]string{{"Write the care_instructions", `{"value": "Light summer dress"}`}}}
	kv := kvstore.NewMemoryStore()
	d := newDeps(t, svc, kv, resolver.TextBudget{Replies: 2, MaxRetries: 6})
	classifier := mandatory.NewClassifier(mandatory.NewStore(kv), d.Dispatcher, d.Budget, "m", d.Logger)
	p := New(resolver.DefaultRegistry(d), d.Logger, WithClassifier(classifier))

	req := loadRequest(t)
	req.NoAI = true
	req.Fields = []models.FieldID{"care_instructions", "item_name"}
	req.Attributes = models.NewAttributeTable([]*models.Attribute{{
		Name:   "care_instructions",
		Fields: map[string]models.FieldID{"amazon": "care_instructions"},
		Flags:  models.NewFlagSet(models.MandatoryAmazon),
	}})
	svc.rules = append(svc.rules, translations...)

	res, err := p.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"care_instructions"}, res.Mandatory["dress"])
	assert.Equal(t, "Light summer dress", res.Output.Get("C2", "care_instructions"))
}

func TestPreviousEvidence(t *testing.T) {
	req := loadRequest(t)
	readable := models.NewFlagSet(models.ReadablePreviousTemplates)
	req.Attributes = models.NewAttributeTable([]*models.Attribute{
		{Name: "price", Fields: map[string]models.FieldID{"amazon": "list_price"}, Flags: readable},
		{Name: "size", Fields: map[string]models.FieldID{"amazon": "size_name"}, Flags: readable},
		{Name: "color", Fields: map[string]models.FieldID{"amazon": "color_name"}},
	})

	got := previousEvidence(req, "dress")
	assert.Equal(t, []string{"list_price"}, got.Sorted(), "size is empty on the parent, color is not readable")
}

// ==========================
// Workbook
// ==========================

func TestLoadTemplate(t *testing.T) {
	src, cols, err := LoadTemplate(sourceSheet(), DefaultLayout("Template"), scopeFR, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, src.Len())
	assert.Equal(t, models.FieldID("item_sku"), cols[0], "bracketed header text is dropped")
	assert.Equal(t, "dress", src.ProductType("C2"))

	_, _, err = LoadTemplate(sourceSheet(), DefaultLayout("Missing"), scopeFR, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeSchema, apperrors.CodeOf(err))
	assert.True(t, apperrors.IsFatal(err))

	dup := NewMemorySheet()
	dup.AddSheet("T", [][]string{{"item_sku"}, {"A"}, {""}, {"A"}})
	_, _, err = LoadTemplate(dup, DefaultLayout("T"), scopeFR, nil)
	assert.Equal(t, apperrors.ErrCodeDuplicateSKU, apperrors.CodeOf(err))
}

func TestTargetFields_MissingSheet(t *testing.T) {
	wb := NewMemorySheet()
	wb.AddSheet("Data", [][]string{{"item_sku"}})

	_, err := TargetFields(wb, DefaultLayout("Template"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeSchema, apperrors.CodeOf(err))
	assert.True(t, apperrors.IsFatal(err))

	fields, err := TargetFields(wb, DefaultLayout("Data"))
	require.NoError(t, err)
	assert.Equal(t, []models.FieldID{"item_sku"}, fields)
}

func TestMemorySheet_WriteGrows(t *testing.T) {
	wb := NewMemorySheet()
	wb.AddSheet("S", nil)
	require.NoError(t, wb.SelectSheet("S"))
	require.NoError(t, wb.Write(2, 1, "x"))

	rows, cols := wb.Dimension()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 2, cols)
	assert.Equal(t, "x", wb.CellAt(2, 1))
	assert.Equal(t, "", wb.CellAt(5, 5))
	assert.Error(t, wb.Write(-1, 0, "y"))
}
