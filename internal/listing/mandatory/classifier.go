package mandatory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	apperrors "listing-workers/internal/common/errors"
	"listing-workers/internal/common/logger"
	"listing-workers/internal/listing/consensus"
	"listing-workers/internal/models"
)

// Request asks for the mandatory sets of one product type.
type Request struct {
	ProductType string
	Scope       models.Scope
	Fields      []models.FieldID
	// Current holds the fields the freshly parsed template marks mandatory.
	Current models.StringSet
	// Previous holds the mandatory set of a previous run, when known.
	Previous models.StringSet
	// NoAI skips both AI phases and only combines persisted evidence.
	NoAI bool
}

// Classifier runs the two-phase AI review of unreviewed fields.
type Classifier struct {
	store      *Store
	dispatcher *consensus.Dispatcher
	budget     consensus.PhaseBudget
	model      string
	logger     logger.Logger
	locks      sync.Map
}

func NewClassifier(store *Store, dispatcher *consensus.Dispatcher, budget consensus.PhaseBudget, model string, log logger.Logger) *Classifier {
	return &Classifier{
		store:      store,
		dispatcher: dispatcher,
		budget:     budget,
		model:      model,
		logger:     log,
	}
}

func (c *Classifier) lock(productType string) func() {
	v, _ := c.locks.LoadOrStore(productType, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Classify loads persisted decisions, asks about every unreviewed field and
// returns the updated decisions. Decided fields are persisted as soon as
// they are known; on a network failure the partial result is returned along
// with the error.
func (c *Classifier) Classify(ctx context.Context, req Request) (*Decisions, error) {
	defer c.lock(req.ProductType)()

	d, err := c.store.Load(ctx, req.ProductType)
	if err != nil {
		return nil, err
	}
	if req.Current != nil {
		d.Current = req.Current.Clone()
	}
	if len(req.Previous) > 0 && !req.Previous.Equal(d.Previous) {
		d.Previous = req.Previous.Clone()
		if err := c.store.Save(ctx, req.ProductType, d); err != nil {
			return nil, err
		}
	}

	var pending []models.FieldID
	for _, f := range req.Fields {
		if !d.Reviewed.Has(string(f)) {
			pending = append(pending, f)
		}
	}
	if req.NoAI || len(pending) == 0 {
		return d, nil
	}

	var mu sync.Mutex
	record := func(field models.FieldID, verdict string) error {
		mu.Lock()
		defer mu.Unlock()
		switch verdict {
		case "YES":
			d.recordAI(string(field), true)
		case "NO":
			d.recordAI(string(field), false)
		default:
			d.Reviewed.Add(string(field))
		}
		return c.store.Save(ctx, req.ProductType, d)
	}

	var firstErr error
	undecided, err := c.phase(ctx, req, pending, 1, record)
	if err != nil {
		firstErr = err
	}
	if len(undecided) > 0 {
		if _, err := c.phase(ctx, req, undecided, 2, record); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	c.logger.Info("mandatory classification done", map[string]interface{}{
		"productType": req.ProductType,
		"asked":       len(pending),
		"aiAdded":     len(d.AIAdded),
		"aiRemoved":   len(d.AIRemoved),
	})
	return d.clone(), firstErr
}

// phase asks about fields concurrently and returns the ones left undecided.
// Phase 2 marks every field it settles or exhausts as reviewed.
func (c *Classifier) phase(ctx context.Context, req Request, fields []models.FieldID, n int, record func(models.FieldID, string) error) ([]models.FieldID, error) {
	steps := make([]consensus.Step, len(fields))
	for i, f := range fields {
		steps[i] = c.step(req, f, n, record)
	}

	var (
		undecided []models.FieldID
		firstErr  error
	)
	for i, out := range c.dispatcher.Dispatch(ctx, steps) {
		field := fields[i]
		if out.Err != nil {
			if n == 1 && apperrors.CodeOf(out.Err) == apperrors.ErrCodeConsensusExhausted {
				undecided = append(undecided, field)
				continue
			}
			if firstErr == nil {
				firstErr = out.Err
			}
			continue
		}
		switch {
		case n == 1 && !out.Result.HasValue():
			undecided = append(undecided, field)
		case n == 2 && out.Result.Outcome == consensus.OutcomeInconclusive:
			if err := record(field, ""); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return undecided, firstErr
}

func (c *Classifier) step(req Request, field models.FieldID, n int, record func(models.FieldID, string) error) consensus.Step {
	step := consensus.Step{
		Name:  fmt.Sprintf("mandatory_phase%d", n),
		Model: c.model,
		Prompt: func(attempt int) string {
			return fmt.Sprintf("On %s %s, for a product of type %q, is the listing field %q required "+
				"for the listing to be complete and searchable? Answer only YES or NO.",
				req.Scope.Marketplace, req.Scope.Country, req.ProductType, field)
		},
		Validate: parseYesNo,
		Apply: func(v string) error {
			return record(field, v)
		},
	}
	if n == 1 {
		step.NeededReplies = c.budget.Phase1Replies
		step.MaxRetries = c.budget.Phase1MaxRetries
		step.ChooseBest = consensus.AllSameOrEmpty
		return step
	}
	step.NeededReplies = c.budget.Phase2Replies
	step.MaxRetries = c.budget.Phase2MaxRetries
	step.ChooseBest = consensus.MostFrequent
	step.OnLastFailure = func(_, networkCode, _ string) bool {
		if networkCode != "" {
			return false
		}
		// out of budget on invalid replies: settle as reviewed
		return record(field, "") == nil
	}
	return step
}

func parseYesNo(raw string) (string, error) {
	v := strings.ToUpper(strings.Trim(strings.TrimSpace(raw), ".!\"'"))
	switch v {
	case "YES", "NO":
		return v, nil
	}
	return "", fmt.Errorf("expected YES or NO, got %q", raw)
}

// SetManual records a manual override; mandatory=true adds, false removes.
func (c *Classifier) SetManual(ctx context.Context, productType string, field models.FieldID, mandatory bool) (*Decisions, error) {
	defer c.lock(productType)()

	d, err := c.store.Load(ctx, productType)
	if err != nil {
		return nil, err
	}
	if mandatory {
		d.ManualAdded.Add(string(field))
		d.ManualRemoved.Remove(string(field))
	} else {
		d.ManualRemoved.Add(string(field))
		d.ManualAdded.Remove(string(field))
	}
	return d, c.store.Save(ctx, productType, d)
}

// ClearManual drops any manual override of field.
func (c *Classifier) ClearManual(ctx context.Context, productType string, field models.FieldID) (*Decisions, error) {
	defer c.lock(productType)()

	d, err := c.store.Load(ctx, productType)
	if err != nil {
		return nil, err
	}
	d.ManualAdded.Remove(string(field))
	d.ManualRemoved.Remove(string(field))
	return d, c.store.Save(ctx, productType, d)
}

// SetPrevious records the mandatory set observed in a previous run.
func (c *Classifier) SetPrevious(ctx context.Context, productType string, fields []models.FieldID) (*Decisions, error) {
	defer c.lock(productType)()

	d, err := c.store.Load(ctx, productType)
	if err != nil {
		return nil, err
	}
	d.Previous = models.NewStringSet()
	for _, f := range fields {
		d.Previous.Add(string(f))
	}
	return d, c.store.Save(ctx, productType, d)
}
