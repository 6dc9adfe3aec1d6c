// Package equivalence maps selectable values across languages using persisted
// equivalence sets, learning missing mappings from the completion service.
package equivalence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	apperrors "listing-workers/internal/common/errors"
	"listing-workers/internal/common/kvstore"
	"listing-workers/internal/common/logger"
	"listing-workers/internal/listing/consensus"
	"listing-workers/internal/models"
)

// Namespace is the store namespace holding one JSON set list per field.
const Namespace = "equivalences"

// Unknown is the reply meaning no possible value matches.
const Unknown = "UNKNOWN"

type Resolver struct {
	store  kvstore.Store
	runner *consensus.Runner
	budget consensus.PhaseBudget
	model  string
	logger logger.Logger

	mu   sync.Mutex
	sets map[models.FieldID][][]string
}

func New(store kvstore.Store, runner *consensus.Runner, budget consensus.PhaseBudget, model string, log logger.Logger) *Resolver {
	return &Resolver{
		store:  store,
		runner: runner,
		budget: budget,
		model:  model,
		logger: log,
		sets:   make(map[models.FieldID][][]string),
	}
}

// load must be called with mu held.
func (r *Resolver) load(ctx context.Context, field models.FieldID) ([][]string, error) {
	if sets, ok := r.sets[field]; ok {
		return sets, nil
	}
	raw, ok, err := r.store.Get(ctx, Namespace, string(field))
	if err != nil {
		return nil, apperrors.NewStoreError("equivalence read", err)
	}
	var sets [][]string
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &sets); err != nil {
			return nil, apperrors.NewStoreError("equivalence decode", err)
		}
	}
	r.sets[field] = sets
	return sets, nil
}

// Sets returns a copy of the field's equivalence sets.
func (r *Resolver) Sets(ctx context.Context, field models.FieldID) ([][]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sets, err := r.load(ctx, field)
	if err != nil {
		return nil, err
	}
	out := make([][]string, len(sets))
	for i, s := range sets {
		out[i] = append([]string(nil), s...)
	}
	return out, nil
}

// Equivalent returns the possible value sharing an equivalence set with value.
func (r *Resolver) Equivalent(ctx context.Context, field models.FieldID, value string, possible []string) (string, bool, error) {
	sets, err := r.Sets(ctx, field)
	if err != nil {
		return "", false, err
	}
	if p, ok := matchPossible(value, possible); ok {
		return p, true, nil
	}
	for _, set := range sets {
		if !containsFold(set, value) {
			continue
		}
		for _, member := range set {
			if p, ok := matchPossible(member, possible); ok {
				return p, true, nil
			}
		}
	}
	return "", false, nil
}

// HasEquivalent reports whether value's equivalence set intersects possible.
func (r *Resolver) HasEquivalent(ctx context.Context, field models.FieldID, value string, possible []string) (bool, error) {
	_, ok, err := r.Equivalent(ctx, field, value, possible)
	return ok, err
}

// Resolve returns the target value for value, asking the completion service
// for the missing counterpart when no recorded set reaches the possible
// values. The learned pair is merged and persisted.
func (r *Resolver) Resolve(ctx context.Context, field models.FieldID, value string, from, to models.Scope, possible []string) (string, error) {
	value = strings.TrimSpace(value)
	if p, ok, err := r.Equivalent(ctx, field, value, possible); err != nil || ok {
		return p, err
	}
	if len(possible) == 0 {
		return "", apperrors.NewNoEquivalentValueError(string(field), value)
	}

	var learned string
	step := consensus.TwoPhase(consensus.Step{
		Name:  "equivalence",
		Model: r.model,
		Prompt: func(int) string {
			return fmt.Sprintf("A product listing in %s (language %s) has the value %q for the field %s.\n"+
				"Which value of this list is its equivalent in %s (language %s)?\n%s\n"+
				"Answer with exactly one value copied from the list, or %s if none matches.",
				from.Country, from.Lang, value, field, to.Country, to.Lang, strings.Join(possible, "\n"), Unknown)
		},
		Validate: func(raw string) (string, error) {
			reply := strings.Trim(strings.TrimSpace(raw), "\"'")
			if strings.EqualFold(reply, Unknown) {
				return Unknown, nil
			}
			if p, ok := matchPossible(reply, possible); ok {
				return p, nil
			}
			return "", fmt.Errorf("%q is not a possible value", reply)
		},
		Apply: func(v string) error {
			learned = v
			if v == Unknown {
				return nil
			}
			return r.Merge(ctx, field, value, v)
		},
	}, r.budget)

	res, err := r.runner.Run(ctx, step)
	if err != nil {
		return "", err
	}
	if !res.HasValue() || learned == Unknown || learned == "" {
		return "", apperrors.NewNoEquivalentValueError(string(field), value)
	}
	r.logger.Info("learned equivalence", map[string]interface{}{
		"field":  string(field),
		"source": value,
		"target": learned,
	})
	return learned, nil
}

// Merge records that a and b are equivalent. Every set containing either is
// folded into one sorted, deduplicated set; nothing is removed.
func (r *Resolver) Merge(ctx context.Context, field models.FieldID, a, b string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sets, err := r.load(ctx, field)
	if err != nil {
		return err
	}

	merged := models.NewStringSet()
	var rest [][]string
	for _, set := range sets {
		if containsFold(set, a) || containsFold(set, b) {
			merged.Add(set...)
			continue
		}
		rest = append(rest, set)
	}
	for _, v := range []string{a, b} {
		if v = strings.TrimSpace(v); v != "" && !containsFold(merged.Sorted(), v) {
			merged.Add(v)
		}
	}
	next := append(rest, merged.Sorted())

	data, err := json.Marshal(next)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if err := r.store.Set(ctx, Namespace, string(field), string(data)); err != nil {
		return apperrors.NewStoreError("equivalence write", err)
	}
	r.sets[field] = next
	return nil
}

func containsFold(values []string, v string) bool {
	for _, x := range values {
		if strings.EqualFold(strings.TrimSpace(x), strings.TrimSpace(v)) {
			return true
		}
	}
	return false
}

func matchPossible(v string, possible []string) (string, bool) {
	for _, p := range possible {
		if strings.EqualFold(strings.TrimSpace(p), strings.TrimSpace(v)) {
			return p, true
		}
	}
	return "", false
}
