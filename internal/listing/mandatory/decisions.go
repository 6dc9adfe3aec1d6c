// Package mandatory decides, per product type, which fields must always be
// filled.
package mandatory

import (
	"context"
	"sync"

	apperrors "listing-workers/internal/common/errors"
	"listing-workers/internal/common/kvstore"
	"listing-workers/internal/models"
)

// Namespace is the store namespace of persisted decisions.
const Namespace = "mandatory"

// Decisions are the mandatory-field sets of one product type.
type Decisions struct {
	Current       models.StringSet
	Previous      models.StringSet
	AIAdded       models.StringSet
	AIRemoved     models.StringSet
	ManualAdded   models.StringSet
	ManualRemoved models.StringSet
	Reviewed      models.StringSet
}

func NewDecisions() *Decisions {
	return &Decisions{
		Current:       models.NewStringSet(),
		Previous:      models.NewStringSet(),
		AIAdded:       models.NewStringSet(),
		AIRemoved:     models.NewStringSet(),
		ManualAdded:   models.NewStringSet(),
		ManualRemoved: models.NewStringSet(),
		Reviewed:      models.NewStringSet(),
	}
}

// Effective combines the sets. A non-empty previous-run set replaces the
// current template set, minus what the AI removed; manual overrides win.
func (d *Decisions) Effective() models.StringSet {
	base := d.Current
	if len(d.Previous) > 0 {
		base = d.Previous.Minus(d.AIRemoved)
	}
	return base.Union(d.AIAdded).Minus(d.ManualRemoved).Union(d.ManualAdded)
}

// IsMandatory reports whether field is in the effective set.
func (d *Decisions) IsMandatory(field models.FieldID) bool {
	return d.Effective().Has(string(field))
}

// recordAI stores an AI verdict and marks the field reviewed.
func (d *Decisions) recordAI(field string, mandatory bool) {
	if mandatory {
		d.AIAdded.Add(field)
		d.AIRemoved.Remove(field)
	} else {
		d.AIRemoved.Add(field)
		d.AIAdded.Remove(field)
	}
	d.Reviewed.Add(field)
}

func (d *Decisions) clone() *Decisions {
	return &Decisions{
		Current:       d.Current.Clone(),
		Previous:      d.Previous.Clone(),
		AIAdded:       d.AIAdded.Clone(),
		AIRemoved:     d.AIRemoved.Clone(),
		ManualAdded:   d.ManualAdded.Clone(),
		ManualRemoved: d.ManualRemoved.Clone(),
		Reviewed:      d.Reviewed.Clone(),
	}
}

// Store persists decisions per product type. The current template set is
// never stored; it is recomputed from each template.
type Store struct {
	kv kvstore.Store
	mu sync.Mutex
}

func NewStore(kv kvstore.Store) *Store {
	return &Store{kv: kv}
}

type persisted struct {
	key string
	get func(*Decisions) *models.StringSet
}

var persistedSets = []persisted{
	{"reviewed", func(d *Decisions) *models.StringSet { return &d.Reviewed }},
	{"ai_added", func(d *Decisions) *models.StringSet { return &d.AIAdded }},
	{"ai_removed", func(d *Decisions) *models.StringSet { return &d.AIRemoved }},
	{"manual_added", func(d *Decisions) *models.StringSet { return &d.ManualAdded }},
	{"manual_removed", func(d *Decisions) *models.StringSet { return &d.ManualRemoved }},
	{"previous", func(d *Decisions) *models.StringSet { return &d.Previous }},
}

func storeKey(productType, set string) string {
	return kvstore.Key(productType, set)
}

// Load reads the persisted sets of a product type.
func (s *Store) Load(ctx context.Context, productType string) (*Decisions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := NewDecisions()
	for _, p := range persistedSets {
		values, err := s.kv.GetList(ctx, Namespace, storeKey(productType, p.key))
		if err != nil {
			return nil, apperrors.NewStoreError("mandatory read", err)
		}
		*p.get(d) = models.NewStringSet(values...)
	}
	return d, nil
}

// Save writes every persisted set of a product type.
func (s *Store) Save(ctx context.Context, productType string, d *Decisions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range persistedSets {
		if err := s.kv.SetList(ctx, Namespace, storeKey(productType, p.key), (*p.get(d)).Sorted()); err != nil {
			return apperrors.NewStoreError("mandatory write", err)
		}
	}
	return s.kv.Sync(ctx)
}
