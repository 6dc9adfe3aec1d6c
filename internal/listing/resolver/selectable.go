package resolver

import (
	"context"
	"fmt"
	"strings"

	apperrors "listing-workers/internal/common/errors"
	"listing-workers/internal/listing/consensus"
	"listing-workers/internal/listing/equivalence"
	"listing-workers/internal/models"
)

// Selectable picks values of fields with a closed list of possible values.
// Within one locale it asks the completion service to choose; across locales
// it maps the source value through equivalence sets.
type Selectable struct {
	d Deps
}

func NewSelectable(d Deps) *Selectable { return &Selectable{d: d} }

func (s *Selectable) Name() string { return "selectable" }

func (s *Selectable) CanFill(attr *models.Attribute, _ string, _ models.FieldID) bool {
	return attr != nil && attr.HasPossibleValues()
}

func (s *Selectable) possible(job *Job, sku models.SKU) []string {
	if job.Attribute == nil {
		return nil
	}
	return job.Attribute.Possible(models.ValueScope{
		Marketplace: job.Target.Marketplace,
		Country:     job.Target.Country,
		Lang:        job.Target.Lang,
		Category:    models.Category(strings.ToLower(job.Source.ProductType(sku))),
	})
}

func (s *Selectable) Fill(ctx context.Context, job *Job) error {
	var (
		steps []consensus.Step
		errs  []error
	)
	sameLocale := job.Source.Scope.SameLocale(job.Target)
	mapped := make(map[string]string)

	for _, g := range job.Pending(job.Groups()) {
		rep := g.SKUs[0]
		possible := s.possible(job, rep)
		if len(possible) == 0 {
			errs = append(errs, apperrors.NewNoPossibleValueError(string(job.Field), job.Source.ProductType(rep)))
			continue
		}
		src := job.GroupValue(g)

		if job.Flags().IsPutFirstValue() || len(possible) == 1 {
			assign(job, s.Name(), g.SKUs, job.Field, possible[0])
			continue
		}
		if p, ok := matchPossible(src, possible); ok {
			assign(job, s.Name(), g.SKUs, job.Field, p)
			continue
		}
		if (src == "" && !job.IsMandatory(g)) || job.Flags().IsNoAI() {
			continue
		}

		if src != "" && !sameLocale && s.d.Equivalence != nil {
			memo := src + "\x00" + strings.Join(possible, "\x00")
			v, ok := mapped[memo]
			if !ok {
				var err error
				v, err = s.d.Equivalence.Resolve(ctx, job.Field, src, job.Source.Scope, job.Target, possible)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				mapped[memo] = v
			}
			assign(job, s.Name(), g.SKUs, job.Field, v)
			continue
		}
		steps = append(steps, s.choose(job, g, src, possible))
	}

	errs = append(errs, dispatchErrors(s.d.Dispatcher.Dispatch(ctx, steps)))
	return worst(compact(errs))
}

func (s *Selectable) choose(job *Job, g models.Group, src string, possible []string) consensus.Step {
	product := job.PromptContext(g)
	return consensus.TwoPhase(consensus.Step{
		Name:           s.Name(),
		CacheNamespace: s.Name(),
		CachingKey:     g.Key,
		Model:          s.d.Model,
		Prompt: func(int) string {
			var b strings.Builder
			fmt.Fprintf(&b, "Choose the value of the field %s for a product listing on %s %s (language %s).\n",
				job.Field, job.Target.Marketplace, job.Target.Country, job.Target.Lang)
			if src != "" {
				fmt.Fprintf(&b, "The seller entered: %q\n", src)
			}
			if product != "" {
				fmt.Fprintf(&b, "Product: %s\n", product)
			}
			fmt.Fprintf(&b, "Possible values:\n%s\n", strings.Join(possible, "\n"))
			fmt.Fprintf(&b, "Answer with exactly one value copied from the list, or %s if none fits.", equivalence.Unknown)
			return b.String()
		},
		Validate: func(raw string) (string, error) {
			reply := strings.Trim(strings.TrimSpace(raw), "\"'")
			if strings.EqualFold(reply, equivalence.Unknown) {
				return equivalence.Unknown, nil
			}
			if p, ok := matchPossible(reply, possible); ok {
				return p, nil
			}
			return "", fmt.Errorf("%q is not a possible value", reply)
		},
		Apply: func(v string) error {
			if v != equivalence.Unknown {
				assign(job, s.Name(), g.SKUs, job.Field, v)
			}
			return nil
		},
	}, s.d.Budget)
}

func matchPossible(v string, possible []string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	for _, p := range possible {
		if strings.EqualFold(p, v) {
			return p, true
		}
	}
	return "", false
}

func compact(errs []error) []error {
	out := errs[:0]
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}
