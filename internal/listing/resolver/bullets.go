package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"listing-workers/internal/common/validation"
	"listing-workers/internal/listing/consensus"
	"listing-workers/internal/models"
)

// BulletPoints fills the five bullet point fields of a record in one query.
type BulletPoints struct {
	d Deps
}

func NewBulletPoints(d Deps) *BulletPoints { return &BulletPoints{d: d} }

func (b *BulletPoints) Name() string { return "bullet_points" }

func (b *BulletPoints) CanFill(attr *models.Attribute, _ string, fieldFrom models.FieldID) bool {
	if fieldFrom.Contains("bullet_point") {
		return true
	}
	return attr != nil && strings.Contains(strings.ToLower(attr.Name), "bullet")
}

// bulletCount is the number of bullet points every listing is written with.
const bulletCount = 5

// family returns the sibling bullet fields written in the same schema as
// field, limited to the columns the target template has.
func family(aliases *models.AliasTable, field models.FieldID, target []models.FieldID) []models.FieldID {
	structured := strings.Contains(string(field), "#")
	var out []models.FieldID
	found := false
	for _, id := range aliases.Aliases(models.ConceptBulletPoint) {
		if strings.Contains(string(id), "#") != structured {
			continue
		}
		out = append(out, id)
		if id == field {
			found = true
		}
	}
	if !found {
		return []models.FieldID{field}
	}
	if len(target) == 0 {
		return out
	}
	present := make(map[models.FieldID]bool, len(target))
	for _, id := range target {
		present[id] = true
	}
	kept := out[:0]
	for _, id := range out {
		if id == field || present[id] {
			kept = append(kept, id)
		}
	}
	return kept
}

// sourceBullets collects the non-empty bullets of the group's first record
// that has any.
func sourceBullets(job *Job, g models.Group) []string {
	for _, sku := range g.SKUs {
		rec, ok := job.Source.Record(sku)
		if !ok {
			continue
		}
		var out []string
		for _, id := range job.Source.Aliases.Aliases(models.ConceptBulletPoint) {
			if v := strings.TrimSpace(rec.Values[id]); v != "" {
				out = append(out, v)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func (b *BulletPoints) Fill(ctx context.Context, job *Job) error {
	fields := family(job.Source.Aliases, job.Field, job.TargetFields)
	var steps []consensus.Step

	for _, g := range job.Pending(job.Groups()) {
		src := sourceBullets(job, g)
		if len(src) == 0 && !job.IsMandatory(g) {
			continue
		}
		if len(src) > 0 && job.Source.Scope.SameLang(job.Target) {
			for i, f := range fields {
				if i < len(src) {
					assign(job, b.Name(), g.SKUs, f, src[i])
				}
			}
			continue
		}
		if job.Flags().IsNoAI() {
			continue
		}
		steps = append(steps, b.step(job, g, fields, src))
	}
	return dispatchErrors(b.d.Dispatcher.Dispatch(ctx, steps))
}

func (b *BulletPoints) step(job *Job, g models.Group, fields []models.FieldID, src []string) consensus.Step {
	n := bulletCount
	limit := job.MaxLength()
	product := job.PromptContext(g)

	return consensus.Step{
		Name:           b.Name(),
		CacheNamespace: b.Name(),
		CachingKey:     hashKey(strings.ToLower(job.Target.Lang), fmt.Sprint(n), strings.Join(src, "\n"), product),
		Model:          b.d.Model,
		Prompt: func(attempt int) string {
			var p strings.Builder
			fmt.Fprintf(&p, "Write exactly %d bullet points in %s for a product listing on %s %s.\n",
				n, job.Target.Lang, job.Target.Marketplace, job.Target.Country)
			if len(src) > 0 {
				fmt.Fprintf(&p, "Translate and adapt these bullet points written in %s:\n- %s\n",
					job.Source.Scope.Lang, strings.Join(src, "\n- "))
			}
			if product != "" {
				fmt.Fprintf(&p, "Product: %s\n", product)
			}
			if limit > 0 {
				fmt.Fprintf(&p, "Each bullet point has at most %d characters.\n", limit)
			}
			p.WriteString("Do not use HTML. Reply with a JSON array of strings only.")
			if attempt > 0 {
				fmt.Fprintf(&p, "\nYour previous reply was rejected; the array must hold exactly %d non-empty strings.", n)
			}
			return p.String()
		},
		Validate: func(raw string) (string, error) {
			items, err := validation.DecodeStrings(raw, n)
			if err != nil {
				return "", err
			}
			for i, it := range items {
				if limit > 0 && utf8.RuneCountInString(it) > limit {
					return "", fmt.Errorf("bullet %d exceeds %d characters", i+1, limit)
				}
				if strings.ContainsAny(it, "<>") {
					return "", errors.New("markup is not allowed")
				}
			}
			data, err := json.Marshal(items)
			return string(data), err
		},
		NeededReplies: 1,
		MaxRetries:    b.d.Text.MaxRetries,
		ChooseBest:    consensus.MostFrequent,
		Apply: func(v string) error {
			var items []string
			if err := json.Unmarshal([]byte(v), &items); err != nil {
				return err
			}
			for i, f := range fields {
				if i < len(items) {
					setLang(job, g.SKUs, f, items[i])
					assign(job, b.Name(), g.SKUs, f, items[i])
				}
			}
			return nil
		},
	}
}
