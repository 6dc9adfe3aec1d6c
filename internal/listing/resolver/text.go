package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	apperrors "listing-workers/internal/common/errors"
	"listing-workers/internal/common/validation"
	"listing-workers/internal/listing/consensus"
	"listing-workers/internal/models"
)

const (
	defaultTitleLength       = 200
	defaultDescriptionLength = 2000
)

// textKind describes how one family of free-text fields is generated.
type textKind struct {
	name     string
	html     bool
	noParens bool
	limit    int
	reduce   func(limit int) consensus.Strategy
}

func shortest(int) consensus.Strategy { return consensus.Shortest }

func kindFor(job *Job) textKind {
	aliases := job.Source.Aliases
	switch {
	case aliases.Is(models.ConceptDescription, job.Field) || job.Field.Contains("description"):
		return textKind{name: "text", html: true, limit: defaultDescriptionLength, reduce: consensus.LongestUnder}
	case aliases.Is(models.ConceptColor, job.Field) || job.Field.Contains("color") || job.Field.Contains("colour"):
		return textKind{name: "text", noParens: true, reduce: shortest}
	}
	return textKind{name: "text", reduce: shortest}
}

func (k textKind) maxLength(job *Job) int {
	if n := job.MaxLength(); n > 0 {
		return n
	}
	return k.limit
}

func (k textKind) validator(limit int) consensus.Validator {
	return func(raw string) (string, error) {
		v, err := validation.DecodeValue(raw)
		if err != nil {
			return "", err
		}
		if v == "" {
			return "", errors.New("empty value")
		}
		if limit > 0 && utf8.RuneCountInString(v) > limit {
			return "", fmt.Errorf("%d characters exceeds the limit of %d", utf8.RuneCountInString(v), limit)
		}
		if k.html {
			if err := CheckHTML(v); err != nil {
				return "", err
			}
		} else if strings.ContainsAny(v, "<>") {
			return "", errors.New("markup is not allowed")
		}
		if k.noParens && strings.ContainsAny(v, "()") {
			return "", errors.New("parentheses are not allowed")
		}
		return v, nil
	}
}

// textGen translates or writes free text through the dispatcher.
type textGen struct {
	d Deps
}

func (t textGen) fill(ctx context.Context, job *Job, kind textKind) error {
	var steps []consensus.Step
	for _, g := range job.Pending(job.Groups()) {
		if v := job.Out.Lang(g.SKUs[0], job.Field); v != "" {
			assign(job, kind.name, g.SKUs, job.Field, v)
			continue
		}
		src := job.GroupValue(g)
		if src == "" && !job.IsMandatory(g) {
			continue
		}
		if src != "" && job.Source.Scope.SameLang(job.Target) {
			setLang(job, g.SKUs, job.Field, src)
			assign(job, kind.name, g.SKUs, job.Field, src)
			continue
		}
		if job.Flags().IsNoAI() {
			continue
		}
		steps = append(steps, t.step(job, g, src, kind))
	}
	return dispatchErrors(t.d.Dispatcher.Dispatch(ctx, steps))
}

func (t textGen) step(job *Job, g models.Group, src string, kind textKind) consensus.Step {
	limit := kind.maxLength(job)
	product := job.PromptContext(g)
	key := hashKey(strings.ToLower(job.Target.Lang), string(job.Field), src)
	if src == "" {
		key = hashKey(strings.ToLower(job.Target.Lang), string(job.Field), "", product)
	}

	return consensus.Step{
		Name:           kind.name,
		CacheNamespace: kind.name,
		CachingKey:     key,
		Model:          t.d.Model,
		Prompt: func(attempt int) string {
			return textPrompt(job, src, product, kind, limit, attempt)
		},
		Validate:      kind.validator(limit),
		NeededReplies: t.d.Text.Replies,
		MaxRetries:    t.d.Text.MaxRetries,
		ChooseBest:    kind.reduce(limit),
		Apply: func(v string) error {
			setLang(job, g.SKUs, job.Field, v)
			assign(job, kind.name, g.SKUs, job.Field, v)
			return nil
		},
	}
}

func textPrompt(job *Job, src, product string, kind textKind, limit, attempt int) string {
	var b strings.Builder
	from, to := job.Source.Scope, job.Target
	if src != "" {
		fmt.Fprintf(&b, "Translate the %s of a product listing from %s to %s for the %s marketplace in %s.\n",
			job.Field, from.Lang, to.Lang, to.Marketplace, to.Country)
		fmt.Fprintf(&b, "Source text: %q\n", src)
	} else {
		fmt.Fprintf(&b, "Write the %s of a product listing in %s for the %s marketplace in %s.\n",
			job.Field, to.Lang, to.Marketplace, to.Country)
	}
	if product != "" {
		fmt.Fprintf(&b, "Product: %s\n", product)
	}
	if limit > 0 {
		fmt.Fprintf(&b, "Use at most %d characters.\n", limit)
	}
	switch {
	case kind.html:
		b.WriteString("Only the HTML tags <p>, <br>, <b>, <ul> and <li> are allowed, without attributes.\n")
	default:
		b.WriteString("Do not use HTML.\n")
	}
	if kind.noParens {
		b.WriteString("Do not use parentheses.\n")
	}
	b.WriteString(`Reply with JSON only: {"value": "..."}`)
	if attempt > 0 {
		b.WriteString("\nYour previous reply was rejected; follow the format exactly.")
	}
	return b.String()
}

func setLang(job *Job, skus []models.SKU, field models.FieldID, v string) {
	for _, sku := range skus {
		job.Out.SetLang(sku, field, v)
	}
}

// dispatchErrors returns the most severe error of a dispatch.
func dispatchErrors(results []consensus.Dispatched) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return worst(errs)
}

// worst prefers run-fatal errors, then unclassified ones, then field errors.
func worst(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	for _, err := range errs {
		if apperrors.IsFatal(err) {
			return err
		}
	}
	for _, err := range errs {
		if !apperrors.IsFieldFatal(err) {
			return err
		}
	}
	return errs[0]
}

// ==========================
// Text and Title resolvers
// ==========================

// Text is the fallback resolver for every free-text field.
type Text struct {
	gen textGen
}

func NewText(d Deps) *Text { return &Text{gen: textGen{d: d}} }

func (t *Text) Name() string { return "text" }

func (t *Text) CanFill(*models.Attribute, string, models.FieldID) bool { return true }

func (t *Text) Fill(ctx context.Context, job *Job) error {
	return t.gen.fill(ctx, job, kindFor(job))
}

// Title translates listing titles keeping the longest reply under the limit.
type Title struct {
	gen textGen
}

func NewTitle(d Deps) *Title { return &Title{gen: textGen{d: d}} }

func (t *Title) Name() string { return "title" }

func (t *Title) CanFill(attr *models.Attribute, _ string, fieldFrom models.FieldID) bool {
	if fieldFrom.Contains("item_name") || fieldFrom.Contains("title") {
		return true
	}
	return attr != nil && strings.Contains(strings.ToLower(attr.Name), "title")
}

func (t *Title) Fill(ctx context.Context, job *Job) error {
	return t.gen.fill(ctx, job, textKind{
		name:   "title",
		limit:  defaultTitleLength,
		reduce: consensus.LongestUnder,
	})
}
