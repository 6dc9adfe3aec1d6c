package resolver

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"listing-workers/internal/listing/consensus"
	"listing-workers/internal/models"
)

const defaultKeywordsLength = 250

// Keywords builds search keywords from the target title and bullet points.
// It defers until the title of every group is resolved.
type Keywords struct {
	gen textGen
}

func NewKeywords(d Deps) *Keywords { return &Keywords{gen: textGen{d: d}} }

func (k *Keywords) Name() string { return "keywords" }

func (k *Keywords) CanFill(attr *models.Attribute, _ string, fieldFrom models.FieldID) bool {
	if fieldFrom.Contains("keyword") {
		return true
	}
	return attr != nil && strings.Contains(strings.ToLower(attr.Name), "keyword")
}

func (k *Keywords) Fill(ctx context.Context, job *Job) error {
	groups := job.Pending(job.Groups())
	aliases := job.Source.Aliases
	limit := job.MaxLength()
	if limit <= 0 {
		limit = defaultKeywordsLength
	}

	if job.Source.Scope.SameLang(job.Target) {
		for _, g := range groups {
			if v := job.GroupValue(g); v != "" {
				assign(job, k.Name(), g.SKUs, job.Field, v)
			}
		}
		return nil
	}

	if !job.Retry {
		for _, g := range groups {
			if job.Out.ConceptValue(aliases, g.SKUs[0], models.ConceptTitle) == "" {
				return ErrDeferred
			}
		}
	}

	var untitled []models.Group
	for _, g := range groups {
		title := job.Out.ConceptValue(aliases, g.SKUs[0], models.ConceptTitle)
		if title == "" {
			untitled = append(untitled, g)
			continue
		}
		parts := []string{title}
		for _, id := range aliases.Aliases(models.ConceptBulletPoint) {
			if v := job.Out.Get(g.SKUs[0], id); v != "" {
				parts = append(parts, v)
			}
		}
		if kw := DeriveKeywords(parts, limit); kw != "" {
			assign(job, k.Name(), g.SKUs, job.Field, kw)
		}
	}
	if len(untitled) == 0 {
		return nil
	}

	// no title to derive from: translate the source keywords instead
	sub := *job
	sub.Retry = true
	var steps []consensus.Step
	kind := textKind{name: k.Name(), limit: limit, reduce: consensus.LongestUnder}
	for _, g := range untitled {
		src := job.GroupValue(g)
		if src == "" || job.Flags().IsNoAI() {
			continue
		}
		steps = append(steps, k.gen.step(&sub, g, src, kind))
	}
	return dispatchErrors(k.gen.d.Dispatcher.Dispatch(ctx, steps))
}

// DeriveKeywords lowercases the words of parts, drops words shorter than
// three letters and duplicates, and joins them up to limit characters.
func DeriveKeywords(parts []string, limit int) string {
	seen := make(map[string]bool)
	var b strings.Builder
	for _, part := range parts {
		words := strings.FieldsFunc(strings.ToLower(part), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
		})
		for _, w := range words {
			w = strings.Trim(w, "-")
			if utf8.RuneCountInString(w) < 3 || seen[w] {
				continue
			}
			extra := utf8.RuneCountInString(w)
			if b.Len() > 0 {
				extra++
			}
			if limit > 0 && utf8.RuneCountInString(b.String())+extra > limit {
				return b.String()
			}
			seen[w] = true
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(w)
		}
	}
	return b.String()
}
