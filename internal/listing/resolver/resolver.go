// Package resolver holds the per-field resolvers and the registry that picks
// exactly one of them for each target field.
package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"sync"

	apperrors "listing-workers/internal/common/errors"
	"listing-workers/internal/common/metrics"
	"listing-workers/internal/models"
)

// ErrDeferred asks the pipeline to retry the field once every other field ran.
var ErrDeferred = errors.New("resolver: field deferred")

// ErrNoResolver means no registered resolver claims the field.
var ErrNoResolver = errors.New("resolver: no resolver claims field")

// ErrAmbiguousResolver means two resolvers of the same priority claim a field.
var ErrAmbiguousResolver = errors.New("resolver: ambiguous resolvers")

// Resolver fills one target field for every SKU of a template.
type Resolver interface {
	Name() string
	CanFill(attr *models.Attribute, marketplaceFrom string, fieldFrom models.FieldID) bool
	Fill(ctx context.Context, job *Job) error
}

// Job is the input of one Fill call.
type Job struct {
	Source      *models.Template
	Target      models.Scope
	Field       models.FieldID
	SourceField models.FieldID
	Attribute   *models.Attribute
	// Context holds per-SKU product context for prompts.
	Context map[models.SKU]string
	// Mandatory reports whether the field must be filled for a SKU.
	Mandatory func(sku models.SKU, field models.FieldID) bool
	// TargetFields are the columns of the target template; nil means unknown.
	TargetFields []models.FieldID
	Out          *Output
	// Retry is set on the single second pass of a deferred field.
	Retry bool
}

func (j *Job) Flags() models.FlagSet {
	if j.Attribute == nil {
		return 0
	}
	return j.Attribute.Flags
}

func (j *Job) MaxLength() int {
	if j.Attribute == nil {
		return 0
	}
	return j.Attribute.MaxLength
}

// SourceValue returns the trimmed source value of the job's field.
func (j *Job) SourceValue(sku models.SKU) string {
	if j.SourceField == "" {
		return ""
	}
	return strings.TrimSpace(j.Source.Value(sku, j.SourceField))
}

// GroupValue returns the first non-empty source value of a group.
func (j *Job) GroupValue(g models.Group) string {
	for _, sku := range g.SKUs {
		if v := j.SourceValue(sku); v != "" {
			return v
		}
	}
	return ""
}

// Groups partitions SKUs by the field's sharing flags.
func (j *Job) Groups() []models.Group {
	return models.GroupSKUs(j.Source, j.Target, j.Field, j.Flags())
}

// Pending drops groups whose every SKU already has a value.
func (j *Job) Pending(groups []models.Group) []models.Group {
	var out []models.Group
	for _, g := range groups {
		for _, sku := range g.SKUs {
			if !j.Out.Has(sku, j.Field) {
				out = append(out, g)
				break
			}
		}
	}
	return out
}

// IsMandatory reports whether any SKU of the group requires the field.
func (j *Job) IsMandatory(g models.Group) bool {
	if j.Mandatory == nil {
		return false
	}
	for _, sku := range g.SKUs {
		if j.Mandatory(sku, j.Field) {
			return true
		}
	}
	return false
}

func (j *Job) PromptContext(g models.Group) string {
	if len(g.SKUs) == 0 || j.Context == nil {
		return ""
	}
	return j.Context[g.SKUs[0]]
}

// Output collects resolved values. Lang holds values translated to the target
// language before country localization; Final holds the output cells.
type Output struct {
	mu    sync.RWMutex
	lang  models.ValueMap
	final models.ValueMap
}

func NewOutput() *Output {
	return &Output{lang: models.ValueMap{}, final: models.ValueMap{}}
}

func (o *Output) Get(sku models.SKU, field models.FieldID) string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.final.Get(sku, field)
}

func (o *Output) Has(sku models.SKU, field models.FieldID) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.final.Has(sku, field)
}

// Set writes a final value unless the cell is already filled. It reports
// whether the value was written.
func (o *Output) Set(sku models.SKU, field models.FieldID, value string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.final.Has(sku, field) || strings.TrimSpace(value) == "" {
		return false
	}
	o.final.Set(sku, field, value)
	return true
}

func (o *Output) Lang(sku models.SKU, field models.FieldID) string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lang.Get(sku, field)
}

func (o *Output) SetLang(sku models.SKU, field models.FieldID, value string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lang.Set(sku, field, value)
}

// SeedLang preloads language-common values from a previous country.
func (o *Output) SeedLang(values models.ValueMap) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for sku, row := range values {
		for f, v := range row {
			o.lang.Set(sku, f, v)
		}
	}
}

// Final returns a copy of the output cells.
func (o *Output) Final() models.ValueMap {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.final.Clone()
}

// LangMap returns a copy of the language-common values.
func (o *Output) LangMap() models.ValueMap {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lang.Clone()
}

// ConceptValue returns the first filled alias of a concept for a SKU.
func (o *Output) ConceptValue(aliases *models.AliasTable, sku models.SKU, c models.Concept) string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, id := range aliases.Aliases(c) {
		if v := o.final.Get(sku, id); strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// assign writes value to every SKU of skus and counts written cells.
func assign(job *Job, resolver string, skus []models.SKU, field models.FieldID, value string) int {
	n := 0
	for _, sku := range skus {
		if job.Out.Set(sku, field, value) {
			n++
		}
	}
	if n > 0 {
		metrics.CellsResolved.WithLabelValues(resolver).Add(float64(n))
	}
	return n
}

func hashKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:16])
}

// ==========================
// Registry
// ==========================

type entry struct {
	priority int
	resolver Resolver
}

// Registry keeps resolvers in priority order, lowest value first.
type Registry struct {
	entries []entry
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(priority int, res Resolver) {
	r.entries = append(r.entries, entry{priority: priority, resolver: res})
	sort.SliceStable(r.entries, func(i, j int) bool { return r.entries[i].priority < r.entries[j].priority })
}

// Names lists resolvers in priority order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.resolver.Name()
	}
	return out
}

type conflictError struct {
	*apperrors.StandardError
}

func (e conflictError) Is(target error) bool { return target == ErrAmbiguousResolver }
func (e conflictError) Unwrap() error        { return e.StandardError }

// Pick returns the highest-priority resolver claiming the field.
func (r *Registry) Pick(attr *models.Attribute, marketplaceFrom string, fieldFrom models.FieldID) (Resolver, error) {
	for i := 0; i < len(r.entries); {
		p := r.entries[i].priority
		var claimants []Resolver
		for ; i < len(r.entries) && r.entries[i].priority == p; i++ {
			if r.entries[i].resolver.CanFill(attr, marketplaceFrom, fieldFrom) {
				claimants = append(claimants, r.entries[i].resolver)
			}
		}
		switch len(claimants) {
		case 0:
			continue
		case 1:
			return claimants[0], nil
		default:
			names := make([]string, len(claimants))
			for k, c := range claimants {
				names[k] = c.Name()
			}
			return nil, conflictError{apperrors.NewResolverConflictError(string(fieldFrom), names...)}
		}
	}
	return nil, ErrNoResolver
}
