// Package pipeline resolves every field of a target template from a source
// template.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "listing-workers/internal/common/errors"
	"listing-workers/internal/common/logger"
	"listing-workers/internal/common/metrics"
	"listing-workers/internal/common/observability"
	"listing-workers/internal/listing/ledger"
	"listing-workers/internal/listing/mandatory"
	"listing-workers/internal/listing/resolver"
	"listing-workers/internal/models"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Request is one template resolution run.
type Request struct {
	Source *models.Template
	Target models.Scope
	// Fields are the target template columns, in output order.
	Fields     []models.FieldID
	Attributes *models.AttributeTable
	// LangSeed holds language-common values of an earlier run in the same
	// language; they are reused without AI calls.
	LangSeed models.ValueMap
	// NoAI restricts mandatory classification to persisted evidence.
	NoAI bool
}

// Result is the output of a run.
type Result struct {
	RunID     string
	Output    models.ValueMap
	Lang      models.ValueMap
	Failures  []ledger.Failure
	Mandatory map[string][]string
}

// Pipeline wires the resolver registry to the mandatory classifier and the
// failure ledger.
type Pipeline struct {
	registry   *resolver.Registry
	classifier *mandatory.Classifier
	store      ledger.Store
	notifier   ledger.Notifier
	obs        *observability.Observability
	logger     logger.Logger
}

type Option func(*Pipeline)

func WithClassifier(c *mandatory.Classifier) Option {
	return func(p *Pipeline) { p.classifier = c }
}

func WithLedger(store ledger.Store, notifier ledger.Notifier) Option {
	return func(p *Pipeline) {
		p.store = store
		p.notifier = notifier
	}
}

func WithObservability(o *observability.Observability) Option {
	return func(p *Pipeline) { p.obs = o }
}

func New(registry *resolver.Registry, log logger.Logger, opts ...Option) *Pipeline {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	p := &Pipeline{registry: registry, logger: log}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// run carries the per-run state shared by field jobs.
type run struct {
	req       Request
	out       *resolver.Output
	ledger    *ledger.Ledger
	mandatory map[string]models.StringSet
	context   map[models.SKU]string
	logger    logger.Logger
}

// Run resolves all target fields. Field-level failures land in the ledger;
// template integrity and resolver conflicts abort the run.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Source == nil {
		return nil, apperrors.NewInvalidJobInputError("source template is required")
	}
	if req.Attributes == nil {
		req.Attributes = models.NewAttributeTable(nil)
	}
	start := time.Now()
	runID := uuid.New().String()

	ctx, span := p.obs.Tracer().Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("source", req.Source.Scope.Key()),
		attribute.String("target", req.Target.Key()),
	))
	defer span.End()

	r := &run{
		req:    req,
		out:    resolver.NewOutput(),
		ledger: ledger.New(runID, req.Target),
		logger: p.logger.WithFields(map[string]interface{}{
			"runId":  runID,
			"target": req.Target.Key(),
		}),
	}
	r.out.SeedLang(req.LangSeed)
	r.context = buildContext(req)

	r.logger.Info("run started", map[string]interface{}{
		"source": req.Source.Scope.Key(),
		"skus":   req.Source.Len(),
		"fields": len(req.Fields),
	})

	var err error
	if r.mandatory, err = p.mandatorySets(ctx, r); err != nil {
		return p.abort(ctx, span, r, err)
	}

	var deferred []*fieldJob
	for _, field := range req.Fields {
		if r.identity(field) {
			continue
		}
		fj, err := p.prepare(r, field)
		if err != nil {
			if apperrors.IsFatal(err) {
				return p.abort(ctx, span, r, err)
			}
			r.ledger.Record("", field, "", err)
			continue
		}
		err = p.fill(ctx, fj)
		if errors.Is(err, resolver.ErrDeferred) {
			deferred = append(deferred, fj)
			continue
		}
		if err := p.handle(r, fj, err); err != nil {
			return p.abort(ctx, span, r, err)
		}
	}

	for _, fj := range deferred {
		fj.job.Retry = true
		err := p.fill(ctx, fj)
		if errors.Is(err, resolver.ErrDeferred) {
			err = apperrors.NewValidationError(fj.resolver.Name(), "field deferred twice")
		}
		if err := p.handle(r, fj, err); err != nil {
			return p.abort(ctx, span, r, err)
		}
	}

	res := &Result{
		RunID:     runID,
		Output:    r.out.Final(),
		Lang:      r.out.LangMap(),
		Failures:  r.ledger.Failures(),
		Mandatory: make(map[string][]string, len(r.mandatory)),
	}
	for pt, set := range r.mandatory {
		res.Mandatory[pt] = set.Sorted()
	}

	status := "success"
	if len(res.Failures) > 0 {
		status = "partial"
	}
	metrics.RunDuration.WithLabelValues(req.Target.Marketplace, req.Target.Country).Observe(time.Since(start).Seconds())
	p.obs.RecordRun(ctx, status)
	span.SetAttributes(attribute.Int("failures", len(res.Failures)))

	r.logger.Info("run finished", map[string]interface{}{
		"status":   status,
		"failures": len(res.Failures),
		"duration": time.Since(start).String(),
	})

	if err := r.ledger.Flush(ctx, p.store, p.notifier); err != nil {
		r.logger.Error("ledger flush failed", map[string]interface{}{"error": err.Error()})
		return res, err
	}
	return res, nil
}

func (p *Pipeline) abort(ctx context.Context, span trace.Span, r *run, err error) (*Result, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	p.obs.RecordRun(ctx, "aborted")
	r.logger.Error("run aborted", map[string]interface{}{
		"error":     err.Error(),
		"errorCode": string(apperrors.CodeOf(err)),
	})
	return nil, err
}

// handle books a field error. It returns the error when the run must stop.
func (p *Pipeline) handle(r *run, fj *fieldJob, err error) error {
	if err == nil {
		return nil
	}
	if apperrors.IsFatal(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	r.logger.Warn("field unresolved", map[string]interface{}{
		"field":     string(fj.job.Field),
		"resolver":  fj.resolver.Name(),
		"errorCode": string(apperrors.CodeOf(err)),
		"error":     err.Error(),
	})
	r.ledger.Record("", fj.job.Field, fj.resolver.Name(), err)
	return nil
}

type fieldJob struct {
	resolver resolver.Resolver
	job      *resolver.Job
}

func (p *Pipeline) prepare(r *run, field models.FieldID) (*fieldJob, error) {
	src := r.req.Source
	attr, _ := r.req.Attributes.Get(r.req.Target.Marketplace, field)

	sourceField := field
	if attr != nil {
		if id, ok := attr.FieldFor(src.Scope.Marketplace); ok {
			sourceField = id
		}
	}

	res, err := p.registry.Pick(attr, src.Scope.Marketplace, sourceField)
	if err != nil {
		return nil, err
	}

	return &fieldJob{
		resolver: res,
		job: &resolver.Job{
			Source:       src,
			Target:       r.req.Target,
			Field:        field,
			SourceField:  sourceField,
			Attribute:    attr,
			Context:      r.context,
			Mandatory:    r.isMandatory,
			TargetFields: r.req.Fields,
			Out:          r.out,
		},
	}, nil
}

func (p *Pipeline) fill(ctx context.Context, fj *fieldJob) error {
	start := time.Now()
	ctx, span := p.obs.Tracer().Start(ctx, "pipeline.field", trace.WithAttributes(
		attribute.String("field", string(fj.job.Field)),
		attribute.String("resolver", fj.resolver.Name()),
		attribute.Bool("retry", fj.job.Retry),
	))
	defer span.End()

	err := fj.resolver.Fill(ctx, fj.job)
	if err != nil && !errors.Is(err, resolver.ErrDeferred) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	p.obs.RecordFieldDuration(ctx, fj.resolver.Name(), time.Since(start))
	return err
}

// identity writes SKU and parent columns, which are never resolved.
func (r *run) identity(field models.FieldID) bool {
	src := r.req.Source
	switch {
	case src.Aliases.Is(models.ConceptSKU, field):
		for _, rec := range src.Records() {
			r.out.Set(rec.SKU, field, string(rec.SKU))
		}
	case src.Aliases.Is(models.ConceptParentSKU, field):
		for _, rec := range src.Records() {
			if rec.IsChild() {
				r.out.Set(rec.SKU, field, string(rec.Parent))
			}
		}
	default:
		return false
	}
	return true
}

func (r *run) isMandatory(sku models.SKU, field models.FieldID) bool {
	set, ok := r.mandatory[strings.ToLower(r.req.Source.ProductType(sku))]
	return ok && set.Has(string(field))
}

// mandatorySets combines registry flags with the classifier's decisions for
// each product type of the source.
func (p *Pipeline) mandatorySets(ctx context.Context, r *run) (map[string]models.StringSet, error) {
	req := r.req
	flagged := models.NewStringSet()
	for _, f := range req.Fields {
		if attr, ok := req.Attributes.Get(req.Target.Marketplace, f); ok && attr.Flags.IsMandatoryFor(req.Target.Marketplace) {
			flagged.Add(string(f))
		}
	}

	sets := make(map[string]models.StringSet)
	for _, pt := range req.Source.ProductTypes() {
		key := strings.ToLower(pt)
		if p.classifier == nil {
			sets[key] = flagged.Clone()
			continue
		}
		d, err := p.classifier.Classify(ctx, mandatory.Request{
			ProductType: key,
			Scope:       req.Target,
			Fields:      req.Fields,
			Current:     flagged,
			Previous:    previousEvidence(req, pt),
			NoAI:        req.NoAI,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			r.ledger.Record("", models.FieldID("mandatory:"+key), "mandatory", err)
			if d == nil {
				sets[key] = flagged.Clone()
				continue
			}
		}
		sets[key] = d.Effective()
	}
	return sets, nil
}

// previousEvidence lists fields flagged as readable from previous templates
// that every source record of the product type fills.
func previousEvidence(req Request, productType string) models.StringSet {
	out := models.NewStringSet()
	for _, f := range req.Fields {
		attr, ok := req.Attributes.Get(req.Target.Marketplace, f)
		if !ok || !attr.Flags.Has(models.ReadablePreviousTemplates) {
			continue
		}
		sourceField := f
		if id, ok := attr.FieldFor(req.Source.Scope.Marketplace); ok {
			sourceField = id
		}
		filled, seen := true, false
		for _, rec := range req.Source.Records() {
			if req.Source.ProductType(rec.SKU) != productType {
				continue
			}
			seen = true
			if strings.TrimSpace(rec.Values[sourceField]) == "" {
				filled = false
				break
			}
		}
		if seen && filled {
			out.Add(string(f))
		}
	}
	return out
}

// buildContext gives each SKU a short product description for prompts: the
// title, product type and every field flagged for custom instructions.
func buildContext(req Request) map[models.SKU]string {
	var extra []models.FieldID
	for _, attr := range req.Attributes.All() {
		if !attr.Flags.IsForCustomInstructions() {
			continue
		}
		if id, ok := attr.FieldFor(req.Source.Scope.Marketplace); ok {
			extra = append(extra, id)
		}
	}

	out := make(map[models.SKU]string, req.Source.Len())
	for _, rec := range req.Source.Records() {
		var parts []string
		if _, title := req.Source.ConceptValue(rec.SKU, models.ConceptTitle); title != "" {
			parts = append(parts, title)
		}
		if pt := req.Source.ProductType(rec.SKU); pt != "" {
			parts = append(parts, "type: "+pt)
		}
		for _, id := range extra {
			if v := strings.TrimSpace(rec.Values[id]); v != "" {
				parts = append(parts, fmt.Sprintf("%s: %s", id, v))
			}
		}
		out[rec.SKU] = strings.Join(parts, "; ")
	}
	return out
}
