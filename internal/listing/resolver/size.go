package resolver

import (
	"context"

	"listing-workers/internal/common/logger"
	"listing-workers/internal/listing/sizing"
	"listing-workers/internal/models"
)

// Size converts sizes and measurements between countries.
type Size struct {
	engine     *sizing.Engine
	categories *sizing.CategoryClassifier
	logger     logger.Logger
}

func NewSize(engine *sizing.Engine, categories *sizing.CategoryClassifier, log logger.Logger) *Size {
	if engine == nil {
		engine = sizing.NewEngine(nil)
	}
	return &Size{engine: engine, categories: categories, logger: log}
}

func (s *Size) Name() string { return "size" }

func (s *Size) CanFill(attr *models.Attribute, _ string, _ models.FieldID) bool {
	return attr != nil && attr.Flags.IsSize()
}

func (s *Size) category(ctx context.Context, productType string) (models.Category, error) {
	if s.categories == nil {
		return models.CategoryOther, nil
	}
	return s.categories.Classify(ctx, productType)
}

func (s *Size) Fill(ctx context.Context, job *Job) error {
	known := make(map[string]models.Category)

	for _, g := range job.Pending(job.Groups()) {
		for _, sku := range g.SKUs {
			value := job.SourceValue(sku)
			if value == "" {
				continue
			}

			pt := job.Source.ProductType(sku)
			cat, ok := known[pt]
			if !ok {
				var err error
				if cat, err = s.category(ctx, pt); err != nil {
					return err
				}
				known[pt] = cat
			}

			assign(job, s.Name(), []models.SKU{sku}, job.Field, s.convert(job, sku, cat, value))
		}
	}
	return nil
}

// convert falls back to the source value when no table or unit matches.
func (s *Size) convert(job *Job, sku models.SKU, cat models.Category, value string) string {
	if cat == models.CategoryNoConversion {
		return value
	}
	if cat == models.CategoryClothing || cat == models.CategoryShoe {
		_, g := job.Source.ConceptValue(sku, models.ConceptGender)
		gender, ok := sizing.ParseGender(g)
		if !ok {
			gender = sizing.Female
		}
		if out, ok := s.engine.ConvertSize(cat, gender, job.Source.Scope, job.Target, value); ok {
			return out
		}
	}
	if out, ok := s.engine.ConvertUnit(value, job.Target.Country); ok {
		return out
	}
	s.logger.Debug("size copied unchanged", map[string]interface{}{
		"sku":      string(sku),
		"field":    string(job.Field),
		"category": string(cat),
		"value":    value,
	})
	return value
}
