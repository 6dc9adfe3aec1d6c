package resolver

import (
	"context"

	"listing-workers/internal/models"
)

// Copy writes the source value unchanged.
type Copy struct{}

func NewCopy() *Copy { return &Copy{} }

func (c *Copy) Name() string { return "copy" }

func (c *Copy) CanFill(attr *models.Attribute, _ string, _ models.FieldID) bool {
	return attr != nil && attr.Flags.IsCopy()
}

func (c *Copy) Fill(_ context.Context, job *Job) error {
	for _, g := range job.Pending(job.Groups()) {
		for _, sku := range g.SKUs {
			if v := job.SourceValue(sku); v != "" {
				assign(job, c.Name(), []models.SKU{sku}, job.Field, v)
			}
		}
	}
	return nil
}
