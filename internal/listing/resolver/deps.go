package resolver

import (
	"listing-workers/internal/common/logger"
	"listing-workers/internal/listing/consensus"
	"listing-workers/internal/listing/equivalence"
	"listing-workers/internal/listing/sizing"
)

// Priorities of the default registry, lowest first.
const (
	PriorityCopy         = 10
	PriorityPrice        = 20
	PrioritySize         = 30
	PriorityBulletPoints = 40
	PriorityKeywords     = 50
	PriorityTitle        = 60
	PrioritySelectable   = 70
	PriorityText         = 80
)

// Deps are the collaborators shared by the default resolvers.
type Deps struct {
	Dispatcher  *consensus.Dispatcher
	Sizes       *sizing.Engine
	Categories  *sizing.CategoryClassifier
	Equivalence *equivalence.Resolver
	Budget      consensus.PhaseBudget
	Text        TextBudget
	Pricing     Pricing
	Model       string
	Logger      logger.Logger
}

// TextBudget is the reply budget of free-text generation.
type TextBudget struct {
	Replies    int
	MaxRetries int
}

func (b TextBudget) orDefault() TextBudget {
	if b.Replies <= 0 {
		b.Replies = 2
	}
	if b.MaxRetries < b.Replies {
		b.MaxRetries = 3 * b.Replies
	}
	return b
}

// DefaultRegistry registers the eight resolvers in their standard order.
func DefaultRegistry(d Deps) *Registry {
	if d.Logger == nil {
		d.Logger = logger.NewNoOpLogger()
	}
	d.Text = d.Text.orDefault()
	if d.Budget == (consensus.PhaseBudget{}) {
		d.Budget = consensus.DefaultPhaseBudget()
	}

	r := NewRegistry()
	r.Register(PriorityCopy, NewCopy())
	r.Register(PriorityPrice, NewPrice(d.Pricing, d.Logger))
	r.Register(PrioritySize, NewSize(d.Sizes, d.Categories, d.Logger))
	r.Register(PriorityBulletPoints, NewBulletPoints(d))
	r.Register(PriorityKeywords, NewKeywords(d))
	r.Register(PriorityTitle, NewTitle(d))
	r.Register(PrioritySelectable, NewSelectable(d))
	r.Register(PriorityText, NewText(d))
	return r
}
