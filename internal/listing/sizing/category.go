package sizing

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"listing-workers/internal/common/kvstore"
	"listing-workers/internal/common/logger"
	"listing-workers/internal/listing/consensus"
	"listing-workers/internal/models"
)

// Namespace is the store namespace of the category word lists.
const Namespace = "size_categories"

var classes = []models.Category{
	models.CategoryNoConversion,
	models.CategoryShoe,
	models.CategoryClothing,
	models.CategoryOther,
}

var seedWords = map[models.Category][]string{
	models.CategoryNoConversion: {"rug", "tapis", "teppich", "alfombra", "tappeto", "carpet", "vloerkleed", "dywan"},
	models.CategoryShoe:         {"shoe", "sneaker", "boots", "sandal", "slipper", "chaussure", "schuh", "scarpa", "zapato", "footwear"},
	models.CategoryClothing: {"dress", "shirt", "pants", "trouser", "jean", "skirt", "jacket", "coat", "sweater",
		"robe", "kleid", "apparel", "clothing", "legging", "shorts", "blouse", "hoodie"},
}

// CategoryClassifier maps product types to a size category. Known product
// types are answered from persisted word lists; unknown ones are asked once
// and appended to the matching list.
type CategoryClassifier struct {
	store  kvstore.Store
	runner *consensus.Runner
	model  string
	logger logger.Logger

	mu     sync.Mutex
	loaded bool
	words  map[models.Category]models.StringSet
}

func NewCategoryClassifier(store kvstore.Store, runner *consensus.Runner, model string, log logger.Logger) *CategoryClassifier {
	return &CategoryClassifier{
		store:  store,
		runner: runner,
		model:  model,
		logger: log,
		words:  make(map[models.Category]models.StringSet),
	}
}

func (c *CategoryClassifier) load(ctx context.Context) error {
	if c.loaded {
		return nil
	}
	for _, cat := range classes {
		set := models.NewStringSet(seedWords[cat]...)
		stored, err := c.store.GetList(ctx, Namespace, string(cat))
		if err != nil {
			return err
		}
		set.Add(stored...)
		c.words[cat] = set
	}
	c.loaded = true
	return nil
}

// lookup matches exact learned product types first, then seed substrings.
func (c *CategoryClassifier) lookup(productType string) (models.Category, bool) {
	for _, cat := range classes {
		if c.words[cat].Has(productType) {
			return cat, true
		}
	}
	for _, cat := range classes {
		for w := range c.words[cat] {
			if strings.Contains(productType, w) {
				return cat, true
			}
		}
	}
	return "", false
}

// Classify returns the category of a product type.
func (c *CategoryClassifier) Classify(ctx context.Context, productType string) (models.Category, error) {
	pt := strings.ToLower(strings.TrimSpace(productType))
	if pt == "" {
		return models.CategoryOther, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.load(ctx); err != nil {
		return models.CategoryOther, fmt.Errorf("load size categories: %w", err)
	}
	if cat, ok := c.lookup(pt); ok {
		return cat, nil
	}

	var learned models.Category
	step := consensus.Step{
		Name:  "size_category",
		Model: c.model,
		Prompt: func(int) string {
			return fmt.Sprintf("Classify the product type %q for size conversion. "+
				"Answer with exactly one word: SHOE for footwear, CLOTHING for garments sized like clothes, "+
				"NOCONVERSION for rugs or items whose sizes must never be converted, OTHER otherwise.", productType)
		},
		Validate:      parseCategory,
		NeededReplies: 1,
		MaxRetries:    3,
		ChooseBest:    consensus.MostFrequent,
		Apply: func(v string) error {
			learned = models.Category(v)
			return nil
		},
	}
	res, err := c.runner.Run(ctx, step)
	if err != nil {
		return models.CategoryOther, err
	}
	if !res.HasValue() {
		return models.CategoryOther, nil
	}

	c.words[learned].Add(pt)
	if err := c.store.SetList(ctx, Namespace, string(learned), c.words[learned].Sorted()); err != nil {
		return learned, fmt.Errorf("persist size category: %w", err)
	}
	c.logger.Info("learned size category", map[string]interface{}{
		"productType": pt,
		"category":    string(learned),
	})
	return learned, nil
}

func parseCategory(raw string) (string, error) {
	switch strings.ToUpper(strings.Trim(strings.TrimSpace(raw), ".\"'")) {
	case "SHOE":
		return string(models.CategoryShoe), nil
	case "CLOTHING":
		return string(models.CategoryClothing), nil
	case "NOCONVERSION", "NO_CONVERSION":
		return string(models.CategoryNoConversion), nil
	case "OTHER":
		return string(models.CategoryOther), nil
	}
	return "", fmt.Errorf("unexpected category %q", raw)
}
