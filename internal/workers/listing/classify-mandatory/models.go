// internal/workers/listing/classify-mandatory/models.go
package classifymandatory

import "listing-workers/internal/models"

type Input struct {
	ProductType string       `json:"productType"`
	Scope       models.Scope `json:"scope"`
	Fields      []string     `json:"fields"`
	Current     []string     `json:"current,omitempty"`
	Previous    []string     `json:"previous,omitempty"`
	NoAI        bool         `json:"noAI"`
	Overrides   []Override   `json:"overrides,omitempty"`
}

// Override is an operator decision. A nil Mandatory clears the override.
type Override struct {
	Field     string `json:"field"`
	Mandatory *bool  `json:"mandatory"`
}

type Output struct {
	ProductType   string   `json:"productType"`
	Mandatory     []string `json:"mandatory"`
	AIAdded       []string `json:"aiAdded"`
	AIRemoved     []string `json:"aiRemoved"`
	ManualAdded   []string `json:"manualAdded"`
	ManualRemoved []string `json:"manualRemoved"`
	Reviewed      []string `json:"reviewed"`
}
