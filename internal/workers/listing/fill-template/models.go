// internal/workers/listing/fill-template/models.go
package filltemplate

import (
	"listing-workers/internal/listing/ledger"
	"listing-workers/internal/models"
)

type Input struct {
	Source   Sheet                        `json:"source"`
	Target   Sheet                        `json:"target"`
	LangSeed map[string]map[string]string `json:"langSeed,omitempty"`
	NoAI     bool                         `json:"noAI"`
}

// Sheet is one template sheet carried as process variables.
type Sheet struct {
	Scope        models.Scope `json:"scope"`
	Sheet        string       `json:"sheet,omitempty"`
	HeaderRow    int          `json:"headerRow"`
	FirstDataRow int          `json:"firstDataRow,omitempty"`
	Rows         [][]string   `json:"rows"`
}

type Output struct {
	RunID        string                       `json:"runId"`
	Rows         [][]string                   `json:"rows"`
	Lang         map[string]map[string]string `json:"lang"`
	Failures     []ledger.Failure             `json:"failures"`
	FailureCount int                          `json:"failureCount"`
	Mandatory    map[string][]string          `json:"mandatory"`
}

// InputSchema is checked against the job variables before decoding.
const InputSchema = `{
  "type": "object",
  "required": ["source", "target"],
  "definitions": {
    "sheet": {
      "type": "object",
      "required": ["scope", "rows"],
      "properties": {
        "scope": {
          "type": "object",
          "required": ["marketplace", "country", "lang"],
          "properties": {
            "marketplace": {"type": "string", "minLength": 1},
            "country": {"type": "string", "minLength": 1},
            "lang": {"type": "string", "minLength": 1}
          }
        },
        "sheet": {"type": "string"},
        "headerRow": {"type": "integer", "minimum": 0},
        "firstDataRow": {"type": "integer", "minimum": 0},
        "rows": {"type": "array", "minItems": 1, "items": {"type": "array", "items": {"type": "string"}}}
      }
    }
  },
  "properties": {
    "source": {"$ref": "#/definitions/sheet"},
    "target": {"$ref": "#/definitions/sheet"},
    "langSeed": {"type": "object", "additionalProperties": {"type": "object", "additionalProperties": {"type": "string"}}},
    "noAI": {"type": "boolean"}
  }
}`
