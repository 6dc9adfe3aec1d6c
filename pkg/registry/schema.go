// pkg/registry/schema.go
package registry

import "listing-workers/internal/models"

// AttributeRegistry is the on-disk attribute metadata: per-marketplace field
// ids, flags, length limits and possible values, plus the versioned alias
// table.
type AttributeRegistry struct {
	Version     int                 `json:"version"`
	LastUpdated string              `json:"lastUpdated"`
	Aliases     *models.AliasTable  `json:"aliases,omitempty"`
	Attributes  []*models.Attribute `json:"attributes"`
}

// Schema validates registry files before they are decoded.
const Schema = `{
  "type": "object",
  "required": ["version", "attributes"],
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "lastUpdated": {"type": "string"},
    "aliases": {
      "type": "object",
      "properties": {
        "version": {"type": "integer", "minimum": 1},
        "concepts": {
          "type": "object",
          "additionalProperties": {"type": "array", "items": {"type": "string", "minLength": 1}}
        }
      }
    },
    "attributes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "fields"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "fields": {
            "type": "object",
            "minProperties": 1,
            "additionalProperties": {"type": "string", "minLength": 1}
          },
          "flags": {
            "type": "array",
            "items": {"enum": [
              "ChildOnly", "NoAI", "PutFirstValue", "Size", "SameValue", "ChildSameValue",
              "ForCustomInstructions", "ReadablePreviousTemplates", "Copy",
              "MandatoryAmazon", "MandatoryTemu"
            ]}
          },
          "max_length": {"type": "integer", "minimum": 0},
          "possible_values": {
            "type": "object",
            "additionalProperties": {"type": "array", "items": {"type": "string"}}
          }
        }
      }
    }
  }
}`
