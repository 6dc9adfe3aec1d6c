// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"listing-workers/internal/common/validation"
	"listing-workers/internal/models"
)

// New returns an empty registry carrying the built-in alias table.
func New() *AttributeRegistry {
	return &AttributeRegistry{Version: 1, Aliases: models.DefaultAliasTable()}
}

// LoadRegistry reads and validates a registry file.
func LoadRegistry(path string) (*AttributeRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse validates data against Schema and decodes it.
func Parse(data []byte) (*AttributeRegistry, error) {
	if err := validation.MustCompile(Schema).Validate(string(data)); err != nil {
		return nil, fmt.Errorf("invalid registry: %w", err)
	}
	var reg AttributeRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	if err := reg.Check(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Check reports duplicate attribute names and marketplace fields claimed by
// two attributes.
func (r *AttributeRegistry) Check() error {
	names := make(map[string]bool)
	fields := make(map[string]string)
	for _, a := range r.Attributes {
		if names[a.Name] {
			return fmt.Errorf("duplicate attribute: %s", a.Name)
		}
		names[a.Name] = true
		for mkt, id := range a.Fields {
			key := strings.ToLower(mkt) + "|" + string(id)
			if other, ok := fields[key]; ok {
				return fmt.Errorf("field %s of %s is claimed by %s and %s", id, mkt, other, a.Name)
			}
			fields[key] = a.Name
		}
	}
	return nil
}

// Save writes the registry as indented JSON, creating the directory.
func (r *AttributeRegistry) Save(path string) error {
	r.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

func (r *AttributeRegistry) Attribute(name string) (*models.Attribute, bool) {
	for _, a := range r.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

func (r *AttributeRegistry) AddAttribute(a *models.Attribute) error {
	if _, ok := r.Attribute(a.Name); ok {
		return fmt.Errorf("attribute %s already exists", a.Name)
	}
	r.Attributes = append(r.Attributes, a)
	if err := r.Check(); err != nil {
		r.Attributes = r.Attributes[:len(r.Attributes)-1]
		return err
	}
	r.Version++
	return nil
}

// SetFlag sets or clears one flag of an attribute.
func (r *AttributeRegistry) SetFlag(name string, f models.Flag, on bool) error {
	a, ok := r.Attribute(name)
	if !ok {
		return fmt.Errorf("attribute %s not found", name)
	}
	if on {
		a.Flags = a.Flags.With(f)
	} else {
		a.Flags = a.Flags.Without(f)
	}
	r.Version++
	return nil
}

func (r *AttributeRegistry) AddPossibleValues(name string, vs models.ValueScope, values ...string) error {
	a, ok := r.Attribute(name)
	if !ok {
		return fmt.Errorf("attribute %s not found", name)
	}
	a.AddPossibleValues(vs, values...)
	r.Version++
	return nil
}

// AddAlias records a new field id for a concept. It reports whether the
// alias table changed.
func (r *AttributeRegistry) AddAlias(c models.Concept, id models.FieldID) bool {
	if r.Aliases == nil {
		r.Aliases = &models.AliasTable{Version: 1}
	}
	return r.Aliases.Add(c, id)
}

// Table indexes the attributes for lookup by marketplace field.
func (r *AttributeRegistry) Table() *models.AttributeTable {
	return models.NewAttributeTable(r.Attributes)
}

// AliasTable returns the registry aliases layered over the built-in table.
func (r *AttributeRegistry) AliasTable() *models.AliasTable {
	return models.DefaultAliasTable().Merge(r.Aliases)
}
