package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ValueReplySchema is the shape of single-value AI replies: {"value": "..."}.
const ValueReplySchema = `{
  "type": "object",
  "properties": {"value": {"type": "string"}},
  "required": ["value"]
}`

// StringArraySchema builds a schema for an array of exactly n non-empty strings.
func StringArraySchema(n int) string {
	return fmt.Sprintf(`{
  "type": "array",
  "minItems": %d,
  "maxItems": %d,
  "items": {"type": "string", "pattern": "\\S"}
}`, n, n)
}

// Schema is a compiled JSON schema.
type Schema struct {
	schema *gojsonschema.Schema
}

var (
	compiledMu sync.Mutex
	compiled   = map[string]*Schema{}
)

// Compile parses a schema document, memoizing by its text.
func Compile(doc string) (*Schema, error) {
	compiledMu.Lock()
	defer compiledMu.Unlock()

	if s, ok := compiled[doc]; ok {
		return s, nil
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	out := &Schema{schema: s}
	compiled[doc] = out
	return out, nil
}

// MustCompile is Compile for package-level schemas.
func MustCompile(doc string) *Schema {
	s, err := Compile(doc)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks a JSON document and joins every violation into one error.
func (s *Schema) Validate(document string) error {
	result, err := s.schema.Validate(gojsonschema.NewStringLoader(document))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}
	errs := make([]string, len(result.Errors()))
	for i, desc := range result.Errors() {
		errs[i] = desc.String()
	}
	return fmt.Errorf("data validation failed: %s", strings.Join(errs, "; "))
}

// ValidateGo validates an already decoded value.
func (s *Schema) ValidateGo(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Validate(string(data))
}

// ExtractJSON strips markdown code fences and surrounding prose from a model
// reply, returning the outermost JSON object or array.
func ExtractJSON(reply string) string {
	s := strings.TrimSpace(reply)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return s
	}
	return s[start : end+1]
}

// DecodeValue validates a {"value": ...} reply and returns the trimmed value.
func DecodeValue(reply string) (string, error) {
	doc := ExtractJSON(reply)
	if err := MustCompile(ValueReplySchema).Validate(doc); err != nil {
		return "", err
	}
	var out struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Value), nil
}

// DecodeStrings validates an array reply of exactly n non-empty strings.
func DecodeStrings(reply string, n int) ([]string, error) {
	doc := ExtractJSON(reply)
	if err := MustCompile(StringArraySchema(n)).Validate(doc); err != nil {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i] = strings.TrimSpace(out[i])
		if out[i] == "" {
			return nil, fmt.Errorf("element %d is empty", i)
		}
	}
	return out, nil
}
