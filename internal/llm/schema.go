package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonschema"
)

// Schema validates model output against a compiled JSON Schema.
type Schema struct {
	schema *jsonschema.Schema
}

// CompileSchema compiles a JSON Schema document.
func CompileSchema(schemaJSON []byte) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &Schema{schema: schema}, nil
}

// MustCompileSchema is CompileSchema for package-level schemas.
func MustCompileSchema(schemaJSON string) *Schema {
	s, err := CompileSchema([]byte(schemaJSON))
	if err != nil {
		panic(err)
	}
	return s
}

// SchemaError reports model output that is not valid JSON or does not match
// the expected schema.
type SchemaError struct {
	Violations []string
	Err        error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model output is not valid JSON: %v", e.Err)
	}
	return fmt.Sprintf("model output does not match schema: %s", strings.Join(e.Violations, "; "))
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// Decode parses text as JSON, validates it and, on success, unmarshals it
// into out.
func (s *Schema) Decode(text string, out any) error {
	var instance any
	if err := json.Unmarshal([]byte(text), &instance); err != nil {
		return &SchemaError{Err: err}
	}

	result := s.schema.Validate(instance)
	if !result.IsValid() {
		violations := make([]string, 0, len(result.Errors))
		for field, evalErr := range result.Errors {
			violations = append(violations, fmt.Sprintf("%s: %s", field, evalErr.Error()))
		}
		sort.Strings(violations)
		return &SchemaError{Violations: violations}
	}

	if err := json.Unmarshal([]byte(text), out); err != nil {
		return &SchemaError{Err: err}
	}
	return nil
}
