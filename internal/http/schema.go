package http

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// testPayloadSchema describes the body of POST /api/test_payload. Missing
// or null fields fall back to their defaults.
var testPayloadSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"payload": map[string]any{
			"type":      []any{"string", "null"},
			"maxLength": 65536,
		},
		"context": map[string]any{
			"type":      []any{"string", "null"},
			"maxLength": 64,
		},
		"emulate": map[string]any{
			"type": []any{"boolean", "null"},
		},
	},
}

// SchemaValidator validates JSON request bodies against JSON schemas
type SchemaValidator struct {
	schema *gojsonschema.Schema
}

// NewSchemaValidator compiles schema once
func NewSchemaValidator(schema map[string]any) (*SchemaValidator, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}
	return &SchemaValidator{schema: compiled}, nil
}

// ValidationError lists every schema violation
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "request does not match schema: " + strings.Join(e.Problems, "; ")
}

// Decode validates body and unmarshals it into v. The caller decides what
// to do with bodies that are not JSON at all; they are reported with
// ErrNotJSON.
func (v *SchemaValidator) Decode(body []byte, dst any) error {
	if !json.Valid(body) {
		return ErrNotJSON
	}

	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		verr := &ValidationError{}
		for _, e := range result.Errors() {
			verr.Problems = append(verr.Problems, e.String())
		}
		return verr
	}

	return json.Unmarshal(body, dst)
}

// ErrNotJSON is returned by Decode for bodies that are not valid JSON
var ErrNotJSON = fmt.Errorf("body is not valid JSON")
