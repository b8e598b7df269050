package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
)

// ErrInvalidMethodSpec indicates malformed method spec input.
var ErrInvalidMethodSpec = errors.New("invalid method spec")

var methodSchemaReflector = jsonschema.Reflector{
	DoNotReference:            true,
	AllowAdditionalProperties: false,
}

// methodJSONSchema is the local shape used to normalize reflected JSON Schema payloads.
type methodJSONSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Required   []string       `json:"required"`
}

// MethodSpec describes one gateway method for introspection via gateway.methods.
type MethodSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}

// NewMethodSpec creates a MethodSpec by reflecting the params struct into JSON Schema.
func NewMethodSpec(name, description string, paramsStruct any) (MethodSpec, error) {
	if strings.TrimSpace(name) == "" {
		return MethodSpec{}, fmt.Errorf("%w: name is required", ErrInvalidMethodSpec)
	}
	schema, err := buildMethodSchema(paramsStruct)
	if err != nil {
		return MethodSpec{}, err
	}
	return MethodSpec{
		Name:        name,
		Description: description,
		Schema:      schema,
	}, nil
}

// buildMethodSchema reflects and normalizes a params struct schema into raw JSON.
func buildMethodSchema(paramsStruct any) (json.RawMessage, error) {
	target, err := schemaReflectionTarget(paramsStruct)
	if err != nil {
		return nil, err
	}

	schema := methodSchemaReflector.Reflect(target)
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal generated method schema: %w", err)
	}

	decoded, err := DecodeMethodJSONSchema(raw)
	if err != nil {
		return nil, err
	}
	normalized, err := json.Marshal(decoded)
	if err != nil {
		return nil, fmt.Errorf("marshal normalized method schema: %w", err)
	}
	return normalized, nil
}

// schemaReflectionTarget validates paramsStruct and returns a concrete struct pointer.
func schemaReflectionTarget(paramsStruct any) (any, error) {
	t := reflect.TypeOf(paramsStruct)
	if t == nil {
		return nil, fmt.Errorf("%w: params struct is nil", ErrInvalidMethodSpec)
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: params struct must be a struct or pointer to struct", ErrInvalidMethodSpec)
	}
	return reflect.New(t).Interface(), nil
}

// DecodeMethodJSONSchema validates and normalizes a method params schema object.
func DecodeMethodJSONSchema(raw json.RawMessage) (methodJSONSchema, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return methodJSONSchema{
			Type:       "object",
			Properties: map[string]any{},
		}, nil
	}

	var schema methodJSONSchema
	if err := json.Unmarshal(trimmed, &schema); err != nil {
		return methodJSONSchema{}, fmt.Errorf("%w: invalid schema json", ErrInvalidMethodSpec)
	}

	if strings.TrimSpace(schema.Type) == "" {
		schema.Type = "object"
	}
	if schema.Type != "object" {
		return methodJSONSchema{}, fmt.Errorf("%w: schema type must be object", ErrInvalidMethodSpec)
	}
	if schema.Properties == nil {
		schema.Properties = map[string]any{}
	}

	return schema, nil
}
