package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// SimpleSchema creates a jsonschema.Schema from a simple type map.
//
// Input format: {"a": "float64", "b": "string"}
// Every listed property is required.
func SimpleSchema(props map[string]string) *jsonschema.Schema {
	properties := make(map[string]*jsonschema.Schema, len(props))
	required := make([]string, 0, len(props))

	for name, goType := range props {
		properties[name] = goTypeToJSONSchema(goType)
		required = append(required, name)
	}

	return &jsonschema.Schema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

// goTypeToJSONSchema converts a Go type string to a JSON Schema type.
func goTypeToJSONSchema(goType string) *jsonschema.Schema {
	switch goType {
	case "string":
		return &jsonschema.Schema{Type: "string"}
	case "int", "int8", "int16", "int32", "int64", "uint", "uint8", "uint16", "uint32", "uint64":
		return &jsonschema.Schema{Type: "integer"}
	case "float32", "float64", "float", "number":
		return &jsonschema.Schema{Type: "number"}
	case "bool", "boolean":
		return &jsonschema.Schema{Type: "boolean"}
	case "any", "object", "map[string]any":
		return &jsonschema.Schema{Type: "object"}
	default:
		if item, ok := strings.CutPrefix(goType, "[]"); ok && item != "" {
			return &jsonschema.Schema{
				Type:  "array",
				Items: goTypeToJSONSchema(item),
			}
		}

		return &jsonschema.Schema{Type: "string"}
	}
}

// resolveInputSchema turns a tool's advertised input schema into a
// validator. Clients receive the schema as decoded JSON, so anything other
// than a *jsonschema.Schema goes through a JSON round trip.
func resolveInputSchema(raw any) (*jsonschema.Resolved, error) {
	if raw == nil {
		return nil, nil
	}

	schema, ok := raw.(*jsonschema.Schema)
	if !ok {
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("encode input schema: %w", err)
		}

		schema = new(jsonschema.Schema)
		if err := json.Unmarshal(data, schema); err != nil {
			return nil, fmt.Errorf("decode input schema: %w", err)
		}
	}

	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve input schema: %w", err)
	}

	return resolved, nil
}

// normalizeArguments converts args to the generic JSON form that schema
// validation and the wire both see.
func normalizeArguments(args map[string]any) (map[string]any, error) {
	if args == nil {
		return map[string]any{}, nil
	}

	data, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}

	return out, nil
}
