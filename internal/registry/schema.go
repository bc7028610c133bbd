package registry

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/models"
)

// schemaTypes are the declared parameter types this registry can turn into
// a JSON Schema "type" constraint. A parameter declared with any other
// string (plugins often write a human description instead of a type, e.g.
// "the search query") is treated as untyped: the schema still requires the
// property but does not constrain its shape.
var schemaTypes = map[string]bool{
	"string": true, "number": true, "integer": true,
	"boolean": true, "array": true, "object": true,
}

// compileActionSchema builds and compiles a JSON Schema enforcing that
// ACTION_ARGS carries every parameter an action declares, typed where the
// declared type is a recognised JSON Schema primitive. Extra keys are
// allowed.
func compileActionSchema(action models.ActionSpec) (*jsonschema.Schema, error) {
	if len(action.Parameters) == 0 {
		return nil, nil
	}

	properties := make(map[string]any, len(action.Parameters))
	required := make([]string, 0, len(action.Parameters))
	names := action.ParametersOrder
	if len(names) == 0 {
		for name := range action.Parameters {
			names = append(names, name)
		}
	}
	for _, name := range names {
		declared := action.Parameters[name]
		prop := map[string]any{}
		if schemaTypes[declared] {
			prop["type"] = declared
		}
		properties[name] = prop
		required = append(required, name)
	}

	schemaDoc := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": true,
	}

	raw, err := json.Marshal(schemaDoc)
	if err != nil {
		return nil, fmt.Errorf("encoding schema for action %s: %w", action.Name, err)
	}

	url := action.Name + ".schema.json"
	schema, err := jsonschema.CompileString(url, string(raw))
	if err != nil {
		return nil, fmt.Errorf("compiling schema for action %s: %w", action.Name, err)
	}
	return schema, nil
}

// validateArgs checks args against the compiled schema for an action.
// A nil schema (no declared parameters) always passes.
func validateArgs(schema *jsonschema.Schema, args map[string]any) error {
	if schema == nil {
		return nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encoding action arguments: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decoding action arguments: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("action arguments failed validation: %w", err)
	}
	return nil
}
