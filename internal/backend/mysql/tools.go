package mysql

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/datasage-ai/toolgate/internal/backend"
)

// toolDefinitions returns the catalog this client advertises. The parameter
// schemas double as validation input; compileToolSchemas compiles them once
// per client.
func toolDefinitions() []backend.ToolDefinition {
	return []backend.ToolDefinition{
		{
			Name:        "query",
			Description: "Execute a SQL SELECT query. Read-only.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"sql": map[string]any{
						"type":        "string",
						"description": "SELECT statement to execute",
					},
					"params": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Optional positional statement parameters",
					},
				},
				"required": []any{"sql"},
			},
		},
		{
			Name:        "list_tables",
			Description: "List all tables in the database.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        "describe_table",
			Description: "Show the columns and types of a table.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"table": map[string]any{
						"type":        "string",
						"description": "Table name",
					},
				},
				"required": []any{"table"},
			},
		},
	}
}

type compiledTool struct {
	schema *jsonschema.Schema
}

// validate checks params against the tool's parameter schema.
// Returns an empty string when valid.
func (t *compiledTool) validate(params map[string]any) string {
	if params == nil {
		params = map[string]any{}
	}
	// Round-trip through JSON so values are in the decoded form the
	// validator expects (e.g. numbers as float64).
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("parameters are not serializable: %v", err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Sprintf("parameters are not valid JSON: %v", err)
	}
	if err := t.schema.Validate(decoded); err != nil {
		return err.Error()
	}
	return ""
}

func compileToolSchemas() (map[string]*compiledTool, error) {
	compiled := make(map[string]*compiledTool)
	for _, def := range toolDefinitions() {
		// Normalize the schema map into decoded-JSON form for the compiler.
		raw, err := json.Marshal(def.Parameters)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", def.Name, err)
		}
		var schemaObj any
		if err := json.Unmarshal(raw, &schemaObj); err != nil {
			return nil, fmt.Errorf("tool %s: %w", def.Name, err)
		}

		c := jsonschema.NewCompiler()
		resource := def.Name + ".json"
		if err := c.AddResource(resource, schemaObj); err != nil {
			return nil, fmt.Errorf("tool %s: %w", def.Name, err)
		}
		sch, err := c.Compile(resource)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", def.Name, err)
		}
		compiled[def.Name] = &compiledTool{schema: sch}
	}
	return compiled, nil
}
