package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ToolKind discriminates the two tool-definition variants.
type ToolKind string

const (
	// ToolKindNative is an internally defined function with a declared
	// parameter schema.
	ToolKindNative ToolKind = "native"

	// ToolKindAPI is an externally described HTTP operation carried as an
	// OpenAPI document fragment.
	ToolKindAPI ToolKind = "api"
)

// ToolDefinition is a tagged union over the two tool shapes. Exactly one of
// Native and API is non-nil, matching Kind.
type ToolDefinition struct {
	Kind   ToolKind    `json:"kind"`
	Native *NativeTool `json:"native,omitempty"`
	API    *APITool    `json:"api,omitempty"`
}

// Validate checks that the definition's discriminant matches its payload.
func (d *ToolDefinition) Validate() error {
	switch d.Kind {
	case ToolKindNative:
		if d.Native == nil {
			return fmt.Errorf("tool definition kind %q has no native payload", d.Kind)
		}
	case ToolKindAPI:
		if d.API == nil {
			return fmt.Errorf("tool definition kind %q has no api payload", d.Kind)
		}
	default:
		return fmt.Errorf("unknown tool definition kind %q", d.Kind)
	}
	return nil
}

// NativeTool is an internally defined tool with an ordered parameter schema.
type NativeTool struct {
	ID         string          `json:"id"`
	Parameters ParameterSchema `json:"parameters"`
}

// APITool is a tool backed by a single OpenAPI operation. The spec fragment
// carries one path with one HTTP method plus the document's info block.
type APITool struct {
	Name        string          `json:"name"`
	OpenAPISpec json.RawMessage `json:"openapi_spec"`
}

// Parameter is one declared tool parameter with its JSON Schema type.
type Parameter struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ParameterSchema is an ordered list of declared parameters. It serializes
// as a JSON object of name -> {type} entries; declaration order in the
// source document is preserved on decode, since parameter order determines
// column order in the derived log table.
type ParameterSchema []Parameter

// MarshalJSON encodes the schema as an object keyed by parameter name.
func (s ParameterSchema) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, p := range s {
		if i > 0 {
			buf = append(buf, ',')
		}
		name, err := json.Marshal(p.Name)
		if err != nil {
			return nil, err
		}
		typ, err := json.Marshal(p.Type)
		if err != nil {
			return nil, err
		}
		buf = append(buf, name...)
		buf = append(buf, []byte(`:{"type":`)...)
		buf = append(buf, typ...)
		buf = append(buf, '}')
	}
	return append(buf, '}'), nil
}

// UnmarshalJSON decodes an object of name -> {type} entries, preserving the
// order in which keys appear in the document.
func (s *ParameterSchema) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("parameter schema must be a JSON object, got %v", tok)
	}

	var params []Parameter
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected parameter key %v", keyTok)
		}

		var entry struct {
			Type string `json:"type"`
		}
		if err := dec.Decode(&entry); err != nil {
			return fmt.Errorf("parameter %q: %w", name, err)
		}
		params = append(params, Parameter{Name: name, Type: entry.Type})
	}

	*s = params
	return nil
}

// ColumnSpec is one derived log-table column: a parameter name and its
// JSON Schema type, in declaration order.
type ColumnSpec struct {
	Name     string `json:"name"`
	JSONType string `json:"json_type"`
}
