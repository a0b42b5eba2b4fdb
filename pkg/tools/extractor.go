// Package tools derives relational schema information from tool
// definitions: a uniform column list from either a native parameter schema
// or an OpenAPI operation fragment, and a deterministic log-table name from
// the tool's identity.
package tools

import (
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/shamanic-technologies/agent-base-sub002/pkg/models"
)

// ExtractColumns normalizes a tool's parameter definitions into an ordered
// column-type list. An empty or missing parameter list yields an empty
// list, not an error; the log table still gets its fixed system columns.
func ExtractColumns(def models.ToolDefinition) ([]models.ColumnSpec, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	switch def.Kind {
	case models.ToolKindNative:
		return nativeColumns(def.Native), nil
	case models.ToolKindAPI:
		return apiColumns(def.API)
	default:
		return nil, fmt.Errorf("unknown tool definition kind %q", def.Kind)
	}
}

// nativeColumns maps a declared parameter schema to columns, preserving
// declaration order.
func nativeColumns(tool *models.NativeTool) []models.ColumnSpec {
	columns := make([]models.ColumnSpec, 0, len(tool.Parameters))
	for _, param := range tool.Parameters {
		columns = append(columns, models.ColumnSpec{
			Name:     param.Name,
			JSONType: param.Type,
		})
	}
	return columns
}

// apiColumns reads the parameters of the single operation carried by an
// ApiTool's OpenAPI fragment. Parameters without a name or a recognizable
// type are skipped.
func apiColumns(tool *models.APITool) ([]models.ColumnSpec, error) {
	doc, err := loadSpec(tool)
	if err != nil {
		return nil, err
	}

	operation := singleOperation(doc)
	if operation == nil {
		return []models.ColumnSpec{}, nil
	}

	columns := make([]models.ColumnSpec, 0, len(operation.Parameters))
	for _, ref := range operation.Parameters {
		if ref == nil || ref.Value == nil {
			continue
		}
		param := ref.Value
		jsonType := schemaType(param.Schema)
		if param.Name == "" || jsonType == "" {
			continue
		}
		columns = append(columns, models.ColumnSpec{
			Name:     param.Name,
			JSONType: jsonType,
		})
	}
	return columns, nil
}

// loadSpec parses the embedded OpenAPI document.
func loadSpec(tool *models.APITool) (*openapi3.T, error) {
	if len(tool.OpenAPISpec) == 0 {
		return nil, fmt.Errorf("api tool %q has no OpenAPI specification", tool.Name)
	}

	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(tool.OpenAPISpec)
	if err != nil {
		return nil, fmt.Errorf("api tool %q: parsing OpenAPI specification: %w", tool.Name, err)
	}
	return doc, nil
}

// singleOperation returns the one operation an ApiTool fragment declares,
// or nil when the document carries no paths.
func singleOperation(doc *openapi3.T) *openapi3.Operation {
	if doc.Paths == nil {
		return nil
	}
	for _, item := range doc.Paths.Map() {
		if item == nil {
			continue
		}
		for _, operation := range item.Operations() {
			if operation != nil {
				return operation
			}
		}
	}
	return nil
}

// schemaType extracts the JSON Schema type from a parameter schema ref.
func schemaType(ref *openapi3.SchemaRef) string {
	if ref == nil || ref.Value == nil || ref.Value.Type == nil {
		return ""
	}
	types := *ref.Value.Type
	if len(types) == 0 {
		return ""
	}
	return types[0]
}
