package toolgate

import (
	"encoding/json"

	"github.com/cloudwego/eino/schema"
)

type jsonSchemaProperty struct {
	Type        string                         `json:"type"`
	Description string                         `json:"description"`
	Enum        []any                          `json:"enum"`
	Items       *jsonSchemaProperty            `json:"items"`
	Properties  map[string]*jsonSchemaProperty `json:"properties"`
	Required    []string                       `json:"required"`
}

// ParseInputSchema converts a tool's JSON Schema into eino parameters.
// Unparseable schemas yield nil.
func ParseInputSchema(schemaJSON json.RawMessage) map[string]*schema.ParameterInfo {
	if len(schemaJSON) == 0 {
		return nil
	}

	var root jsonSchemaProperty
	if err := json.Unmarshal(schemaJSON, &root); err != nil {
		return nil
	}
	return convertProperties(root.Properties, root.Required)
}

func convertProperties(props map[string]*jsonSchemaProperty, required []string) map[string]*schema.ParameterInfo {
	if len(props) == 0 {
		return nil
	}

	requiredSet := make(map[string]bool, len(required))
	for _, r := range required {
		requiredSet[r] = true
	}

	params := make(map[string]*schema.ParameterInfo, len(props))
	for name, prop := range props {
		if prop == nil {
			continue
		}
		info := convertProperty(prop)
		info.Required = requiredSet[name]
		params[name] = info
	}
	return params
}

func convertProperty(prop *jsonSchemaProperty) *schema.ParameterInfo {
	info := &schema.ParameterInfo{
		Type: dataType(prop.Type),
		Desc: prop.Description,
	}
	for _, v := range prop.Enum {
		if s, ok := v.(string); ok {
			info.Enum = append(info.Enum, s)
		}
	}
	if prop.Items != nil {
		info.ElemInfo = convertProperty(prop.Items)
	}
	if len(prop.Properties) > 0 {
		info.SubParams = convertProperties(prop.Properties, prop.Required)
	}
	return info
}

func dataType(t string) schema.DataType {
	switch t {
	case "integer":
		return schema.Integer
	case "number":
		return schema.Number
	case "boolean":
		return schema.Boolean
	case "array":
		return schema.Array
	case "object":
		return schema.Object
	case "null":
		return schema.Null
	}
	return schema.String
}
