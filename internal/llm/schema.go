package llm

import (
	"strings"

	"google.golang.org/genai"
)

// ToGenaiSchema converts a JSON Schema document into Gemini's schema type.
// A ["T","null"] type union becomes a nullable T.
func ToGenaiSchema(doc map[string]interface{}) *genai.Schema {
	if doc == nil {
		return nil
	}
	s := &genai.Schema{}

	switch t := doc["type"].(type) {
	case string:
		s.Type = genaiType(t)
	case []interface{}:
		for _, v := range t {
			name, _ := v.(string)
			if name == "null" {
				s.Nullable = genai.Ptr(true)
				continue
			}
			if s.Type == "" {
				s.Type = genaiType(name)
			}
		}
	}
	if desc, ok := doc["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := doc["properties"].(map[string]interface{}); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if m, ok := prop.(map[string]interface{}); ok {
				s.Properties[name] = ToGenaiSchema(m)
			}
		}
	}
	if required, ok := doc["required"].([]interface{}); ok {
		for _, r := range required {
			if name, ok := r.(string); ok {
				s.Required = append(s.Required, name)
			}
		}
	}
	if items, ok := doc["items"].(map[string]interface{}); ok {
		s.Items = ToGenaiSchema(items)
	}
	if enum, ok := doc["enum"].([]interface{}); ok {
		for _, e := range enum {
			if v, ok := e.(string); ok {
				s.Enum = append(s.Enum, v)
			}
		}
	}
	return s
}

func genaiType(t string) genai.Type {
	switch strings.ToLower(t) {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}
