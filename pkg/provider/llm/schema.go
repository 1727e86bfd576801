package llm

import (
	"encoding/json"
	"fmt"
)

// Schema types.
const (
	TypeObject = "object"
	TypeString = "string"
)

// Schema is the subset of JSON Schema needed to describe a flat structured
// response: an object whose properties are strings, optionally enumerated.
type Schema struct {
	Type        string
	Description string
	Properties  map[string]*Schema
	Required    []string
	Enum        []string

	// Order lists property names in the order they should be presented to
	// the model. Properties missing from Order follow in map order.
	Order []string
}

// JSONSchema returns s as a JSON Schema document.
func (s *Schema) JSONSchema() map[string]any {
	if s == nil {
		return nil
	}
	out := map[string]any{"type": s.Type}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		out["enum"] = s.Enum
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = p.JSONSchema()
		}
		out["properties"] = props
		out["additionalProperties"] = false
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	return out
}

// String renders s as compact JSON for inclusion in prompts.
func (s *Schema) String() string {
	b, err := json.Marshal(s.JSONSchema())
	if err != nil {
		return fmt.Sprintf("<invalid schema: %v>", err)
	}
	return string(b)
}

// PropertyNames returns the property names in presentation order.
func (s *Schema) PropertyNames() []string {
	seen := make(map[string]bool, len(s.Properties))
	names := make([]string, 0, len(s.Properties))
	for _, n := range s.Order {
		if _, ok := s.Properties[n]; ok && !seen[n] {
			names = append(names, n)
			seen[n] = true
		}
	}
	for n := range s.Properties {
		if !seen[n] {
			names = append(names, n)
		}
	}
	return names
}
