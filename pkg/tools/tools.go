// Package tools defines the JSON-schema tool definitions exposed to the model
// and helpers for decoding tool-call arguments into typed structs.
package tools

import (
	"sort"
	"strings"
)

// ToolDefinition describes a single tool in the catalogue sent to the model.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// InputSchema is the JSON-schema object describing a tool's parameters.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes a single parameter in an input schema.
type Property struct {
	Type        string              `json:"type"`
	Description string              `json:"description,omitempty"`
	Enum        []string            `json:"enum,omitempty"`
	Items       *Property           `json:"items,omitempty"`
	Properties  map[string]Property `json:"properties,omitempty"`
}

// ObjectSchema builds an input schema of type object.
func ObjectSchema(properties map[string]Property, required ...string) InputSchema {
	return InputSchema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

// Names returns the sorted tool names of a catalogue, for logging.
func Names(catalogue []ToolDefinition) string {
	names := make([]string, 0, len(catalogue))
	for i := range catalogue {
		names = append(names, catalogue[i].Name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
