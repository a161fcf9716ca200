// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"

	"github.com/jolks/mcp-toolchat/internal/tools"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolDefinition is the schema of a tool as offered to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON object
}

// Message is a provider-agnostic chat message.
type Message struct {
	Role      string
	Content   string
	ToolCalls []ToolCall
	// Tool messages only. Gemini keys function responses by name, the other
	// providers by call ID.
	ToolCallID string
	ToolName   string
	IsError    bool
}

// ChatProvider is a chat-completion backend. systemMsg is prepended as a
// system instruction unless empty.
type ChatProvider interface {
	CreateCompletion(ctx context.Context, model string, systemMsg string, messages []Message, tools []ToolDefinition) (*Message, error)
}

// DefinitionsFrom converts registry definitions to the model boundary type.
func DefinitionsFrom(defs []tools.Definition) []ToolDefinition {
	out := make([]ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = ToolDefinition{Name: d.Name, Description: d.Description, Parameters: d.Parameters}
	}
	return out
}

// schemaRequired reads the required list of a JSON Schema object, which may
// be []string (built locally) or []interface{} (decoded from JSON).
func schemaRequired(schema map[string]interface{}) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []interface{}:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// schemaProperties returns the properties map of a JSON Schema object, never nil.
func schemaProperties(schema map[string]interface{}) map[string]interface{} {
	props, _ := schema["properties"].(map[string]interface{})
	if props == nil {
		props = map[string]interface{}{}
	}
	return props
}
