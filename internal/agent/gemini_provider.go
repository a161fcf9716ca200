// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

const (
	geminiRoleUser  = "user"
	geminiRoleModel = "model"
)

// GeminiProvider implements ChatProvider on the Gemini API.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a Gemini-backed ChatProvider.
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) CreateCompletion(ctx context.Context, model string, systemMsg string, messages []Message, tools []ToolDefinition) (*Message, error) {
	cfg := &genai.GenerateContentConfig{}
	if systemMsg != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemMsg}}}
	}
	if len(tools) > 0 {
		cfg.Tools = toGeminiTools(tools)
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, toGeminiContents(messages), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini completion: %w", err)
	}
	return fromGeminiResponse(resp), nil
}

func toGeminiTools(tools []ToolDefinition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		decls[i] = &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
		}
		// Gemini rejects OBJECT parameters without properties.
		if len(schemaProperties(t.Parameters)) > 0 {
			decls[i].Parameters = toGeminiSchema(t.Parameters)
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// toGeminiSchema converts a JSON Schema map into the Gemini schema subset.
func toGeminiSchema(schema map[string]interface{}) *genai.Schema {
	if schema == nil {
		return &genai.Schema{Type: genai.TypeObject}
	}
	out := &genai.Schema{Type: geminiType(schema["type"])}
	if desc, ok := schema["description"].(string); ok {
		out.Description = desc
	}
	switch out.Type {
	case genai.TypeObject:
		props := schemaProperties(schema)
		if len(props) > 0 {
			out.Properties = make(map[string]*genai.Schema, len(props))
			for name, raw := range props {
				prop, _ := raw.(map[string]interface{})
				out.Properties[name] = toGeminiSchema(prop)
			}
		}
		out.Required = schemaRequired(schema)
	case genai.TypeArray:
		items, _ := schema["items"].(map[string]interface{})
		if items == nil {
			items = map[string]interface{}{"type": "string"}
		}
		out.Items = toGeminiSchema(items)
	}
	return out
}

func geminiType(v interface{}) genai.Type {
	s, _ := v.(string)
	switch s {
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeObject
	}
}

// toGeminiContents maps the history onto user and model turns. Consecutive
// tool messages are grouped into one user turn of function responses.
func toGeminiContents(messages []Message) []*genai.Content {
	var out []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case RoleUser:
			out = append(out, &genai.Content{Role: geminiRoleUser, Parts: []*genai.Part{{Text: m.Content}}})
		case RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: decodeArgs(tc.Arguments),
				}})
			}
			if len(parts) == 0 {
				continue
			}
			out = append(out, &genai.Content{Role: geminiRoleModel, Parts: parts})
		case RoleTool:
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     m.ToolName,
				Response: decodeArgs(m.Content),
			}}
			if n := len(out); n > 0 && out[n-1].Role == geminiRoleUser && isFunctionResponse(out[n-1]) {
				out[n-1].Parts = append(out[n-1].Parts, part)
				continue
			}
			out = append(out, &genai.Content{Role: geminiRoleUser, Parts: []*genai.Part{part}})
		}
	}
	return out
}

func isFunctionResponse(c *genai.Content) bool {
	return len(c.Parts) > 0 && c.Parts[0].FunctionResponse != nil
}

// decodeArgs parses a JSON object. Anything else is wrapped as {"result": s}.
func decodeArgs(s string) map[string]any {
	if strings.TrimSpace(s) == "" {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil || out == nil {
		return map[string]any{"result": s}
	}
	return out
}

func fromGeminiResponse(resp *genai.GenerateContentResponse) *Message {
	msg := &Message{Role: RoleAssistant}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return msg
	}

	var text []string
	for _, part := range resp.Candidates[0].Content.Parts {
		switch {
		case part == nil:
		case part.FunctionCall != nil:
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil || part.FunctionCall.Args == nil {
				args = []byte("{}")
			}
			id := part.FunctionCall.ID
			if id == "" {
				id = "call_" + uuid.NewString()
			}
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:        id,
				Name:      part.FunctionCall.Name,
				Arguments: string(args),
			})
		case part.Text != "" && !part.Thought:
			text = append(text, part.Text)
		}
	}
	msg.Content = strings.Join(text, "\n")
	return msg
}
