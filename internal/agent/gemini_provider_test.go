// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"encoding/json"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/jolks/mcp-toolchat/internal/tools"
)

func TestToGeminiSchema(t *testing.T) {
	schema := toGeminiSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"sic_codes": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "SIC codes",
			},
			"size": map[string]interface{}{"type": "integer"},
		},
		"required": []interface{}{"sic_codes"},
	})

	if schema.Type != genai.TypeObject {
		t.Fatalf("Expected object schema, got %s", schema.Type)
	}
	codes := schema.Properties["sic_codes"]
	if codes == nil || codes.Type != genai.TypeArray || codes.Items == nil || codes.Items.Type != genai.TypeString {
		t.Errorf("Unexpected sic_codes schema %+v", codes)
	}
	if codes.Description != "SIC codes" {
		t.Errorf("Expected description 'SIC codes', got '%s'", codes.Description)
	}
	if schema.Properties["size"].Type != genai.TypeInteger {
		t.Errorf("Expected integer size, got %s", schema.Properties["size"].Type)
	}
	if len(schema.Required) != 1 || schema.Required[0] != "sic_codes" {
		t.Errorf("Expected required [sic_codes], got %v", schema.Required)
	}
}

func TestToGeminiToolsSingleDeclarationSet(t *testing.T) {
	result := toGeminiTools([]ToolDefinition{
		{Name: "get_company_profile", Description: "Profile"},
		{Name: "list_available_competitors", Description: "List"},
	})
	if len(result) != 1 {
		t.Fatalf("Expected 1 tool holding all declarations, got %d", len(result))
	}
	if len(result[0].FunctionDeclarations) != 2 {
		t.Fatalf("Expected 2 declarations, got %d", len(result[0].FunctionDeclarations))
	}
	if result[0].FunctionDeclarations[0].Parameters != nil {
		t.Error("Expected no parameters for a tool without properties")
	}
}

func TestToGeminiToolsCatalogHasNoEmptyObjects(t *testing.T) {
	registry, err := tools.NewCatalogRegistry(nil)
	if err != nil {
		t.Fatalf("NewCatalogRegistry: %v", err)
	}
	result := toGeminiTools(DefinitionsFrom(registry.Definitions()))

	found := map[string]*genai.FunctionDeclaration{}
	for _, decl := range result[0].FunctionDeclarations {
		found[decl.Name] = decl
		if decl.Parameters != nil && decl.Parameters.Type == genai.TypeObject && len(decl.Parameters.Properties) == 0 {
			t.Errorf("Tool %s declares an OBJECT without properties", decl.Name)
		}
	}

	if decl := found[tools.ListAvailableCompetitors]; decl == nil || decl.Parameters != nil {
		t.Errorf("Expected %s to be declared without parameters", tools.ListAvailableCompetitors)
	}
	profile := found[tools.GetCompanyProfile]
	if profile == nil || profile.Parameters == nil || profile.Parameters.Properties["company_number"] == nil {
		t.Errorf("Expected %s to keep its company_number parameter", tools.GetCompanyProfile)
	}
}

func TestToGeminiContents(t *testing.T) {
	contents := toGeminiContents([]Message{
		{Role: RoleUser, Content: "Profile of Acme please"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "get_company_profile", Arguments: `{"company_number":"06440931"}`}}},
		{Role: RoleTool, ToolCallID: "c1", ToolName: "get_company_profile", Content: `{"name":"Acme"}`},
		{Role: RoleTool, ToolCallID: "c2", ToolName: "lines", Content: `not json`},
		{Role: RoleAssistant, Content: "Acme is active."},
	})

	if len(contents) != 4 {
		t.Fatalf("Expected 4 contents, got %d", len(contents))
	}
	if contents[0].Role != "user" || contents[0].Parts[0].Text != "Profile of Acme please" {
		t.Errorf("Unexpected user content %+v", contents[0])
	}

	fc := contents[1].Parts[0].FunctionCall
	if contents[1].Role != "model" || fc == nil || fc.Name != "get_company_profile" || fc.Args["company_number"] != "06440931" {
		t.Errorf("Unexpected function call content %+v", contents[1])
	}

	responses := contents[2]
	if responses.Role != "user" || len(responses.Parts) != 2 {
		t.Fatalf("Expected grouped function responses, got %+v", responses)
	}
	first := responses.Parts[0].FunctionResponse
	if first.Name != "get_company_profile" || first.Response["name"] != "Acme" {
		t.Errorf("Unexpected function response %+v", first)
	}
	if responses.Parts[1].FunctionResponse.Response["result"] != "not json" {
		t.Errorf("Expected non-object content wrapped in result, got %v", responses.Parts[1].FunctionResponse.Response)
	}

	if contents[3].Role != "model" || contents[3].Parts[0].Text != "Acme is active." {
		t.Errorf("Unexpected final content %+v", contents[3])
	}
}

func TestFromGeminiResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{
				{Text: "thinking", Thought: true},
				{Text: "Looking it up."},
				{FunctionCall: &genai.FunctionCall{Name: "get_company_officers", Args: map[string]any{"company_number": "06440931"}}},
			}},
		}},
	}

	msg := fromGeminiResponse(resp)
	if msg.Content != "Looking it up." {
		t.Errorf("Expected visible text only, got '%s'", msg.Content)
	}
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("Expected 1 tool call, got %d", len(msg.ToolCalls))
	}
	tc := msg.ToolCalls[0]
	if !strings.HasPrefix(tc.ID, "call_") {
		t.Errorf("Expected synthesized call ID, got '%s'", tc.ID)
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil || args["company_number"] != "06440931" {
		t.Errorf("Unexpected arguments '%s'", tc.Arguments)
	}
}

func TestFromGeminiResponseEmpty(t *testing.T) {
	msg := fromGeminiResponse(&genai.GenerateContentResponse{})
	if ClassifyTurn(msg).Kind != TurnMalformed {
		t.Error("Expected an empty response to classify as malformed")
	}

	nilArgs := fromGeminiResponse(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{ID: "fc1", Name: "list_available_competitors"}}}},
	}}})
	if nilArgs.ToolCalls[0].Arguments != "{}" || nilArgs.ToolCalls[0].ID != "fc1" {
		t.Errorf("Unexpected tool call %+v", nilArgs.ToolCalls[0])
	}
}
