// SPDX-License-Identifier: AGPL-3.0-only
package agent

import "testing"

func TestClassifyTurn(t *testing.T) {
	cases := []struct {
		name string
		msg  *Message
		kind TurnKind
		tool string
	}{
		{"nil", nil, TurnMalformed, ""},
		{"empty", &Message{Role: RoleAssistant}, TurnMalformed, ""},
		{"whitespace", &Message{Content: "  \n"}, TurnMalformed, ""},
		{"text", &Message{Content: "The capital of France is Paris."}, TurnText, ""},
		{"tool", &Message{ToolCalls: []ToolCall{{Name: "get_company_profile"}}}, TurnToolRequest, "get_company_profile"},
		{"tool wins over text", &Message{Content: "checking", ToolCalls: []ToolCall{{Name: "lines"}}}, TurnToolRequest, "lines"},
		{"first named call", &Message{ToolCalls: []ToolCall{{Name: ""}, {Name: "second"}, {Name: "third"}}}, TurnToolRequest, "second"},
	}

	for _, c := range cases {
		turn := ClassifyTurn(c.msg)
		if turn.Kind != c.kind {
			t.Errorf("%s: expected kind %s, got %s", c.name, c.kind, turn.Kind)
		}
		if turn.Call.Name != c.tool {
			t.Errorf("%s: expected tool %q, got %q", c.name, c.tool, turn.Call.Name)
		}
	}
}
