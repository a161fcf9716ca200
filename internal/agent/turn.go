// SPDX-License-Identifier: AGPL-3.0-only
package agent

import "strings"

// TurnKind classifies a model reply.
type TurnKind int

const (
	// TurnMalformed carries neither text nor a tool call.
	TurnMalformed TurnKind = iota
	TurnText
	TurnToolRequest
)

func (k TurnKind) String() string {
	switch k {
	case TurnText:
		return "text"
	case TurnToolRequest:
		return "tool_request"
	default:
		return "malformed"
	}
}

// Turn is a classified model reply.
type Turn struct {
	Kind TurnKind
	Text string
	Call ToolCall // first tool call, set for TurnToolRequest
}

// ClassifyTurn inspects a model reply. Only the first tool call counts, and a
// tool call wins over text in the same reply.
func ClassifyTurn(m *Message) Turn {
	if m == nil {
		return Turn{Kind: TurnMalformed}
	}
	for _, call := range m.ToolCalls {
		if call.Name != "" {
			return Turn{Kind: TurnToolRequest, Text: m.Content, Call: call}
		}
	}
	if strings.TrimSpace(m.Content) != "" {
		return Turn{Kind: TurnText, Text: m.Content}
	}
	return Turn{Kind: TurnMalformed}
}
