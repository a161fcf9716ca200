// SPDX-License-Identifier: AGPL-3.0-only

// Package toolcall defines the shapes a tool invocation passes through on its
// way back to the model: the raw result produced by the remote endpoint and
// the canonical ToolResult that re-enters the conversation.
package toolcall

import (
	"encoding/json"
	"strings"
)

// RawResult is the un-normalized output of a tool call. The set of
// implementations is closed: Text, Fragments, Record, *InvocationError and
// ToolResult itself.
type RawResult interface {
	isRawResult()
}

// Text is a plain string result.
type Text string

// Fragments is an ordered list of text fragments.
type Fragments []string

// Record is a key-value result.
type Record map[string]any

// InvocationError reports a transport or remote-execution failure.
type InvocationError struct {
	Detail string
}

func (e *InvocationError) Error() string { return e.Detail }

func (Text) isRawResult()             {}
func (Fragments) isRawResult()        {}
func (Record) isRawResult()           {}
func (*InvocationError) isRawResult() {}
func (ToolResult) isRawResult()       {}

// Kind identifies a ToolResult variant.
type Kind int

const (
	KindSuccess Kind = iota + 1
	KindUserGuidance
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindUserGuidance:
		return "user_guidance"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// ToolResult is the normalized outcome of a tool invocation.
type ToolResult struct {
	Kind    Kind
	Data    map[string]any // set for KindSuccess
	Message string         // set for KindUserGuidance
	Detail  string         // set for KindError
}

// Success wraps a payload.
func Success(payload map[string]any) ToolResult {
	if payload == nil {
		payload = map[string]any{}
	}
	return ToolResult{Kind: KindSuccess, Data: payload}
}

// UserGuidance tells the model what to ask the user for next.
func UserGuidance(message string) ToolResult {
	return ToolResult{Kind: KindUserGuidance, Message: message}
}

// Error reports a failure the model may react to.
func Error(detail string) ToolResult {
	return ToolResult{Kind: KindError, Detail: detail}
}

// UnknownTool is the result for a tool name absent from the registry.
func UnknownTool(name string) ToolResult {
	return Error("unknown tool: " + name)
}

// Payload renders the map that is sent back to the model.
func (r ToolResult) Payload() map[string]any {
	switch r.Kind {
	case KindSuccess:
		return r.Data
	case KindUserGuidance:
		return map[string]any{"status": "user_guidance", "message": r.Message}
	default:
		return map[string]any{"status": "error", "error": r.Detail}
	}
}

// JSON renders Payload as a JSON document.
func (r ToolResult) JSON() string {
	b, err := json.Marshal(r.Payload())
	if err != nil {
		b, _ = json.Marshal(map[string]any{"status": "error", "error": "unserializable tool result: " + err.Error()})
	}
	return string(b)
}

// UnexpectedFormat is the detail used when a raw result has no known shape.
const UnexpectedFormat = "unexpected output format"

// Normalize coerces raw into exactly one ToolResult. The order of the checks
// matters: errors are matched before any shape coercion, and an already
// normalized result is returned unchanged.
func Normalize(toolName string, raw RawResult) ToolResult {
	switch r := raw.(type) {
	case ToolResult:
		return r
	case *InvocationError:
		if r == nil {
			return Error(UnexpectedFormat)
		}
		return Error(r.Detail)
	case Fragments:
		return Success(map[string]any{"result": strings.Join(r, "\n")})
	case Record:
		return Success(map[string]any(r))
	default:
		return Error(UnexpectedFormat)
	}
}
