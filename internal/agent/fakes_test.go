// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"
	"io"
	"sync"

	"github.com/jolks/mcp-toolchat/internal/logging"
	"github.com/jolks/mcp-toolchat/internal/model"
	"github.com/jolks/mcp-toolchat/internal/toolcall"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Options{Output: io.Discard, Level: logging.Fatal})
}

// scriptedProvider replays canned replies and records each request's history.
type scriptedProvider struct {
	mu       sync.Mutex
	replies  []*Message
	errs     []error
	requests [][]Message
	systems  []string
}

func (p *scriptedProvider) CreateCompletion(_ context.Context, _ string, systemMsg string, messages []Message, _ []ToolDefinition) (*Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := len(p.requests)
	history := make([]Message, len(messages))
	copy(history, messages)
	p.requests = append(p.requests, history)
	p.systems = append(p.systems, systemMsg)

	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i >= len(p.replies) {
		return p.replies[len(p.replies)-1], nil
	}
	return p.replies[i], nil
}

func textReply(s string) *Message {
	return &Message{Role: RoleAssistant, Content: s}
}

func toolReply(name, args string) *Message {
	return &Message{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_" + name, Name: name, Arguments: args}}}
}

type invocation struct {
	name string
	args map[string]any
}

// fakeInvoker returns canned raw results per tool name.
type fakeInvoker struct {
	mu      sync.Mutex
	results map[string]toolcall.RawResult
	calls   []invocation
}

func (f *fakeInvoker) Invoke(_ context.Context, name string, args map[string]any) toolcall.RawResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, invocation{name: name, args: args})
	if r, ok := f.results[name]; ok {
		return r
	}
	return &toolcall.InvocationError{Detail: "no canned result for " + name}
}

type memoryTranscripts struct {
	saved []*model.Transcript
}

func (m *memoryTranscripts) SaveTranscript(t *model.Transcript) error {
	m.saved = append(m.saved, t)
	return nil
}

func (m *memoryTranscripts) GetTranscript(id string) (*model.Transcript, error) {
	for _, t := range m.saved {
		if t.SessionID == id {
			return t, nil
		}
	}
	return nil, nil
}

type memoryRuns struct {
	runs []*model.RunRecord
}

func (m *memoryRuns) SaveRun(r *model.RunRecord) error {
	m.runs = append(m.runs, r)
	return nil
}

func (m *memoryRuns) GetRuns(string, int) ([]*model.RunRecord, error) {
	return m.runs, nil
}
