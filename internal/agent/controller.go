// SPDX-License-Identifier: AGPL-3.0-only

// Package agent runs the conversation loop between a chat model and the
// tool registry: it asks the model for a turn, dispatches a requested tool,
// feeds the normalized result back and stops at the first text reply.
package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jolks/mcp-toolchat/internal/logging"
	"github.com/jolks/mcp-toolchat/internal/model"
	"github.com/jolks/mcp-toolchat/internal/toolcall"
	"github.com/jolks/mcp-toolchat/internal/tools"
	"github.com/jolks/mcp-toolchat/internal/utils"
)

const (
	// FallbackMessage answers a model turn with neither text nor a tool call.
	FallbackMessage = "The model did not provide a text response."
	// IterationLimitMessage answers a turn that kept requesting tools.
	IterationLimitMessage = "I could not finish answering within the allowed number of tool calls. Please try rephrasing your question."

	defaultMaxIterations = 10
)

// ErrIterationLimit is reported by Reply.Err when the tool loop was cut short.
var ErrIterationLimit = errors.New("tool loop exceeded maximum iterations")

// StopReason records why Respond returned.
type StopReason string

const (
	StopText           StopReason = "text"
	StopMalformed      StopReason = "malformed"
	StopIterationLimit StopReason = "iteration_limit"
)

// Reply is the outcome of one user message.
type Reply struct {
	Text       string
	Stop       StopReason
	Iterations int // completions requested
	ToolCalls  int // tool results produced
}

// Err returns ErrIterationLimit when the loop hit its bound, nil otherwise.
func (r Reply) Err() error {
	if r.Stop == StopIterationLimit {
		return ErrIterationLimit
	}
	return nil
}

// Invoker executes a tool on the remote endpoint.
type Invoker interface {
	Invoke(ctx context.Context, toolName string, args map[string]any) toolcall.RawResult
}

// ToolResultHook observes every tool result before it is sent to the model.
type ToolResultHook func(toolName string, args map[string]any, result toolcall.ToolResult)

// Options configure a Controller.
type Options struct {
	Model         string
	SystemPrompt  string
	MaxIterations int
	Logger        *logging.Logger
	Transcripts   model.TranscriptStore
	OnToolResult  ToolResultHook
}

// Controller drives conversations. It holds no per-conversation state and
// may serve many sessions at once.
type Controller struct {
	provider ChatProvider
	registry *tools.Registry
	invoker  Invoker
	tools    []ToolDefinition
	opts     Options
	logger   *logging.Logger
}

// NewController wires a provider, a populated registry and an invoker.
func NewController(provider ChatProvider, registry *tools.Registry, invoker Invoker, opts Options) *Controller {
	if opts.MaxIterations < 1 {
		opts.MaxIterations = defaultMaxIterations
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &Controller{
		provider: provider,
		registry: registry,
		invoker:  invoker,
		tools:    DefinitionsFrom(registry.Definitions()),
		opts:     opts,
		logger:   logger,
	}
}

// Respond appends userText to the session and runs the tool loop until the
// model answers with text. A provider failure is returned as an error and
// leaves the session as it was before the call.
func (c *Controller) Respond(ctx context.Context, s *Session, userText string) (Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := c.logger.WithField("session_id", s.ID)
	checkpoint := len(s.messages)
	s.messages = append(s.messages, Message{Role: RoleUser, Content: userText})

	var reply Reply
	for reply.Iterations < c.opts.MaxIterations {
		reply.Iterations++
		logger.Debugf("Requesting completion, iteration %d", reply.Iterations)

		resp, err := c.provider.CreateCompletion(ctx, c.opts.Model, c.opts.SystemPrompt, s.messages, c.tools)
		if err != nil {
			s.messages = s.messages[:checkpoint]
			logger.Errorf("Chat completion failed on iteration %d: %v", reply.Iterations, err)
			return reply, fmt.Errorf("iteration %d: %w", reply.Iterations, err)
		}

		turn := ClassifyTurn(resp)
		switch turn.Kind {
		case TurnText:
			s.messages = append(s.messages, Message{Role: RoleAssistant, Content: turn.Text})
			reply.Text, reply.Stop = turn.Text, StopText
			logger.Infof("Answered after %d iterations and %d tool calls", reply.Iterations, reply.ToolCalls)
			return reply, nil

		case TurnMalformed:
			logger.Warnf("Model turn had neither text nor a tool call")
			s.messages = append(s.messages, Message{Role: RoleAssistant, Content: FallbackMessage})
			reply.Text, reply.Stop = FallbackMessage, StopMalformed
			return reply, nil
		}

		call := turn.Call
		if call.ID == "" {
			call.ID = "call_" + uuid.NewString()
		}
		s.messages = append(s.messages, Message{
			Role:      RoleAssistant,
			Content:   turn.Text,
			ToolCalls: []ToolCall{call},
		})

		result := c.dispatch(ctx, logger, call)
		reply.ToolCalls++
		s.messages = append(s.messages, Message{
			Role:       RoleTool,
			Content:    result.JSON(),
			ToolCallID: call.ID,
			ToolName:   call.Name,
			IsError:    result.Kind == toolcall.KindError,
		})
	}

	logger.Warnf("Tool loop exceeded maximum iterations (%d)", c.opts.MaxIterations)
	s.messages = append(s.messages, Message{Role: RoleAssistant, Content: IterationLimitMessage})
	reply.Text, reply.Stop = IterationLimitMessage, StopIterationLimit
	return reply, nil
}

// dispatch turns one tool call into exactly one ToolResult.
func (c *Controller) dispatch(ctx context.Context, logger *logging.Logger, call ToolCall) toolcall.ToolResult {
	logger = logger.WithField("tool", call.Name)

	var args map[string]any
	spec, err := c.registry.Lookup(call.Name)
	var result toolcall.ToolResult
	switch {
	case err != nil:
		logger.Warnf("Model requested an unknown tool")
		result = toolcall.UnknownTool(call.Name)
	default:
		if err := utils.JsonUnmarshal([]byte(call.Arguments), &args); err != nil {
			result = toolcall.Error(fmt.Sprintf("invalid arguments for %s: %v", call.Name, err))
			break
		}
		args = tools.Canonicalize(spec, args)
		if missing := tools.MissingRequired(spec, args); len(missing) > 0 && spec.Guidance != nil {
			logger.Infof("Missing required arguments %v, returning guidance", missing)
			result = toolcall.UserGuidance(spec.Guidance(missing))
			break
		}
		logger.Debugf("Invoking with %d arguments", len(args))
		result = toolcall.Normalize(call.Name, c.invoker.Invoke(ctx, call.Name, args))
	}

	logger.Debugf("Tool result kind %s", result.Kind)
	if c.opts.OnToolResult != nil {
		c.opts.OnToolResult(call.Name, args, result)
	}
	return result
}

// EndSession persists the session transcript when a store is configured.
func (c *Controller) EndSession(s *Session) error {
	if c.opts.Transcripts == nil {
		return nil
	}
	if err := c.opts.Transcripts.SaveTranscript(s.Transcript()); err != nil {
		return fmt.Errorf("save transcript %s: %w", s.ID, err)
	}
	return nil
}
