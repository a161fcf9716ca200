// SPDX-License-Identifier: AGPL-3.0-only

// Package invoker calls tools on the remote MCP endpoint. Every call opens its
// own client session and closes it before returning.
package invoker

import (
	"context"
	stderrors "errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jolks/mcp-toolchat/internal/config"
	"github.com/jolks/mcp-toolchat/internal/logging"
	"github.com/jolks/mcp-toolchat/internal/toolcall"
	"github.com/jolks/mcp-toolchat/internal/tools"
)

// TransportFactory builds a fresh transport for one call.
type TransportFactory func() (mcp.Transport, error)

// Invoker dispatches tool invocations to a remote MCP endpoint.
type Invoker struct {
	newTransport TransportFactory
	timeout      time.Duration
	client       *mcp.Implementation
	logger       *logging.Logger
}

// New creates an invoker for the endpoint described by cfg.
func New(cfg config.MCPConfig, logger *logging.Logger) (*Invoker, error) {
	factory, err := transportFor(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithTransport(factory, cfg.CallTimeout, logger), nil
}

// NewWithTransport creates an invoker that connects through factory.
func NewWithTransport(factory TransportFactory, timeout time.Duration, logger *logging.Logger) *Invoker {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &Invoker{
		newTransport: factory,
		timeout:      timeout,
		client:       &mcp.Implementation{Name: "mcp-toolchat-client", Version: "0.1.0"},
		logger:       logger,
	}
}

func transportFor(cfg config.MCPConfig) (TransportFactory, error) {
	switch cfg.Transport {
	case "", "streamable":
		return func() (mcp.Transport, error) {
			return &mcp.StreamableClientTransport{Endpoint: cfg.URL}, nil
		}, nil
	case "sse":
		return func() (mcp.Transport, error) {
			return &mcp.SSEClientTransport{Endpoint: cfg.URL}, nil
		}, nil
	case "command":
		return func() (mcp.Transport, error) {
			return &mcp.CommandTransport{Command: exec.Command(cfg.Command, cfg.Args...)}, nil
		}, nil
	default:
		return nil, fmt.Errorf("unsupported mcp transport: %s", cfg.Transport)
	}
}

// connect opens a session bounded by the call timeout. The returned cancel
// must be called after the session is closed.
func (i *Invoker) connect(ctx context.Context) (*mcp.ClientSession, context.Context, context.CancelFunc, error) {
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if i.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, i.timeout)
	}

	transport, err := i.newTransport()
	if err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("failed to create transport: %w", err)
	}

	session, err := mcp.NewClient(i.client, nil).Connect(callCtx, transport, nil)
	if err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("failed to connect: %w", err)
	}
	return session, callCtx, cancel, nil
}

// Invoke calls toolName with args. Failures are reported as
// *toolcall.InvocationError rather than as a Go error.
func (i *Invoker) Invoke(ctx context.Context, toolName string, args map[string]any) toolcall.RawResult {
	start := time.Now()
	if args == nil {
		args = map[string]any{}
	}

	session, callCtx, cancel, err := i.connect(ctx)
	if err != nil {
		return i.failure(toolName, err)
	}
	defer cancel()
	defer func() { _ = session.Close() }()

	res, err := session.CallTool(callCtx, &mcp.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		if stderrors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return i.failure(toolName, fmt.Errorf("timed out after %s", i.timeout))
		}
		return i.failure(toolName, err)
	}

	i.logger.Debugf("Tool %s answered in %s", toolName, time.Since(start).Round(time.Millisecond))
	return FromCallToolResult(res)
}

func (i *Invoker) failure(toolName string, err error) *toolcall.InvocationError {
	i.logger.Warnf("Tool %s failed: %v", toolName, err)
	return &toolcall.InvocationError{Detail: fmt.Sprintf("tool %s: %v", toolName, err)}
}

// Discover lists the tools offered by the remote endpoint.
func (i *Invoker) Discover(ctx context.Context) ([]tools.Definition, error) {
	session, callCtx, cancel, err := i.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer func() { _ = session.Close() }()

	var defs []tools.Definition
	for tl, err := range session.Tools(callCtx, nil) {
		if err != nil {
			return nil, fmt.Errorf("failed to list tools: %w", err)
		}
		params, err := schemaMap(tl.InputSchema)
		if err != nil {
			i.logger.Warnf("Skipping tool %s: %v", tl.Name, err)
			continue
		}
		defs = append(defs, tools.Definition{
			Name:        tl.Name,
			Description: tl.Description,
			Parameters:  params,
		})
	}
	return defs, nil
}

// FromCallToolResult maps an MCP result onto the raw result set.
func FromCallToolResult(res *mcp.CallToolResult) toolcall.RawResult {
	if res == nil {
		return &toolcall.InvocationError{Detail: "empty tool response"}
	}

	texts := textContent(res.Content)
	if res.IsError {
		detail := strings.Join(texts, "\n")
		if detail == "" {
			detail = "tool reported an error"
		}
		return &toolcall.InvocationError{Detail: detail}
	}

	if record, ok := res.StructuredContent.(map[string]any); ok {
		return toolcall.Record(record)
	}
	if res.StructuredContent != nil {
		if record, err := schemaMap(res.StructuredContent); err == nil {
			return toolcall.Record(record)
		}
	}

	if len(texts) > 0 {
		return toolcall.Fragments(texts)
	}
	return &toolcall.InvocationError{Detail: "tool response had no usable content"}
}

func textContent(content []mcp.Content) []string {
	var out []string
	for _, c := range content {
		if tc, ok := c.(*mcp.TextContent); ok {
			out = append(out, tc.Text)
		}
	}
	return out
}
