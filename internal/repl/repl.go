// SPDX-License-Identifier: AGPL-3.0-only

// Package repl is the terminal chat loop.
package repl

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dimiro1/banner"

	"github.com/jolks/mcp-toolchat/internal/agent"
	"github.com/jolks/mcp-toolchat/internal/logging"
	"github.com/jolks/mcp-toolchat/internal/model"
)

// Conversation answers user messages within a session.
type Conversation interface {
	Respond(ctx context.Context, s *agent.Session, userText string) (agent.Reply, error)
	EndSession(s *agent.Session) error
}

// REPL reads user lines and prints the model's replies.
type REPL struct {
	conv      Conversation
	schedules Schedules
	runs      model.RunStore
	in        io.Reader
	out       io.Writer
	logger    *logging.Logger
	title     string
	version   string
}

// New creates a REPL over in and out.
func New(conv Conversation, in io.Reader, out io.Writer, logger *logging.Logger) *REPL {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &REPL{
		conv:    conv,
		in:      in,
		out:     out,
		logger:  logger,
		title:   "TOOLCHAT",
		version: "dev",
	}
}

// WithVersion sets the version printed under the banner.
func (r *REPL) WithVersion(v string) *REPL {
	r.version = v
	return r
}

func (r *REPL) printBanner() {
	tpl := fmt.Sprintf("{{ .Title %q \"\" 0 }}\nVersion: %s\nType 'exit' to quit, '/help' for commands.\n", r.title, r.version)
	banner.Init(r.out, true, false, bytes.NewBufferString(tpl))
}

// Run drives one session until the user types exit, input ends or ctx is
// cancelled. Errors from a single exchange are logged and the loop goes on.
func (r *REPL) Run(ctx context.Context) error {
	r.printBanner()

	session := agent.NewSession(model.ChannelTerminal)
	logger := r.logger.WithField("session_id", session.ID)
	logger.Infof("Terminal session started")
	defer func() {
		if err := r.conv.EndSession(session); err != nil {
			logger.Errorf("Failed to save transcript: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines, scanErr := r.readLines(ctx)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprint(r.out, "You: ")
		var text string
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out)
				return <-scanErr
			}
			text = l
		}

		line := strings.TrimSpace(text)
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "exit") {
			fmt.Fprintln(r.out, "Goodbye.")
			return nil
		}
		if strings.HasPrefix(line, "/") {
			r.command(ctx, line)
			continue
		}

		reply, err := r.conv.Respond(ctx, session, line)
		if err != nil {
			logger.Errorf("Exchange failed: %v", err)
			fmt.Fprintf(r.out, "Error: %v\n", err)
			continue
		}
		if reply.Stop != agent.StopText {
			logger.Warnf("Reply ended with %s after %d iterations", reply.Stop, reply.Iterations)
		}
		fmt.Fprintf(r.out, "Assistant: %s\n", reply.Text)
	}
}

// readLines scans input on its own goroutine so Run can return on ctx
// cancellation while a read is blocked. The goroutine exits once the
// pending read returns.
func (r *REPL) readLines(ctx context.Context) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		errc <- scanner.Err()
	}()
	return lines, errc
}
