// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/jolks/mcp-toolchat/internal/logging"
	"github.com/jolks/mcp-toolchat/internal/model"
)

// PromptRunner answers scheduled prompts, each in a fresh session.
type PromptRunner struct {
	controller *Controller
	runs       model.RunStore
	logger     *logging.Logger
}

// NewPromptRunner creates a runner. runs may be nil.
func NewPromptRunner(controller *Controller, runs model.RunStore, logger *logging.Logger) *PromptRunner {
	return &PromptRunner{controller: controller, runs: runs, logger: logger}
}

// RunPrompt sends p.Prompt through a new session bounded by timeout and
// records the outcome.
func (r *PromptRunner) RunPrompt(ctx context.Context, p *model.ScheduledPrompt, timeout time.Duration) (*model.RunRecord, error) {
	if p.ID == "" || p.Prompt == "" {
		return nil, fmt.Errorf("invalid scheduled prompt: missing ID or Prompt")
	}

	session := NewSession(model.ChannelScheduled)
	run := &model.RunRecord{
		ScheduleID: p.ID,
		SessionID:  session.ID,
		Prompt:     p.Prompt,
		StartTime:  time.Now(),
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply, err := r.controller.Respond(runCtx, session, p.Prompt)

	run.EndTime = time.Now()
	run.Duration = run.EndTime.Sub(run.StartTime).String()
	run.Stop = string(reply.Stop)
	if err != nil {
		run.Error = err.Error()
		run.Output = fmt.Sprintf("Error answering scheduled prompt: %v", err)
	} else {
		run.Output = reply.Text
		if limitErr := reply.Err(); limitErr != nil {
			run.Error = limitErr.Error()
		}
	}

	if endErr := r.controller.EndSession(session); endErr != nil {
		r.logger.Warnf("Failed to persist transcript for schedule %s: %v", p.ID, endErr)
	}
	model.PersistAndLogRun(r.runs, run, r.logger)

	if run.Error != "" {
		return run, fmt.Errorf("%s", run.Error)
	}
	return run, nil
}
