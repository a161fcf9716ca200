// SPDX-License-Identifier: AGPL-3.0-only
package repl

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jolks/mcp-toolchat/internal/model"
	"github.com/jolks/mcp-toolchat/internal/scheduler"
)

const defaultRunsShown = 5

// Schedules manages the scheduled prompts of this process.
type Schedules interface {
	AddPrompt(p *model.ScheduledPrompt) error
	RemovePrompt(id string) error
	EnablePrompt(id string) error
	DisablePrompt(id string) error
	GetPrompt(id string) (model.ScheduledPrompt, error)
	ListPrompts() []model.ScheduledPrompt
	RunNow(ctx context.Context, id string) (*model.RunRecord, error)
}

const commandHelp = `Commands:
  /schedules                          list scheduled prompts
  /schedule <id>                      show one scheduled prompt
  /add <name> | <cron> | <prompt>     add and enable a scheduled prompt
  /enable <id>, /disable <id>         start or stop scheduling a prompt
  /remove <id>                        forget a scheduled prompt
  /run <id>                           answer a scheduled prompt now
  /runs <id> [n]                      show the last n runs
  /help                               show this help
`

// WithSchedules lets the operator manage scheduled prompts with slash
// commands. runs may be nil.
func (r *REPL) WithSchedules(s Schedules, runs model.RunStore) *REPL {
	r.schedules = s
	r.runs = runs
	return r
}

// command runs one slash command and prints its outcome.
func (r *REPL) command(ctx context.Context, line string) {
	name, rest, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	rest = strings.TrimSpace(rest)
	name = strings.ToLower(name)

	if name == "help" {
		fmt.Fprint(r.out, commandHelp)
		return
	}
	if r.schedules == nil {
		fmt.Fprintln(r.out, "Scheduled prompts are managed by another process.")
		return
	}

	var err error
	switch name {
	case "schedules":
		r.listSchedules()
	case "schedule":
		err = r.showSchedule(rest)
	case "add":
		err = r.addSchedule(rest)
	case "enable":
		if err = r.schedules.EnablePrompt(rest); err == nil {
			fmt.Fprintf(r.out, "Enabled %s.\n", rest)
		}
	case "disable":
		if err = r.schedules.DisablePrompt(rest); err == nil {
			fmt.Fprintf(r.out, "Disabled %s.\n", rest)
		}
	case "remove":
		if err = r.schedules.RemovePrompt(rest); err == nil {
			fmt.Fprintf(r.out, "Removed %s.\n", rest)
		}
	case "run":
		err = r.runSchedule(ctx, rest)
	case "runs":
		err = r.showRuns(rest)
	default:
		fmt.Fprintf(r.out, "Unknown command /%s. Type /help for the list.\n", name)
	}
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
	}
}

func (r *REPL) listSchedules() {
	prompts := r.schedules.ListPrompts()
	if len(prompts) == 0 {
		fmt.Fprintln(r.out, "No scheduled prompts.")
		return
	}
	for _, p := range prompts {
		fmt.Fprintf(r.out, "%s  %-9s  %s  %s\n", p.ID, p.Status, p.Schedule, p.Name)
	}
}

func (r *REPL) showSchedule(id string) error {
	p, err := r.schedules.GetPrompt(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "ID:       %s\n", p.ID)
	fmt.Fprintf(r.out, "Name:     %s\n", p.Name)
	fmt.Fprintf(r.out, "Schedule: %s\n", p.Schedule)
	fmt.Fprintf(r.out, "Status:   %s\n", p.Status)
	fmt.Fprintf(r.out, "Prompt:   %s\n", p.Prompt)
	if !p.LastRun.IsZero() {
		fmt.Fprintf(r.out, "Last run: %s\n", p.LastRun.Format(time.RFC3339))
	}
	if !p.NextRun.IsZero() {
		fmt.Fprintf(r.out, "Next run: %s\n", p.NextRun.Format(time.RFC3339))
	}
	return nil
}

func (r *REPL) addSchedule(args string) error {
	parts := strings.SplitN(args, "|", 3)
	if len(parts) != 3 {
		return fmt.Errorf("usage: /add <name> | <cron> | <prompt>")
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	p := scheduler.NewPrompt(parts[0], parts[1], parts[2])
	p.Enabled = true
	if err := r.schedules.AddPrompt(p); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Added %s (%s).\n", p.ID, p.Name)
	return nil
}

func (r *REPL) runSchedule(ctx context.Context, id string) error {
	run, err := r.schedules.RunNow(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Assistant: %s\n", run.Output)
	return nil
}

func (r *REPL) showRuns(args string) error {
	if r.runs == nil {
		return fmt.Errorf("run history is not recorded")
	}
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return fmt.Errorf("usage: /runs <id> [n]")
	}
	limit := defaultRunsShown
	if len(fields) > 1 {
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("invalid run count %q", fields[1])
		}
		limit = n
	}

	runs, err := r.runs.GetRuns(fields[0], limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintf(r.out, "No runs recorded for %s.\n", fields[0])
		return nil
	}
	for _, run := range runs {
		outcome := run.Output
		if run.Error != "" {
			outcome = "error: " + run.Error
		}
		fmt.Fprintf(r.out, "%s  %s  %s\n", run.StartTime.Format(time.RFC3339), run.Duration, outcome)
	}
	return nil
}
