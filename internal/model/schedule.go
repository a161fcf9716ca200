// SPDX-License-Identifier: AGPL-3.0-only
package model

import (
	"context"
	"time"
)

// ScheduleStatus is the state of a scheduled prompt.
type ScheduleStatus string

const (
	StatusPending   ScheduleStatus = "pending"
	StatusRunning   ScheduleStatus = "running"
	StatusCompleted ScheduleStatus = "completed"
	StatusFailed    ScheduleStatus = "failed"
	StatusDisabled  ScheduleStatus = "disabled"
)

// ScheduledPrompt is a prompt sent to the model on a cron schedule.
type ScheduledPrompt struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Schedule string         `json:"schedule"`
	Prompt   string         `json:"prompt"`
	Enabled  bool           `json:"enabled"`
	Status   ScheduleStatus `json:"status"`
	LastRun  time.Time      `json:"last_run,omitempty"`
	NextRun  time.Time      `json:"next_run,omitempty"`
}

// RunRecord is the outcome of one scheduled prompt run.
type RunRecord struct {
	ScheduleID string    `json:"schedule_id"`
	SessionID  string    `json:"session_id"`
	Prompt     string    `json:"prompt"`
	Output     string    `json:"output"`
	Stop       string    `json:"stop,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Duration   string    `json:"duration"`
}

// RunStore persists scheduled prompt runs.
type RunStore interface {
	SaveRun(run *RunRecord) error
	GetRuns(scheduleID string, limit int) ([]*RunRecord, error)
}

// PromptRunner answers a prompt in a fresh conversation.
type PromptRunner interface {
	RunPrompt(ctx context.Context, p *ScheduledPrompt, timeout time.Duration) (*RunRecord, error)
}
