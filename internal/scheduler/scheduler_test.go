// SPDX-License-Identifier: AGPL-3.0-only
package scheduler

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jolks/mcp-toolchat/internal/config"
	"github.com/jolks/mcp-toolchat/internal/errors"
	"github.com/jolks/mcp-toolchat/internal/logging"
	"github.com/jolks/mcp-toolchat/internal/model"
)

// MockPromptRunner implements model.PromptRunner for testing
type MockPromptRunner struct {
	mu      sync.Mutex
	calls   []string
	RunFunc func(ctx context.Context, p *model.ScheduledPrompt, timeout time.Duration) (*model.RunRecord, error)
}

func (m *MockPromptRunner) RunPrompt(ctx context.Context, p *model.ScheduledPrompt, timeout time.Duration) (*model.RunRecord, error) {
	m.mu.Lock()
	m.calls = append(m.calls, p.ID)
	m.mu.Unlock()
	if m.RunFunc != nil {
		return m.RunFunc(ctx, p, timeout)
	}
	return &model.RunRecord{ScheduleID: p.ID, Prompt: p.Prompt, Output: "done"}, nil
}

func (m *MockPromptRunner) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func newTestScheduler() *Scheduler {
	logger := logging.New(logging.Options{Output: io.Discard, Level: logging.Error})
	return NewScheduler(&config.SchedulerConfig{DefaultTimeout: time.Minute}, logger)
}

func testPrompt(id string, enabled bool) *model.ScheduledPrompt {
	return &model.ScheduledPrompt{
		ID:       id,
		Name:     id,
		Schedule: "* * * * * *",
		Prompt:   "List the available competitors",
		Enabled:  enabled,
		Status:   model.StatusPending,
	}
}

func TestNewScheduler(t *testing.T) {
	s := NewScheduler(nil, nil)
	if s == nil {
		t.Fatal("NewScheduler() returned nil")
	}
	if s.cron == nil {
		t.Error("Scheduler.cron is nil")
	}
	if s.config.DefaultTimeout == 0 {
		t.Error("Expected a default timeout")
	}
}

func TestAddGetPrompt(t *testing.T) {
	s := newTestScheduler()
	s.SetPromptRunner(&MockPromptRunner{})

	if err := s.AddPrompt(testPrompt("digest", true)); err != nil {
		t.Fatalf("Failed to add prompt: %v", err)
	}

	got, err := s.GetPrompt("digest")
	if err != nil {
		t.Fatalf("Failed to get prompt: %v", err)
	}
	if got.Prompt != "List the available competitors" {
		t.Errorf("Expected prompt text to survive, got %q", got.Prompt)
	}
	if _, ok := s.entryIDs["digest"]; !ok {
		t.Error("Enabled prompt should have a cron entry")
	}

	if _, err := s.GetPrompt("missing"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestAddPromptValidation(t *testing.T) {
	s := newTestScheduler()
	s.SetPromptRunner(&MockPromptRunner{})

	if err := s.AddPrompt(nil); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil prompt, got %v", err)
	}
	p := testPrompt("empty", true)
	p.Prompt = ""
	if err := s.AddPrompt(p); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty prompt, got %v", err)
	}

	if err := s.AddPrompt(testPrompt("dup", false)); err != nil {
		t.Fatalf("Failed to add prompt: %v", err)
	}
	if err := s.AddPrompt(testPrompt("dup", false)); !errors.Is(err, errors.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}

	bad := testPrompt("bad-cron", true)
	bad.Schedule = "not a schedule"
	if err := s.AddPrompt(bad); err == nil {
		t.Error("Expected invalid cron expression to fail")
	}
	if bad.Status != model.StatusFailed {
		t.Errorf("Expected status %s, got %s", model.StatusFailed, bad.Status)
	}
}

func TestMissingPromptRunner(t *testing.T) {
	s := newTestScheduler()

	if err := s.AddPrompt(testPrompt("enabled", true)); err == nil {
		t.Error("Expected AddPrompt to fail with no runner, but it succeeded")
	}

	if err := s.AddPrompt(testPrompt("disabled", false)); err != nil {
		t.Fatalf("Failed to add disabled prompt: %v", err)
	}
	if err := s.EnablePrompt("disabled"); err == nil {
		t.Error("Expected EnablePrompt to fail with no runner, but it succeeded")
	}
	got, _ := s.GetPrompt("disabled")
	if got.Status != model.StatusFailed {
		t.Errorf("Expected status %s after error, got %s", model.StatusFailed, got.Status)
	}
}

func TestListAndRemovePrompts(t *testing.T) {
	s := newTestScheduler()
	s.SetPromptRunner(&MockPromptRunner{})

	for _, id := range []string{"b", "a", "c"} {
		if err := s.AddPrompt(testPrompt(id, true)); err != nil {
			t.Fatalf("Failed to add prompt %s: %v", id, err)
		}
	}

	list := s.ListPrompts()
	if len(list) != 3 || list[0].ID != "a" || list[2].ID != "c" {
		t.Fatalf("Expected prompts ordered a, b, c, got %+v", list)
	}

	if err := s.RemovePrompt("b"); err != nil {
		t.Fatalf("Failed to remove prompt: %v", err)
	}
	if _, ok := s.entryIDs["b"]; ok {
		t.Error("Removed prompt still has a cron entry")
	}
	if len(s.ListPrompts()) != 2 {
		t.Errorf("Expected 2 prompts after removal, got %d", len(s.ListPrompts()))
	}
	if err := s.RemovePrompt("b"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestEnableDisablePrompt(t *testing.T) {
	s := newTestScheduler()
	s.SetPromptRunner(&MockPromptRunner{})

	if err := s.AddPrompt(testPrompt("toggle", false)); err != nil {
		t.Fatalf("Failed to add prompt: %v", err)
	}
	got, _ := s.GetPrompt("toggle")
	if got.Status != model.StatusDisabled {
		t.Errorf("Expected status %s, got %s", model.StatusDisabled, got.Status)
	}

	if err := s.EnablePrompt("toggle"); err != nil {
		t.Fatalf("Failed to enable prompt: %v", err)
	}
	if _, ok := s.entryIDs["toggle"]; !ok {
		t.Error("Enabled prompt should have a cron entry")
	}

	if err := s.DisablePrompt("toggle"); err != nil {
		t.Fatalf("Failed to disable prompt: %v", err)
	}
	got, _ = s.GetPrompt("toggle")
	if got.Enabled || got.Status != model.StatusDisabled {
		t.Errorf("Expected disabled prompt, got %+v", got)
	}
	if _, ok := s.entryIDs["toggle"]; ok {
		t.Error("Disabled prompt still has a cron entry")
	}

	if err := s.EnablePrompt("missing"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestLoadSchedules(t *testing.T) {
	s := newTestScheduler()
	s.SetPromptRunner(&MockPromptRunner{})

	err := s.LoadSchedules([]config.ScheduleConfig{
		{Name: "morning", Schedule: "0 9 * * *", Prompt: "Latest filing for Acme", Enabled: true},
		{Name: "weekly", Schedule: "@weekly", Prompt: "Search SIC 62020", Enabled: false},
	})
	if err != nil {
		t.Fatalf("LoadSchedules: %v", err)
	}

	morning, err := s.GetPrompt("morning")
	if err != nil {
		t.Fatalf("Failed to get prompt: %v", err)
	}
	if !morning.Enabled || morning.Schedule != "0 9 * * *" {
		t.Errorf("Unexpected prompt loaded: %+v", morning)
	}
	if _, ok := s.entryIDs["weekly"]; ok {
		t.Error("Disabled schedule should not be scheduled")
	}

	err = s.LoadSchedules([]config.ScheduleConfig{{Name: "morning", Schedule: "@daily", Prompt: "again"}})
	if !errors.Is(err, errors.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists for a repeated name, got %v", err)
	}
}

func TestRunNow(t *testing.T) {
	s := newTestScheduler()
	runner := &MockPromptRunner{}
	s.SetPromptRunner(runner)

	if err := s.AddPrompt(testPrompt("manual", false)); err != nil {
		t.Fatalf("Failed to add prompt: %v", err)
	}

	run, err := s.RunNow(context.Background(), "manual")
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if run.Output != "done" {
		t.Errorf("Expected output 'done', got %q", run.Output)
	}
	got, _ := s.GetPrompt("manual")
	if got.Status != model.StatusCompleted {
		t.Errorf("Expected status %s, got %s", model.StatusCompleted, got.Status)
	}
	if got.LastRun.IsZero() {
		t.Error("Expected LastRun to be set")
	}

	if _, err := s.RunNow(context.Background(), "missing"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestScheduledRunsAndFailures(t *testing.T) {
	s := newTestScheduler()
	ran := make(chan string, 10)
	runner := &MockPromptRunner{
		RunFunc: func(ctx context.Context, p *model.ScheduledPrompt, timeout time.Duration) (*model.RunRecord, error) {
			if timeout != time.Minute {
				t.Errorf("Expected configured timeout, got %v", timeout)
			}
			defer func() { ran <- p.ID }()
			if p.ID == "failing" {
				return &model.RunRecord{ScheduleID: p.ID, Error: "boom"}, fmt.Errorf("boom")
			}
			return &model.RunRecord{ScheduleID: p.ID}, nil
		},
	}
	s.SetPromptRunner(runner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer func() {
		if err := s.Stop(); err != nil {
			t.Logf("Failed to stop scheduler: %v", err)
		}
	}()

	if err := s.AddPrompt(testPrompt("working", true)); err != nil {
		t.Fatalf("Failed to add prompt: %v", err)
	}
	if err := s.AddPrompt(testPrompt("failing", true)); err != nil {
		t.Fatalf("Failed to add prompt: %v", err)
	}

	seen := map[string]bool{}
	deadline := time.After(3 * time.Second)
	for len(seen) < 2 {
		select {
		case id := <-ran:
			seen[id] = true
		case <-deadline:
			t.Fatalf("Timed out waiting for scheduled runs, saw %v", seen)
		}
	}

	// run() records the status after RunPrompt returns
	time.Sleep(50 * time.Millisecond)

	working, _ := s.GetPrompt("working")
	if working.Status != model.StatusCompleted && working.Status != model.StatusRunning {
		t.Errorf("Expected working prompt to complete, got %s", working.Status)
	}
	failing, _ := s.GetPrompt("failing")
	if failing.Status != model.StatusFailed && failing.Status != model.StatusRunning {
		t.Errorf("Expected failing prompt to fail, got %s", failing.Status)
	}
	if working.NextRun.IsZero() {
		t.Error("Expected NextRun to be set while the scheduler runs")
	}
}

func TestNewPrompt(t *testing.T) {
	p := NewPrompt("digest", "@daily", "Summarise sample.csv")
	if p.ID == "" {
		t.Error("Expected a generated ID")
	}
	if p.Enabled {
		t.Error("New prompts start disabled")
	}
	if p.Status != model.StatusPending {
		t.Errorf("Expected status %s, got %s", model.StatusPending, p.Status)
	}
	if NewPrompt("a", "@daily", "x").ID == p.ID {
		t.Error("Expected distinct IDs")
	}
}
