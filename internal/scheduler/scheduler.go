// SPDX-License-Identifier: AGPL-3.0-only
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/jolks/mcp-toolchat/internal/config"
	"github.com/jolks/mcp-toolchat/internal/errors"
	"github.com/jolks/mcp-toolchat/internal/logging"
	"github.com/jolks/mcp-toolchat/internal/model"
)

// Scheduler sends prompts to the model on cron schedules.
type Scheduler struct {
	cron     *cron.Cron
	prompts  map[string]*model.ScheduledPrompt
	entryIDs map[string]cron.EntryID
	mu       sync.RWMutex
	runner   model.PromptRunner
	config   *config.SchedulerConfig
	logger   *logging.Logger
	baseCtx  context.Context
}

// NewScheduler creates a scheduler. Schedules accept an optional leading
// seconds field and descriptors such as @hourly.
func NewScheduler(cfg *config.SchedulerConfig, logger *logging.Logger) *Scheduler {
	if cfg == nil {
		cfg = &config.SchedulerConfig{DefaultTimeout: 10 * time.Minute}
	}
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}

	return &Scheduler{
		cron: cron.New(
			cron.WithParser(cron.NewParser(
				cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
			cron.WithChain(
				cron.Recover(cron.DefaultLogger),
			),
		),
		prompts:  make(map[string]*model.ScheduledPrompt),
		entryIDs: make(map[string]cron.EntryID),
		config:   cfg,
		logger:   logger,
		baseCtx:  context.Background(),
	}
}

// Start begins firing schedules. Runs started afterwards inherit ctx, and the
// scheduler stops when ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.cron.Start()

	go func() {
		<-ctx.Done()
		if err := s.Stop(); err != nil {
			s.logger.Errorf("Error stopping scheduler: %v", err)
		}
	}()
}

// Stop halts the scheduler and waits for running prompts to finish.
func (s *Scheduler) Stop() error {
	<-s.cron.Stop().Done()
	return nil
}

// SetPromptRunner sets the runner that answers scheduled prompts.
func (s *Scheduler) SetPromptRunner(runner model.PromptRunner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runner = runner
}

// NewPrompt creates a disabled prompt with a fresh ID.
func NewPrompt(name, schedule, prompt string) *model.ScheduledPrompt {
	return &model.ScheduledPrompt{
		ID:       uuid.NewString(),
		Name:     name,
		Schedule: schedule,
		Prompt:   prompt,
		Status:   model.StatusPending,
	}
}

// AddPrompt registers p and schedules it when enabled.
func (s *Scheduler) AddPrompt(p *model.ScheduledPrompt) error {
	if p == nil || p.ID == "" {
		return errors.InvalidInput("scheduled prompt needs an id")
	}
	if p.Prompt == "" {
		return errors.InvalidInput(fmt.Sprintf("scheduled prompt %s has no prompt text", p.ID))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.prompts[p.ID]; exists {
		return errors.AlreadyExists("scheduled prompt", p.ID)
	}
	s.prompts[p.ID] = p

	if !p.Enabled {
		p.Status = model.StatusDisabled
		return nil
	}
	if err := s.schedule(p); err != nil {
		p.Status = model.StatusFailed
		return err
	}
	return nil
}

// LoadSchedules adds the prompts declared in configuration. Each entry's name
// becomes its ID.
func (s *Scheduler) LoadSchedules(schedules []config.ScheduleConfig) error {
	for _, sc := range schedules {
		p := &model.ScheduledPrompt{
			ID:       sc.Name,
			Name:     sc.Name,
			Schedule: sc.Schedule,
			Prompt:   sc.Prompt,
			Enabled:  sc.Enabled,
			Status:   model.StatusPending,
		}
		if err := s.AddPrompt(p); err != nil {
			return fmt.Errorf("load schedule %q: %w", sc.Name, err)
		}
		s.logger.Infof("Loaded schedule %s (%s)", sc.Name, sc.Schedule)
	}
	return nil
}

// RemovePrompt unschedules and forgets a prompt.
func (s *Scheduler) RemovePrompt(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.prompts[id]; !exists {
		return errors.NotFound("scheduled prompt", id)
	}
	s.unschedule(id)
	delete(s.prompts, id)
	return nil
}

// EnablePrompt schedules a disabled prompt.
func (s *Scheduler) EnablePrompt(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.prompts[id]
	if !exists {
		return errors.NotFound("scheduled prompt", id)
	}
	if p.Enabled {
		return nil
	}

	p.Enabled = true
	p.Status = model.StatusPending
	if err := s.schedule(p); err != nil {
		p.Status = model.StatusFailed
		return err
	}
	return nil
}

// DisablePrompt stops scheduling a prompt without forgetting it.
func (s *Scheduler) DisablePrompt(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.prompts[id]
	if !exists {
		return errors.NotFound("scheduled prompt", id)
	}
	if !p.Enabled {
		return nil
	}

	s.unschedule(id)
	p.Enabled = false
	p.Status = model.StatusDisabled
	p.NextRun = time.Time{}
	return nil
}

// GetPrompt returns a snapshot of a prompt.
func (s *Scheduler) GetPrompt(id string) (model.ScheduledPrompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.prompts[id]
	if !exists {
		return model.ScheduledPrompt{}, errors.NotFound("scheduled prompt", id)
	}
	return *p, nil
}

// ListPrompts returns snapshots of every prompt ordered by ID.
func (s *Scheduler) ListPrompts() []model.ScheduledPrompt {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prompts := make([]model.ScheduledPrompt, 0, len(s.prompts))
	for _, p := range s.prompts {
		prompts = append(prompts, *p)
	}
	sort.Slice(prompts, func(i, j int) bool { return prompts[i].ID < prompts[j].ID })
	return prompts
}

// RunNow answers a prompt immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, id string) (*model.RunRecord, error) {
	s.mu.RLock()
	_, exists := s.prompts[id]
	runner := s.runner
	s.mu.RUnlock()

	if !exists {
		return nil, errors.NotFound("scheduled prompt", id)
	}
	if runner == nil {
		return nil, fmt.Errorf("cannot run prompt %s: no prompt runner set", id)
	}
	return s.run(ctx, id)
}

// schedule adds p to cron. Callers hold s.mu.
func (s *Scheduler) schedule(p *model.ScheduledPrompt) error {
	if s.runner == nil {
		return fmt.Errorf("cannot schedule prompt %s: no prompt runner set", p.ID)
	}

	id := p.ID
	entryID, err := s.cron.AddFunc(p.Schedule, func() {
		s.mu.RLock()
		ctx := s.baseCtx
		s.mu.RUnlock()
		if _, err := s.run(ctx, id); err != nil {
			s.logger.Warnf("Scheduled prompt %s failed: %v", id, err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule prompt %s: %w", p.ID, err)
	}

	s.entryIDs[p.ID] = entryID
	p.NextRun = s.cron.Entry(entryID).Next
	return nil
}

// unschedule removes the cron entry of id. Callers hold s.mu.
func (s *Scheduler) unschedule(id string) {
	if entryID, exists := s.entryIDs[id]; exists {
		s.cron.Remove(entryID)
		delete(s.entryIDs, id)
	}
}

// run answers one prompt and records its status.
func (s *Scheduler) run(ctx context.Context, id string) (*model.RunRecord, error) {
	s.mu.Lock()
	p, exists := s.prompts[id]
	if !exists {
		// removed between dispatch and execution
		s.mu.Unlock()
		return nil, errors.NotFound("scheduled prompt", id)
	}
	p.LastRun = time.Now()
	p.Status = model.StatusRunning
	snapshot := *p
	runner := s.runner
	s.mu.Unlock()

	run, err := runner.RunPrompt(ctx, &snapshot, s.config.DefaultTimeout)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		p.Status = model.StatusFailed
	} else {
		p.Status = model.StatusCompleted
	}
	if entryID, ok := s.entryIDs[id]; ok {
		p.NextRun = s.cron.Entry(entryID).Next
	}
	return run, err
}
