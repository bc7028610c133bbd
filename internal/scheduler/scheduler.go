// Package scheduler implements the Task Scheduler (spec §4.7): a
// persisted task registry, a minute-tick background loop, a restricted
// cron-subset matcher (cronsubset.go), and manual triggering, all
// delegating execution to the Plugin Execution Engine. Grounded on the
// teacher repository's internal/cron.Scheduler (functional-options
// construction, Start/Stop goroutine lifecycle with a WaitGroup,
// RunJob-style manual trigger, injectable clock for deterministic tests)
// with the job-type dispatch machinery replaced by a single
// execengine.Engine.Execute call per the spec's simpler task model, and
// with the grammar restricted per cronsubset.go instead of reusing
// robfig/cron/v3 (see DESIGN.md for why that dependency was dropped).
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/execengine"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/metrics"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/models"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/registry"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger overrides the default slog.Default() logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNow overrides the clock, used by tests to control tick timing.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTickInterval overrides the wake interval (spec §4.7 default 60s).
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithMetrics attaches a Metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// Scheduler runs persisted Task records against the Execution Engine,
// reusing the same dispatch path as manual and pre-request actions.
type Scheduler struct {
	store    *TaskStore
	registry *registry.Registry
	engine   *execengine.Engine
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	tick     time.Duration

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New constructs a Scheduler backed by store, resolving actions through
// registry and executing them via engine.
func New(store *TaskStore, reg *registry.Registry, engine *execengine.Engine, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    store,
		registry: reg,
		engine:   engine,
		logger:   slog.Default(),
		now:      time.Now,
		tick:     60 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the background tick loop until ctx is cancelled or Stop is
// called. Calls made while the loop is already started (and not yet
// stopped) are no-ops.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.RunDue(ctx)
			}
		}
	}()
}

// Stop halts the tick loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.started = false
	s.mu.Unlock()
	s.wg.Wait()
}

// RunDue scans every active, scheduled task and fires those whose
// cron-subset expression matches the current clock minute and that have
// not already fired within that same minute (spec §8 scenario S6).
func (s *Scheduler) RunDue(ctx context.Context) int {
	now := s.now()
	if s.metrics != nil {
		s.metrics.SchedulerTicks.Inc()
	}

	fired := 0
	for _, task := range s.store.List() {
		if task.Status != models.TaskActive || task.Schedule == "" {
			continue
		}
		sched, err := Parse(task.Schedule)
		if err != nil {
			s.logger.Warn("task has invalid schedule", "task_id", task.ID, "schedule", task.Schedule, "error", err)
			continue
		}
		if !sched.Matches(now) {
			continue
		}
		if task.LastRun != nil && sameMinute(*task.LastRun, now) {
			continue
		}
		s.fire(ctx, task, now)
		fired++
	}
	return fired
}

// RunTask triggers a task immediately, bypassing its schedule match
// entirely (spec §4.7 "Manual trigger: runTask(id)").
func (s *Scheduler) RunTask(ctx context.Context, id string) (execengine.Result, error) {
	task, ok := s.store.Get(id)
	if !ok {
		return execengine.Result{}, fmt.Errorf("task %q not found", id)
	}
	return s.fire(ctx, task, s.now()), nil
}

func (s *Scheduler) fire(ctx context.Context, task models.Task, now time.Time) execengine.Result {
	if err := s.registry.Scan(task.UserID); err != nil {
		s.logger.Warn("task registry rescan failed", "task_id", task.ID, "error", err)
	}

	action, plugin, ok := s.registry.GetAction(task.ActionName)
	var result execengine.Result
	if !ok {
		result = execengine.Result{Status: execengine.StatusError, Error: fmt.Sprintf("action %q not found", task.ActionName)}
	} else {
		result = s.engine.Execute(ctx, plugin, action, task.Args, execengine.Context{
			UserID:      task.UserID,
			ExecutionID: uuid.New().String(),
		}, nil)
	}

	if s.metrics != nil {
		s.metrics.SchedulerTasksFired.WithLabelValues(task.Name, string(result.Status)).Inc()
	}
	if result.Status == execengine.StatusError {
		s.logger.Warn("scheduled task failed", "task_id", task.ID, "action", task.ActionName, "error", result.Error)
	} else {
		s.logger.Info("scheduled task ran", "task_id", task.ID, "action", task.ActionName)
	}

	if err := s.store.RecordRun(task.ID, now, nil); err != nil {
		s.logger.Warn("failed to record task run", "task_id", task.ID, "error", err)
	}
	return result
}

func sameMinute(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd && a.Hour() == b.Hour() && a.Minute() == b.Minute()
}
