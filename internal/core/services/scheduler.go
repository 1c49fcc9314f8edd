package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/lakegate/internal/core/domain"
	"github.com/custodia-labs/lakegate/internal/core/ports/driven"
	"github.com/custodia-labs/lakegate/internal/core/ports/driving"
	"github.com/custodia-labs/lakegate/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// taskNames are the display names of the built-in tasks.
var taskNames = map[string]string{
	domain.TaskIDPipelineRun: "Pipeline Run",
	domain.TaskIDReconcile:   "Reconcile Stale Sources",
	domain.TaskIDPruneRuns:   "Prune Run History",
}

// Scheduler manages background task execution.
// It is a pure core service with no external control API beyond Trigger.
type Scheduler struct {
	config      domain.SchedulerConfig
	store       driven.SchedulerStore
	coordinator driving.Coordinator
	router      driving.Router
	runs        driven.RunStore
	keepRuns    int

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	trigger chan struct{}
	active  map[string]bool
	wg      sync.WaitGroup

	tick time.Duration
}

// NewScheduler creates a scheduler with configuration.
// router and runs may be nil, which disables the matching tasks.
func NewScheduler(
	config domain.SchedulerConfig,
	store driven.SchedulerStore,
	coordinator driving.Coordinator,
	router driving.Router,
	runs driven.RunStore,
	keepRuns int,
) *Scheduler {
	return &Scheduler{
		config:      config,
		store:       store,
		coordinator: coordinator,
		router:      router,
		runs:        runs,
		keepRuns:    keepRuns,
		trigger:     make(chan struct{}, 1),
		active:      make(map[string]bool),
		tick:        1 * time.Minute,
	}
}

// Start begins the scheduler loop. This method blocks until Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	// Initialise tasks in store
	if err := s.initialiseTasks(ctx); err != nil {
		logger.Error("scheduler: failed to initialise tasks: %v", err)
	}

	// Run the main scheduler loop
	return s.run(ctx)
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	// Wait for running tasks to complete
	s.wg.Wait()

	return nil
}

// Trigger requests an immediate pipeline run. Requests made while one is
// already pending are coalesced.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// initialiseTasks ensures all configured tasks exist in the store.
func (s *Scheduler) initialiseTasks(ctx context.Context) error {
	for _, id := range []string{domain.TaskIDPipelineRun, domain.TaskIDReconcile, domain.TaskIDPruneRuns} {
		taskCfg := s.config.GetTaskConfig(id)
		if !taskCfg.Enabled {
			continue
		}
		if err := s.ensureTask(ctx, id, taskNames[id], taskCfg); err != nil {
			return err
		}
	}
	return nil
}

// ensureTask creates or updates a task in the store.
func (s *Scheduler) ensureTask(ctx context.Context, id, name string, cfg domain.TaskConfig) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	if task == nil {
		// New tasks are due immediately so serve does useful work on startup.
		task = &domain.ScheduledTask{
			ID:       id,
			Name:     name,
			Interval: cfg.Interval,
			Enabled:  cfg.Enabled,
			NextRun:  time.Now(),
		}
	} else {
		// Update interval if changed
		if task.Interval != cfg.Interval {
			task.Interval = cfg.Interval
			// Recalculate next run from now
			task.NextRun = time.Now().Add(cfg.Interval)
		}
		task.Enabled = cfg.Enabled
	}

	return s.store.SaveTask(ctx, task)
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context) error {
	// Check for due tasks immediately on startup
	s.checkAndRunDueTasks(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.checkAndRunDueTasks(ctx)
		case <-s.trigger:
			s.runTaskByID(ctx, domain.TaskIDPipelineRun)
		}
	}
}

// checkAndRunDueTasks finds and executes tasks that are due.
func (s *Scheduler) checkAndRunDueTasks(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		logger.Error("scheduler: failed to list tasks: %v", err)
		return
	}

	now := time.Now()
	for i := range tasks {
		task := &tasks[i]
		if !task.Enabled {
			continue
		}
		if task.NextRun.IsZero() || !task.NextRun.After(now) {
			s.runTask(ctx, task)
		}
	}
}

func (s *Scheduler) runTaskByID(ctx context.Context, id string) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil || task == nil {
		logger.Warn("scheduler: task %s not available: %v", id, err)
		return
	}
	s.runTask(ctx, task)
}

// runTask executes a single task unless the same task is still running.
func (s *Scheduler) runTask(ctx context.Context, task *domain.ScheduledTask) {
	s.mu.Lock()
	if s.active[task.ID] {
		s.mu.Unlock()
		logger.Debug("scheduler: %s still running, skipping", task.ID)
		return
	}
	s.active[task.ID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.active, task.ID)
			s.mu.Unlock()
		}()

		result := &domain.TaskResult{
			TaskID:    task.ID,
			StartedAt: time.Now(),
		}

		var err error
		switch task.ID {
		case domain.TaskIDPipelineRun:
			result.RunID, result.ItemsProcessed, err = s.runPipeline(ctx)
		case domain.TaskIDReconcile:
			result.ItemsProcessed, err = s.runReconcile(ctx)
		case domain.TaskIDPruneRuns:
			err = s.runPrune(ctx)
		default:
			logger.Warn("scheduler: unknown task ID: %s", task.ID)
			return
		}

		result.EndedAt = time.Now()
		if err != nil {
			result.Success = false
			result.Error = err.Error()
			task.LastError = err.Error()
		} else {
			result.Success = true
			task.LastError = ""
			task.LastSuccess = result.EndedAt
		}

		// Update task state
		task.LastRun = result.StartedAt
		task.NextRun = result.EndedAt.Add(task.Interval)

		if saveErr := s.store.SaveTask(ctx, task); saveErr != nil {
			logger.Error("scheduler: failed to save task %s: %v", task.ID, saveErr)
		}

		// Record result for history
		if recordErr := s.store.RecordResult(ctx, result); recordErr != nil {
			logger.Error("scheduler: failed to record result for %s: %v", task.ID, recordErr)
		}

		// Prune old history (keep last 100 results per task)
		if pruneErr := s.store.PruneHistory(ctx, 100); pruneErr != nil {
			logger.Error("scheduler: failed to prune history: %v", pruneErr)
		}
	}()
}

// runPipeline runs one batch. Unevaluated items fail the task so the
// scheduler history shows infrastructure trouble.
func (s *Scheduler) runPipeline(ctx context.Context) (string, int, error) {
	if s.coordinator == nil {
		return "", 0, nil
	}
	result, err := s.coordinator.Run(ctx)
	if result == nil {
		return "", 0, err
	}
	if err == nil && result.HasInfrastructureFailures() {
		err = fmt.Errorf("%d items could not be evaluated: %w", len(result.Unevaluated), domain.ErrInfrastructure)
	}
	return result.RunID, result.Total(), err
}

func (s *Scheduler) runReconcile(ctx context.Context) (int, error) {
	if s.router == nil {
		return 0, nil
	}
	report, err := s.router.Reconcile(ctx)
	return len(report.Removed), err
}

func (s *Scheduler) runPrune(ctx context.Context) error {
	if s.runs == nil || s.keepRuns <= 0 {
		return nil
	}
	return s.runs.PruneRuns(ctx, s.keepRuns)
}
