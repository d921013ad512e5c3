package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ExecuteFunc is called when a task fires.
type ExecuteFunc func(ctx context.Context, task *Task, execution *Execution) error

// defaultTickInterval is the cadence of the scheduler's tick loop when
// none is configured.
const defaultTickInterval = time.Second

// Scheduler runs a single tick loop rather than one timer per task: on
// each tick every enabled task whose next execution is due gets
// dispatched on its own goroutine, bounded by a counting semaphore so
// a burst of due tasks can't run unbounded concurrent work. A task
// that can't acquire a permit this tick is deferred to the next one
// rather than dropped.
type Scheduler struct {
	logger  *slog.Logger
	store   *Store
	execute ExecuteFunc

	tickInterval time.Duration
	sem          *semaphore.Weighted
	maxConcur    int64

	mu        sync.Mutex
	nextRun   map[string]time.Time // taskID -> next scheduled fire time
	running   bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
	deferred  atomic.Int64 // running total of due tasks deferred for lack of a permit, exposed via Stats
}

// New creates a new scheduler with the default tick interval (1s) and
// concurrency cap (4).
func New(logger *slog.Logger, store *Store, execute ExecuteFunc) *Scheduler {
	return NewWithOptions(logger, store, execute, defaultTickInterval, 4)
}

// NewWithOptions creates a scheduler with an explicit tick interval and
// concurrency cap.
func NewWithOptions(logger *slog.Logger, store *Store, execute ExecuteFunc, tickInterval time.Duration, maxConcurrent int64) *Scheduler {
	if tickInterval <= 0 {
		tickInterval = defaultTickInterval
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Scheduler{
		logger:       logger,
		store:        store,
		execute:      execute,
		tickInterval: tickInterval,
		sem:          semaphore.NewWeighted(maxConcurrent),
		maxConcur:    maxConcurrent,
		nextRun:      make(map[string]time.Time),
		stopCh:       make(chan struct{}),
	}
}

// Start begins the tick loop, loading each enabled task's next fire
// time and recovering any executions missed while the process was
// down.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	tasks, err := s.store.ListTasks(true)
	if err != nil {
		return err
	}

	now := time.Now()
	s.mu.Lock()
	for _, task := range tasks {
		s.scheduleLocked(task, now)
	}
	s.mu.Unlock()

	s.logger.Debug("scheduler started", "tasks", len(tasks), "tick_interval", s.tickInterval)

	s.checkMissedExecutions(ctx)

	s.wg.Add(1)
	go s.tickLoop(ctx)

	return nil
}

// Stop halts the tick loop and waits for in-flight dispatches to
// finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// tickLoop is the scheduler's only suspension point: it sleeps for the
// tick interval, then collects and dispatches every due task. Dispatch
// is fire-and-forget per spec's suspension model — the tick never
// blocks on task completion.
func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

// tick collects every task whose next_execution <= now and dispatches
// each on its own goroutine behind the concurrency-cap semaphore.
// Tasks that can't acquire a permit this tick are left in nextRun
// untouched and retried next tick.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	var due []string

	s.mu.Lock()
	for id, at := range s.nextRun {
		if !at.After(now) {
			due = append(due, id)
		}
	}
	s.mu.Unlock()

	for _, id := range due {
		if !s.sem.TryAcquire(1) {
			s.deferred.Add(1)
			continue
		}

		s.mu.Lock()
		delete(s.nextRun, id)
		s.mu.Unlock()

		s.wg.Add(1)
		go func(taskID string) {
			defer s.wg.Done()
			defer s.sem.Release(1)
			s.dispatch(ctx, taskID)
		}(id)
	}
}

// dispatch fetches fresh task data, runs it, and reschedules it for
// repeating kinds.
func (s *Scheduler) dispatch(ctx context.Context, taskID string) {
	task, err := s.store.GetTask(taskID)
	if err != nil {
		s.logger.Error("failed to get task for execution", "id", taskID, "error", err)
		return
	}
	if !task.Enabled {
		return
	}

	execCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if _, err := s.executeTask(execCtx, task, time.Now()); err != nil {
		s.logger.Error("task execution failed", "id", taskID, "error", err)
	}

	if task.Schedule.Kind != ScheduleAt {
		s.mu.Lock()
		s.scheduleLocked(task, time.Now())
		s.mu.Unlock()
	}
}

// CreateTask adds a new task and schedules it.
func (s *Scheduler) CreateTask(task *Task) error {
	if err := s.store.CreateTask(task); err != nil {
		return err
	}

	if task.Enabled {
		s.mu.Lock()
		s.scheduleLocked(task, time.Now())
		s.mu.Unlock()
	}

	s.logger.Info("task created", "id", task.ID, "name", task.Name, "schedule", task.Schedule.Kind)
	return nil
}

// UpdateTask modifies a task and reschedules it.
func (s *Scheduler) UpdateTask(task *Task) error {
	if err := s.store.UpdateTask(task); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.nextRun, task.ID)
	if task.Enabled {
		s.scheduleLocked(task, time.Now())
	}
	s.mu.Unlock()

	s.logger.Info("task updated", "id", task.ID, "name", task.Name)
	return nil
}

// DeleteTask removes a task.
func (s *Scheduler) DeleteTask(id string) error {
	s.mu.Lock()
	delete(s.nextRun, id)
	s.mu.Unlock()

	if err := s.store.DeleteTask(id); err != nil {
		return err
	}

	s.logger.Info("task deleted", "id", id)
	return nil
}

// GetTask retrieves a task by ID.
func (s *Scheduler) GetTask(id string) (*Task, error) {
	return s.store.GetTask(id)
}

// ListTasks returns all tasks.
func (s *Scheduler) ListTasks(enabledOnly bool) ([]*Task, error) {
	return s.store.ListTasks(enabledOnly)
}

// GetAllTasks returns all tasks for checkpointing.
func (s *Scheduler) GetAllTasks() ([]*Task, error) {
	return s.store.ListTasks(false)
}

// GetTaskExecutions returns execution history for a task.
func (s *Scheduler) GetTaskExecutions(taskID string, limit int) ([]*Execution, error) {
	return s.store.ListExecutions(taskID, limit)
}

// TriggerTask immediately executes a task, bypassing its schedule.
func (s *Scheduler) TriggerTask(ctx context.Context, taskID string) (*Execution, error) {
	task, err := s.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	return s.executeTask(ctx, task, time.Now())
}

// Upcoming previews up to n future fire times for a task, per spec's
// cron-validation preview requirement. It does not require the task to
// be registered with the scheduler.
func (s *Scheduler) Upcoming(task *Task, n int) []time.Time {
	return task.Upcoming(time.Now(), n)
}

// scheduleLocked records a task's next fire time. Callers must hold s.mu.
func (s *Scheduler) scheduleLocked(task *Task, after time.Time) {
	next, ok := task.NextRun(after)
	if !ok {
		s.logger.Debug("task has no future runs", "id", task.ID, "name", task.Name)
		return
	}
	s.nextRun[task.ID] = next
	s.logger.Debug("task scheduled", "id", task.ID, "name", task.Name, "next", next)
}

// executeTask runs a task and records the execution.
func (s *Scheduler) executeTask(ctx context.Context, task *Task, scheduledAt time.Time) (*Execution, error) {
	exec := &Execution{
		ID:          NewID(),
		TaskID:      task.ID,
		ScheduledAt: scheduledAt,
		Status:      StatusRunning,
	}
	now := time.Now()
	exec.StartedAt = &now

	if err := s.store.CreateExecution(exec); err != nil {
		return nil, err
	}

	s.logger.Info("executing task", "task_id", task.ID, "task_name", task.Name, "execution_id", exec.ID)

	var execErr error
	if s.execute != nil {
		execErr = s.execute(ctx, task, exec)
	}

	completed := time.Now()
	exec.CompletedAt = &completed

	if execErr != nil {
		exec.Status = StatusFailed
		exec.Result = execErr.Error()
	} else {
		exec.Status = StatusCompleted
		exec.Result = "success"
	}

	if err := s.store.UpdateExecution(exec); err != nil {
		s.logger.Error("failed to update execution", "id", exec.ID, "error", err)
	}

	s.logger.Info("task execution completed",
		"task_id", task.ID,
		"execution_id", exec.ID,
		"status", exec.Status,
		"duration", completed.Sub(*exec.StartedAt),
	)

	return exec, execErr
}

// checkMissedExecutions handles tasks that should have run while the
// process was down.
func (s *Scheduler) checkMissedExecutions(ctx context.Context) {
	pending, err := s.store.GetPendingExecutions()
	if err != nil {
		s.logger.Error("failed to get pending executions", "error", err)
		return
	}

	for _, exec := range pending {
		if time.Since(exec.ScheduledAt) > 24*time.Hour {
			exec.Status = StatusSkipped
			exec.Result = "missed execution window (>24h)"
			_ = s.store.UpdateExecution(exec)
			s.logger.Info("skipped stale execution", "id", exec.ID, "scheduled", exec.ScheduledAt)
			continue
		}

		task, err := s.store.GetTask(exec.TaskID)
		if err != nil {
			continue
		}
		s.logger.Info("catching up missed execution", "task", task.Name, "scheduled", exec.ScheduledAt)
		exec.Status = StatusSkipped
		exec.Result = "replaced by catch-up execution"
		_ = s.store.UpdateExecution(exec)
		_, _ = s.executeTask(ctx, task, exec.ScheduledAt)
	}
}

// Stats returns scheduler statistics, including the concurrency-cap
// metric spec's tick loop requires exposing.
func (s *Scheduler) Stats() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, _ := s.store.ListTasks(false)
	enabled := 0
	for _, t := range tasks {
		if t.Enabled {
			enabled++
		}
	}

	return map[string]any{
		"running":           s.running,
		"total_tasks":       len(tasks),
		"enabled_tasks":     enabled,
		"pending_next_run":  len(s.nextRun),
		"max_concurrent":    s.maxConcur,
		"deferred_overflow": s.deferred.Load(),
	}
}
