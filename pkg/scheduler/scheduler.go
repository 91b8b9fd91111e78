package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/homebus/conductor/pkg/events"
	"github.com/homebus/conductor/pkg/log"
	"github.com/homebus/conductor/pkg/metrics"
	"github.com/homebus/conductor/pkg/registry"
	"github.com/homebus/conductor/pkg/storage"
	"github.com/homebus/conductor/pkg/tracker"
	"github.com/homebus/conductor/pkg/transport"
	"github.com/homebus/conductor/pkg/types"
)

// Config holds scheduler tuning knobs.
type Config struct {
	// MaxConcurrentTasks caps the number of tasks executing in parallel.
	MaxConcurrentTasks int

	// TaskTimeout bounds one task execution, including its state poll.
	TaskTimeout time.Duration

	// PollInterval is how often the execution engine re-reads the tracker
	// while waiting for a state transition.
	PollInterval time.Duration

	// SettleDelay is the pause between the stop and start phases of a
	// restart.
	SettleDelay time.Duration

	// TickInterval drives the admission loop when no submission or worker
	// completion nudges it earlier.
	TickInterval time.Duration
}

// withDefaults fills zero fields with working defaults.
func (c Config) withDefaults() Config {
	if c.MaxConcurrentTasks <= 0 {
		c.MaxConcurrentTasks = 4
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 60 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	return c
}

// Scheduler owns the task table and the FIFO admission queue. One Run loop
// is the single dispatcher; each dispatched task executes on its own
// goroutine up to MaxConcurrentTasks. Start tasks are admitted only once
// their target's dependencies are satisfied; an unsatisfied start task
// stays pending and is re-examined every tick.
type Scheduler struct {
	cfg      Config
	registry *registry.Registry
	tracker  *tracker.Tracker
	executor *Executor
	store    storage.Store
	broker   *events.Broker
	logger   zerolog.Logger

	mu        sync.Mutex
	tasks     map[string]*types.Task
	queue     []string // pending task ids in submission order
	active    int
	cancels   map[string]context.CancelFunc
	cancelled map[string]bool // ids cancelled while in flight

	wakeCh chan struct{}
}

// New creates a scheduler. The store may be nil (no task persistence);
// previously persisted tasks are loaded into the audit table, with any
// task interrupted mid-flight marked failed.
func New(cfg Config, reg *registry.Registry, tr *tracker.Tracker, tp transport.Transport, store storage.Store, broker *events.Broker) (*Scheduler, error) {
	cfg = cfg.withDefaults()
	s := &Scheduler{
		cfg:       cfg,
		registry:  reg,
		tracker:   tr,
		store:     store,
		broker:    broker,
		logger:    log.WithComponent("scheduler"),
		tasks:     make(map[string]*types.Task),
		cancels:   make(map[string]context.CancelFunc),
		cancelled: make(map[string]bool),
		wakeCh:    make(chan struct{}, 1),
	}
	s.executor = newExecutor(cfg, tr, tp)

	if store != nil {
		tasks, err := store.ListTasks()
		if err != nil {
			return nil, fmt.Errorf("failed to load task audit trail: %w", err)
		}
		for _, task := range tasks {
			if task.Status == types.TaskRunning || task.Status == types.TaskPending {
				// The previous orchestrator process died with this task
				// unfinished; its worker is gone.
				task.Status = types.TaskFailed
				task.Error = "orchestrator restarted during execution"
				task.CompletedAt = time.Now()
				if err := store.PutTask(task); err != nil {
					return nil, fmt.Errorf("failed to reconcile task %s: %w", task.ID, err)
				}
			}
			s.tasks[task.ID] = task
		}
	}

	return s, nil
}

// CreateTask validates the target, appends a pending task to the queue, and
// returns immediately. Execution happens asynchronously.
func (s *Scheduler) CreateTask(action types.TaskAction, service, instanceID string, params map[string]string, createdBy string) (*types.Task, error) {
	if _, ok := s.registry.Get(service); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}

	task := &types.Task{
		ID:          uuid.New().String(),
		Action:      action,
		ServiceName: service,
		InstanceID:  instanceID,
		Parameters:  params,
		Status:      types.TaskPending,
		CreatedBy:   createdBy,
		CreatedAt:   time.Now(),
	}

	s.mu.Lock()
	s.tasks[task.ID] = task
	s.queue = append(s.queue, task.ID)
	depth := len(s.queue)
	s.mu.Unlock()

	if err := s.persist(task); err != nil {
		s.logger.Warn().Err(err).Str("task_id", task.ID).Msg("failed to persist task")
	}

	metrics.TaskQueueDepth.Set(float64(depth))
	s.publish(events.EventTaskCreated, task, "")
	s.logger.Info().
		Str("task_id", task.ID).
		Str("action", string(action)).
		Str("service", service).
		Str("created_by", createdBy).
		Msg("task created")

	s.wake()
	taskCopy := *task
	return &taskCopy, nil
}

// GetTask returns a copy of a task by id.
func (s *Scheduler) GetTask(id string) (types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return types.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return *task, nil
}

// ListTasks returns copies of all tasks ordered by creation time.
func (s *Scheduler) ListTasks() []types.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		out = append(out, *task)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// CancelTask aborts a task. A pending task is removed from the queue; an
// in-flight task has its context cancelled and finishes as cancelled.
func (s *Scheduler) CancelTask(id string) error {
	s.mu.Lock()
	task, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	switch task.Status {
	case types.TaskPending:
		task.Status = types.TaskCancelled
		task.CompletedAt = time.Now()
		for i, qid := range s.queue {
			if qid == id {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				break
			}
		}
		taskCopy := *task
		s.mu.Unlock()

		if err := s.persist(&taskCopy); err != nil {
			s.logger.Warn().Err(err).Str("task_id", id).Msg("failed to persist cancelled task")
		}
		s.publish(events.EventTaskCancelled, &taskCopy, "")
		return nil

	case types.TaskRunning:
		s.cancelled[id] = true
		cancel := s.cancels[id]
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return nil

	default:
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrTaskNotCancellable, id, task.Status)
	}
}

// QueueDepth returns the number of tasks waiting for admission.
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// ActiveCount returns the number of workers currently executing.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// TaskCounts returns the number of tasks per status.
func (s *Scheduler) TaskCounts() map[types.TaskStatus]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[types.TaskStatus]int)
	for _, task := range s.tasks {
		counts[task.Status]++
	}
	return counts
}

// Run drives admission until the context is cancelled. It wakes on every
// submission and worker completion, plus a steady tick so start tasks
// blocked on a dependency get re-examined as instance state changes.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.logger.Info().
		Int("max_concurrent", s.cfg.MaxConcurrentTasks).
		Dur("task_timeout", s.cfg.TaskTimeout).
		Msg("scheduler started")

	for {
		s.admit(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
		case <-s.wakeCh:
		}
	}
}

// Wake nudges the admission loop out of its tick wait. Used by the status
// ingestion path so a dependency becoming Running is acted on immediately.
func (s *Scheduler) Wake() {
	s.wake()
}

func (s *Scheduler) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// admit dispatches queued tasks in FIFO order while capacity remains. A
// start task whose dependencies are not satisfied is skipped, not failed;
// it keeps its queue position and is re-examined on the next pass.
func (s *Scheduler) admit(ctx context.Context) {
	g := s.registry.Graph()

	s.mu.Lock()
	var dispatched []*types.Task
	remaining := s.queue[:0]
	for _, id := range s.queue {
		task := s.tasks[id]
		if s.active >= s.cfg.MaxConcurrentTasks {
			remaining = append(remaining, id)
			continue
		}
		if task.Action == types.ActionStart && !g.DependencySatisfied(task.ServiceName, s.tracker) {
			remaining = append(remaining, id)
			continue
		}

		task.Status = types.TaskRunning
		task.StartedAt = time.Now()
		s.active++
		dispatched = append(dispatched, task)
	}
	s.queue = append([]string(nil), remaining...)
	depth := len(s.queue)
	active := s.active
	s.mu.Unlock()

	metrics.TaskQueueDepth.Set(float64(depth))
	metrics.ActiveWorkers.Set(float64(active))

	for _, task := range dispatched {
		taskCopy := *task
		if err := s.persist(&taskCopy); err != nil {
			s.logger.Warn().Err(err).Str("task_id", task.ID).Msg("failed to persist dispatched task")
		}
		metrics.TasksDispatched.WithLabelValues(string(task.Action)).Inc()
		s.publish(events.EventTaskStarted, &taskCopy, "")

		taskCtx, cancel := context.WithCancel(ctx)
		s.mu.Lock()
		s.cancels[task.ID] = cancel
		s.mu.Unlock()

		go s.runWorker(taskCtx, cancel, task.ID)
	}
}

// runWorker executes one task in isolation. Errors are recorded on the
// task and never propagate to the admission loop.
func (s *Scheduler) runWorker(ctx context.Context, cancel context.CancelFunc, id string) {
	defer cancel()

	s.mu.Lock()
	taskCopy := *s.tasks[id]
	s.mu.Unlock()

	timer := metrics.NewTimer()
	err := s.executor.Execute(ctx, &taskCopy, func(progress int) {
		s.mutate(id, func(t *types.Task) { t.Progress = progress })
	})
	timer.ObserveDurationVec(metrics.TaskExecutionDuration, string(taskCopy.Action))

	s.mu.Lock()
	task := s.tasks[id]
	wasCancelled := s.cancelled[id]
	delete(s.cancelled, id)
	delete(s.cancels, id)
	task.CompletedAt = time.Now()
	switch {
	case err == nil:
		task.Status = types.TaskCompleted
		task.Progress = 100
		task.Error = ""
	case wasCancelled:
		task.Status = types.TaskCancelled
		task.Error = "cancelled"
	default:
		task.Status = types.TaskFailed
		task.Error = err.Error()
	}
	s.active--
	active := s.active
	done := *task
	s.mu.Unlock()

	metrics.ActiveWorkers.Set(float64(active))
	if perr := s.persist(&done); perr != nil {
		s.logger.Warn().Err(perr).Str("task_id", id).Msg("failed to persist finished task")
	}

	switch done.Status {
	case types.TaskCompleted:
		metrics.TasksCompleted.Inc()
		s.publish(events.EventTaskCompleted, &done, "")
		s.logger.Info().Str("task_id", id).Str("service", done.ServiceName).
			Str("action", string(done.Action)).Msg("task completed")
	case types.TaskCancelled:
		s.publish(events.EventTaskCancelled, &done, "")
		s.logger.Info().Str("task_id", id).Msg("task cancelled")
	default:
		metrics.TasksFailed.Inc()
		s.publish(events.EventTaskFailed, &done, done.Error)
		s.logger.Warn().Str("task_id", id).Str("service", done.ServiceName).
			Str("action", string(done.Action)).Str("error", done.Error).Msg("task failed")
	}

	s.wake()
}

// mutate applies fn to a task under the lock and persists the result.
func (s *Scheduler) mutate(id string, fn func(*types.Task)) {
	s.mu.Lock()
	task, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	fn(task)
	taskCopy := *task
	s.mu.Unlock()

	if err := s.persist(&taskCopy); err != nil {
		s.logger.Warn().Err(err).Str("task_id", id).Msg("failed to persist task update")
	}
}

func (s *Scheduler) persist(task *types.Task) error {
	if s.store == nil {
		return nil
	}
	return s.store.PutTask(task)
}

func (s *Scheduler) publish(eventType events.EventType, task *types.Task, detail string) {
	if s.broker == nil {
		return
	}
	msg := fmt.Sprintf("%s %s", task.Action, task.ServiceName)
	if detail != "" {
		msg += ": " + detail
	}
	s.broker.Publish(&events.Event{
		ID:   task.ID,
		Type: eventType,
		Metadata: map[string]string{
			"task_id": task.ID,
			"action":  string(task.Action),
			"service": task.ServiceName,
			"status":  string(task.Status),
		},
		Message: msg,
	})
}
