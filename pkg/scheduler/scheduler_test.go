package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homebus/conductor/pkg/registry"
	"github.com/homebus/conductor/pkg/tracker"
	"github.com/homebus/conductor/pkg/transport"
	"github.com/homebus/conductor/pkg/types"
)

// harness wires a scheduler against the in-memory transport the way the
// orchestrator facade does: status injections land in the tracker and wake
// the admission loop.
type harness struct {
	registry  *registry.Registry
	tracker   *tracker.Tracker
	transport *transport.Inmem
	scheduler *Scheduler
}

func newHarness(t *testing.T, cfg Config, defs ...*types.ServiceDefinition) *harness {
	t.Helper()

	reg, err := registry.New(nil)
	require.NoError(t, err)
	require.NoError(t, reg.Register(defs...))

	tr := tracker.New()
	tp := transport.NewInmem()

	if cfg.TaskTimeout == 0 {
		cfg.TaskTimeout = 2 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = 10 * time.Millisecond
	}

	sched, err := New(cfg, reg, tr, tp, nil, nil)
	require.NoError(t, err)

	require.NoError(t, tp.SubscribeStatus(func(msg *types.StatusMessage) {
		tr.RecordStatus(msg)
		sched.Wake()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go sched.Run(ctx)
	t.Cleanup(cancel)

	return &harness{registry: reg, tracker: tr, transport: tp, scheduler: sched}
}

// respond makes the fake service answer start/stop commands with the
// matching status report for the given instance.
func (h *harness) respond(service, instance string) {
	h.transport.OnControl(service, func(msg *types.ControlMessage) {
		var state types.InstanceState
		switch msg.Command {
		case types.CommandStart:
			state = types.InstanceStateRunning
		case types.CommandStop:
			state = types.InstanceStateStopped
		default:
			return
		}
		go h.transport.InjectStatus(&types.StatusMessage{
			ServiceName: service, InstanceID: instance, State: state,
		})
	})
}

func (h *harness) waitStatus(t *testing.T, id string, want types.TaskStatus) types.Task {
	t.Helper()
	var task types.Task
	require.Eventually(t, func() bool {
		var err error
		task, err = h.scheduler.GetTask(id)
		return err == nil && task.Status == want
	}, 3*time.Second, 5*time.Millisecond, "task %s never reached %s (last: %+v)", id, want, task)
	return task
}

func TestStartTaskCompletes(t *testing.T) {
	h := newHarness(t, Config{}, &types.ServiceDefinition{Name: "tts"})
	h.respond("tts", "tts-1")

	task, err := h.scheduler.CreateTask(types.ActionStart, "tts", "", nil, "test")
	require.NoError(t, err)
	assert.Equal(t, types.TaskPending, task.Status)

	done := h.waitStatus(t, task.ID, types.TaskCompleted)
	assert.Equal(t, 100, done.Progress)
	assert.Empty(t, done.Error)
	assert.False(t, done.CompletedAt.IsZero())

	published := h.transport.Published("tts")
	require.Len(t, published, 1)
	assert.Equal(t, types.CommandStart, published[0].Command)
	assert.Equal(t, task.ID, published[0].TaskID)
}

func TestCreateTaskRejectsUnknownService(t *testing.T) {
	h := newHarness(t, Config{}, &types.ServiceDefinition{Name: "tts"})

	_, err := h.scheduler.CreateTask(types.ActionStart, "ghost", "", nil, "test")
	assert.ErrorIs(t, err, ErrUnknownService)
}

func TestStartDeferredUntilDependencyRunning(t *testing.T) {
	h := newHarness(t, Config{},
		&types.ServiceDefinition{Name: "db"},
		&types.ServiceDefinition{Name: "api", DependsOn: []string{"db"}},
	)
	h.respond("api", "api-1")

	task, err := h.scheduler.CreateTask(types.ActionStart, "api", "", nil, "test")
	require.NoError(t, err)

	// The dependency is down: the task must stay pending, not fail, and
	// no control command may be emitted.
	time.Sleep(100 * time.Millisecond)
	got, err := h.scheduler.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskPending, got.Status)
	assert.Empty(t, h.transport.Published("api"))

	// Once db reports Running the task executes with no further nudge.
	h.transport.InjectStatus(&types.StatusMessage{
		ServiceName: "db", InstanceID: "db-1", State: types.InstanceStateRunning,
	})
	h.waitStatus(t, task.ID, types.TaskCompleted)
	assert.Len(t, h.transport.Published("api"), 1)
}

func TestStopHasNoDependencyPrecondition(t *testing.T) {
	h := newHarness(t, Config{},
		&types.ServiceDefinition{Name: "db"},
		&types.ServiceDefinition{Name: "api", DependsOn: []string{"db"}},
	)
	h.respond("api", "api-1")

	// db is not running, but stop must dispatch anyway.
	task, err := h.scheduler.CreateTask(types.ActionStop, "api", "", nil, "test")
	require.NoError(t, err)
	h.waitStatus(t, task.ID, types.TaskCompleted)
}

func TestConcurrencyCap(t *testing.T) {
	h := newHarness(t, Config{MaxConcurrentTasks: 2, TaskTimeout: 5 * time.Second},
		&types.ServiceDefinition{Name: "a"},
		&types.ServiceDefinition{Name: "b"},
		&types.ServiceDefinition{Name: "c"},
		&types.ServiceDefinition{Name: "d"},
	)

	// Services respond only when released, keeping workers busy.
	release := make(chan struct{})
	var mu sync.Mutex
	maxActive := 0
	for _, svc := range []string{"a", "b", "c", "d"} {
		svc := svc
		h.transport.OnControl(svc, func(msg *types.ControlMessage) {
			mu.Lock()
			if n := h.scheduler.ActiveCount(); n > maxActive {
				maxActive = n
			}
			mu.Unlock()
			go func() {
				<-release
				h.transport.InjectStatus(&types.StatusMessage{
					ServiceName: svc, InstanceID: svc + "-1", State: types.InstanceStateRunning,
				})
			}()
		})
	}

	var ids []string
	for _, svc := range []string{"a", "b", "c", "d"} {
		task, err := h.scheduler.CreateTask(types.ActionStart, svc, "", nil, "burst")
		require.NoError(t, err)
		ids = append(ids, task.ID)
	}

	require.Eventually(t, func() bool { return h.scheduler.ActiveCount() == 2 },
		time.Second, 5*time.Millisecond)
	// Burst submitted, cap is 2: never more than 2 in flight.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, h.scheduler.ActiveCount())
	assert.Equal(t, 2, h.scheduler.QueueDepth())

	close(release)
	for _, id := range ids {
		h.waitStatus(t, id, types.TaskCompleted)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, maxActive, 2)
}

func TestRestartIsTwoSteps(t *testing.T) {
	h := newHarness(t, Config{SettleDelay: 10 * time.Millisecond},
		&types.ServiceDefinition{Name: "stt"})
	h.respond("stt", "stt-1")

	// The instance is up before the restart.
	h.transport.InjectStatus(&types.StatusMessage{
		ServiceName: "stt", InstanceID: "stt-1", State: types.InstanceStateRunning,
	})

	task, err := h.scheduler.CreateTask(types.ActionRestart, "stt", "stt-1", nil, "test")
	require.NoError(t, err)
	h.waitStatus(t, task.ID, types.TaskCompleted)

	published := h.transport.Published("stt")
	require.Len(t, published, 2)
	assert.Equal(t, types.CommandStop, published[0].Command)
	assert.Equal(t, types.CommandStart, published[1].Command)
}

func TestRestartStartPhaseFailureLeavesInstanceStopped(t *testing.T) {
	h := newHarness(t, Config{TaskTimeout: 200 * time.Millisecond, SettleDelay: 0},
		&types.ServiceDefinition{Name: "stt"})

	// The service acknowledges stop but never comes back up.
	h.transport.OnControl("stt", func(msg *types.ControlMessage) {
		if msg.Command == types.CommandStop {
			go h.transport.InjectStatus(&types.StatusMessage{
				ServiceName: "stt", InstanceID: "stt-1", State: types.InstanceStateStopped,
			})
		}
	})
	h.transport.InjectStatus(&types.StatusMessage{
		ServiceName: "stt", InstanceID: "stt-1", State: types.InstanceStateRunning,
	})

	task, err := h.scheduler.CreateTask(types.ActionRestart, "stt", "stt-1", nil, "test")
	require.NoError(t, err)

	done := h.waitStatus(t, task.ID, types.TaskFailed)
	assert.Contains(t, done.Error, "start phase")
	assert.Equal(t, 50, done.Progress, "stop phase completed before the failure")

	inst, ok := h.tracker.Get("stt", "stt-1")
	require.True(t, ok)
	assert.Equal(t, types.InstanceStateStopped, inst.State)
}

func TestTaskTimeoutMarksFailed(t *testing.T) {
	h := newHarness(t, Config{TaskTimeout: 100 * time.Millisecond},
		&types.ServiceDefinition{Name: "mute"})
	// No responder: the service never reports back.

	task, err := h.scheduler.CreateTask(types.ActionStart, "mute", "", nil, "test")
	require.NoError(t, err)

	done := h.waitStatus(t, task.ID, types.TaskFailed)
	assert.Contains(t, done.Error, "did not reach")
}

func TestFailureDoesNotStallQueue(t *testing.T) {
	h := newHarness(t, Config{MaxConcurrentTasks: 1, TaskTimeout: 100 * time.Millisecond},
		&types.ServiceDefinition{Name: "mute"},
		&types.ServiceDefinition{Name: "ok"},
	)
	h.respond("ok", "ok-1")

	failing, err := h.scheduler.CreateTask(types.ActionStart, "mute", "", nil, "test")
	require.NoError(t, err)
	following, err := h.scheduler.CreateTask(types.ActionStart, "ok", "", nil, "test")
	require.NoError(t, err)

	h.waitStatus(t, failing.ID, types.TaskFailed)
	h.waitStatus(t, following.ID, types.TaskCompleted)
}

func TestScaleAndUpdatePublishWithoutPolling(t *testing.T) {
	h := newHarness(t, Config{}, &types.ServiceDefinition{Name: "ha-bridge"})

	task, err := h.scheduler.CreateTask(types.ActionScale, "ha-bridge", "",
		map[string]string{"replicas": "3"}, "test")
	require.NoError(t, err)
	h.waitStatus(t, task.ID, types.TaskCompleted)

	published := h.transport.Published("ha-bridge")
	require.Len(t, published, 1)
	assert.Equal(t, types.CommandScale, published[0].Command)
	assert.Equal(t, "3", published[0].Parameters["replicas"])
}

func TestMaintenanceTogglesFlag(t *testing.T) {
	h := newHarness(t, Config{}, &types.ServiceDefinition{Name: "speaker"})
	h.transport.InjectStatus(&types.StatusMessage{
		ServiceName: "speaker", InstanceID: "sp-1", State: types.InstanceStateRunning,
	})

	task, err := h.scheduler.CreateTask(types.ActionMaintenance, "speaker", "",
		map[string]string{"enabled": "true"}, "test")
	require.NoError(t, err)
	h.waitStatus(t, task.ID, types.TaskCompleted)

	inst, ok := h.tracker.Get("speaker", "sp-1")
	require.True(t, ok)
	assert.True(t, inst.Maintenance)
	assert.Equal(t, types.InstanceStateRunning, inst.State)
}

func TestCancelPendingTask(t *testing.T) {
	h := newHarness(t, Config{},
		&types.ServiceDefinition{Name: "db"},
		&types.ServiceDefinition{Name: "api", DependsOn: []string{"db"}},
	)

	// Start for api is gated on db, so it sits in the queue.
	task, err := h.scheduler.CreateTask(types.ActionStart, "api", "", nil, "test")
	require.NoError(t, err)

	require.NoError(t, h.scheduler.CancelTask(task.ID))
	got, err := h.scheduler.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskCancelled, got.Status)
	assert.Equal(t, 0, h.scheduler.QueueDepth())

	// A finished task cannot be cancelled again.
	assert.ErrorIs(t, h.scheduler.CancelTask(task.ID), ErrTaskNotCancellable)
}

func TestCancelRunningTask(t *testing.T) {
	h := newHarness(t, Config{TaskTimeout: 5 * time.Second},
		&types.ServiceDefinition{Name: "mute"})
	// No responder: the worker sits in its poll loop until cancelled.

	task, err := h.scheduler.CreateTask(types.ActionStart, "mute", "", nil, "test")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := h.scheduler.GetTask(task.ID)
		return err == nil && got.Status == types.TaskRunning
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, h.scheduler.CancelTask(task.ID))
	done := h.waitStatus(t, task.ID, types.TaskCancelled)
	assert.Equal(t, "cancelled", done.Error)
}

func TestLateCancelFlagDoesNotDowngradeSuccess(t *testing.T) {
	h := newHarness(t, Config{TaskTimeout: 5 * time.Second},
		&types.ServiceDefinition{Name: "mute"})
	// No responder yet: the worker sits in its poll loop.

	task, err := h.scheduler.CreateTask(types.ActionStart, "mute", "", nil, "test")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := h.scheduler.GetTask(task.ID)
		return err == nil && got.Status == types.TaskRunning
	}, time.Second, 5*time.Millisecond)

	// Raise the cancel flag directly, as CancelTask would if it raced with
	// the executor returning success. A clean execution must win.
	h.scheduler.mu.Lock()
	h.scheduler.cancelled[task.ID] = true
	h.scheduler.mu.Unlock()

	h.transport.InjectStatus(&types.StatusMessage{
		ServiceName: "mute", InstanceID: "m-1", State: types.InstanceStateRunning,
	})

	done := h.waitStatus(t, task.ID, types.TaskCompleted)
	assert.Equal(t, 100, done.Progress)
	assert.Empty(t, done.Error)
}

func TestFIFOOrderAmongEligibleTasks(t *testing.T) {
	h := newHarness(t, Config{MaxConcurrentTasks: 1, TaskTimeout: 2 * time.Second},
		&types.ServiceDefinition{Name: "solo"})

	var mu sync.Mutex
	var order []string
	h.transport.OnControl("solo", func(msg *types.ControlMessage) {
		mu.Lock()
		order = append(order, msg.TaskID)
		mu.Unlock()
		if msg.Command == types.CommandStop {
			go h.transport.InjectStatus(&types.StatusMessage{
				ServiceName: "solo", InstanceID: "s-1", State: types.InstanceStateStopped,
			})
		}
	})

	var ids []string
	for i := 0; i < 3; i++ {
		task, err := h.scheduler.CreateTask(types.ActionStop, "solo", "", nil, "test")
		require.NoError(t, err)
		ids = append(ids, task.ID)
	}

	for _, id := range ids {
		h.waitStatus(t, id, types.TaskCompleted)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, ids, order, "tasks are admitted in submission order")
}
