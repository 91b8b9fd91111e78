package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/homebus/conductor/pkg/log"
	"github.com/homebus/conductor/pkg/metrics"
	"github.com/homebus/conductor/pkg/tracker"
	"github.com/homebus/conductor/pkg/transport"
	"github.com/homebus/conductor/pkg/types"
)

// Executor performs one task: it emits the control command on the bus and
// then polls the tracker until the target reaches the expected state or the
// task timeout elapses. A control command is never assumed to have
// succeeded without an observed status report.
type Executor struct {
	cfg       Config
	tracker   *tracker.Tracker
	transport transport.Transport
	logger    zerolog.Logger
}

func newExecutor(cfg Config, tr *tracker.Tracker, tp transport.Transport) *Executor {
	return &Executor{
		cfg:       cfg,
		tracker:   tr,
		transport: tp,
		logger:    log.WithComponent("executor"),
	}
}

// Execute runs the task to completion. The progress callback reports
// intermediate progress for multi-phase actions. Returned errors describe
// the failure for the task's error field; they are never fatal to the
// scheduler.
func (e *Executor) Execute(ctx context.Context, task *types.Task, progress func(int)) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.TaskTimeout)
	defer cancel()

	switch task.Action {
	case types.ActionStart:
		return e.start(ctx, task)
	case types.ActionStop:
		return e.stop(ctx, task)
	case types.ActionRestart:
		return e.restart(ctx, task, progress)
	case types.ActionScale:
		return e.publishCommand(ctx, task, types.CommandScale)
	case types.ActionUpdate:
		return e.publishCommand(ctx, task, types.CommandUpdate)
	case types.ActionMaintenance:
		return e.maintenance(ctx, task)
	default:
		return fmt.Errorf("unsupported action: %s", task.Action)
	}
}

func (e *Executor) start(ctx context.Context, task *types.Task) error {
	if err := e.publishCommand(ctx, task, types.CommandStart); err != nil {
		return err
	}
	return e.waitForState(ctx, task.ServiceName, task.InstanceID, types.InstanceStateRunning)
}

func (e *Executor) stop(ctx context.Context, task *types.Task) error {
	if err := e.publishCommand(ctx, task, types.CommandStop); err != nil {
		return err
	}
	return e.waitForState(ctx, task.ServiceName, task.InstanceID, types.InstanceStateStopped)
}

// restart is two sequential sub-operations, not atomic: a successful stop
// followed by a failed start leaves the instance stopped and the task
// failed. That state is reported honestly rather than rolled back.
func (e *Executor) restart(ctx context.Context, task *types.Task, progress func(int)) error {
	if err := e.stop(ctx, task); err != nil {
		return fmt.Errorf("stop phase: %w", err)
	}
	progress(50)

	if e.cfg.SettleDelay > 0 {
		select {
		case <-time.After(e.cfg.SettleDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := e.start(ctx, task); err != nil {
		return fmt.Errorf("start phase (instance left stopped): %w", err)
	}
	return nil
}

// maintenance publishes the command and flips the orchestrator-side flag.
// The flag is orthogonal bookkeeping; the lifecycle state is untouched.
func (e *Executor) maintenance(ctx context.Context, task *types.Task) error {
	if err := e.publishCommand(ctx, task, types.CommandMaintenance); err != nil {
		return err
	}
	on := task.Parameters["enabled"] != "false"
	e.tracker.SetMaintenance(task.ServiceName, on)
	return nil
}

func (e *Executor) publishCommand(ctx context.Context, task *types.Task, cmd types.ControlCommand) error {
	msg := &types.ControlMessage{
		Command:    cmd,
		TaskID:     task.ID,
		Timestamp:  time.Now(),
		Parameters: task.Parameters,
	}
	if err := e.transport.PublishControl(ctx, task.ServiceName, msg); err != nil {
		metrics.ControlPublishFailures.Inc()
		return fmt.Errorf("control command %s failed: %w", cmd, err)
	}
	e.logger.Debug().
		Str("task_id", task.ID).
		Str("service", task.ServiceName).
		Str("command", string(cmd)).
		Msg("control command published")
	return nil
}

// waitForState polls the tracker until the target reaches want. With an
// instance id the check is that one instance; without, a start waits for
// any Running instance and a stop waits until no instance of the service
// is left outside {stopped, unknown}.
func (e *Executor) waitForState(ctx context.Context, service, instanceID string, want types.InstanceState) error {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if e.stateReached(service, instanceID, want) {
			return nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("%w: %s/%s did not reach %s within %s",
					ErrTaskTimeout, service, instanceID, want, e.cfg.TaskTimeout)
			}
			return ctx.Err()
		}
	}
}

func (e *Executor) stateReached(service, instanceID string, want types.InstanceState) bool {
	if instanceID != "" {
		inst, ok := e.tracker.Get(service, instanceID)
		return ok && inst.State == want
	}

	instances := e.tracker.List(service)
	switch want {
	case types.InstanceStateStopped:
		for _, inst := range instances {
			if inst.State != types.InstanceStateStopped && inst.State != types.InstanceStateUnknown {
				return false
			}
		}
		// Zero tracked instances cannot be distinguished from all stopped.
		return true
	default:
		for _, inst := range instances {
			if inst.State == want {
				return true
			}
		}
		return false
	}
}
