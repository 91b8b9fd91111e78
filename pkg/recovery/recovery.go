package recovery

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/homebus/conductor/pkg/events"
	"github.com/homebus/conductor/pkg/log"
	"github.com/homebus/conductor/pkg/metrics"
	"github.com/homebus/conductor/pkg/registry"
	"github.com/homebus/conductor/pkg/tracker"
	"github.com/homebus/conductor/pkg/types"
)

// createdBy value stamped on every recovery-submitted task, so operators
// can tell automatic restarts from manual ones in the audit trail.
const CreatedBy = "auto_recovery"

// TaskCreator is the slice of the scheduler the recovery loop needs.
type TaskCreator interface {
	CreateTask(action types.TaskAction, service, instanceID string, params map[string]string, createdBy string) (*types.Task, error)
}

// Config holds recovery loop tuning knobs.
type Config struct {
	// ScanInterval is how often the loop looks for failed instances.
	ScanInterval time.Duration

	// Cooldown is the minimum gap between two recovery attempts for the
	// same instance. A per-definition restart policy delay overrides it.
	Cooldown time.Duration

	// MaxAttempts caps consecutive recovery attempts per instance; 0 means
	// unlimited. A per-definition restart policy max overrides it. The
	// counter resets once the instance reports Running again.
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.ScanInterval <= 0 {
		c.ScanInterval = 15 * time.Second
	}
	if c.Cooldown <= 0 {
		c.Cooldown = time.Minute
	}
	if c.MaxAttempts < 0 {
		c.MaxAttempts = 0
	}
	return c
}

type attempt struct {
	count int
	last  time.Time
}

// Recovery watches the tracker for Failed instances and submits restart
// tasks for them through the scheduler, subject to per-instance cooldown
// and attempt caps. It only ever reacts to Failed: Unknown instances are
// left alone, and instances in maintenance are never touched.
type Recovery struct {
	cfg      Config
	registry *registry.Registry
	tracker  *tracker.Tracker
	creator  TaskCreator
	broker   *events.Broker
	logger   zerolog.Logger

	attempts map[types.InstanceKey]*attempt

	now func() time.Time
}

// New creates a recovery loop. The broker may be nil.
func New(cfg Config, reg *registry.Registry, tr *tracker.Tracker, creator TaskCreator, broker *events.Broker) *Recovery {
	return &Recovery{
		cfg:      cfg.withDefaults(),
		registry: reg,
		tracker:  tr,
		creator:  creator,
		broker:   broker,
		logger:   log.WithComponent("recovery"),
		attempts: make(map[types.InstanceKey]*attempt),
		now:      time.Now,
	}
}

// Run scans until the context is cancelled.
func (r *Recovery) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ScanInterval)
	defer ticker.Stop()

	r.logger.Info().
		Dur("scan_interval", r.cfg.ScanInterval).
		Dur("cooldown", r.cfg.Cooldown).
		Int("max_attempts", r.cfg.MaxAttempts).
		Msg("recovery loop started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("recovery loop stopped")
			return
		case <-ticker.C:
			r.Scan()
		}
	}
}

// Scan runs one recovery pass and returns the number of restart tasks
// submitted. The loop runs on the dispatcher goroutine only, so the
// attempt book needs no lock.
func (r *Recovery) Scan() int {
	// Forget instances that came back: the next failure starts a fresh
	// attempt budget.
	for key := range r.attempts {
		inst, ok := r.tracker.Get(key.Service, key.Instance)
		if !ok || inst.State == types.InstanceStateRunning {
			delete(r.attempts, key)
		}
	}

	submitted := 0
	for _, inst := range r.tracker.ListByState(types.InstanceStateFailed) {
		if r.recover(&inst) {
			submitted++
		}
	}
	return submitted
}

func (r *Recovery) recover(inst *types.ServiceInstance) bool {
	if inst.Maintenance {
		return false
	}

	cooldown := r.cfg.Cooldown
	maxAttempts := r.cfg.MaxAttempts
	if def, ok := r.registry.Get(inst.ServiceName); ok && def.RestartPolicy != nil {
		if def.RestartPolicy.Condition == types.RestartNever {
			return false
		}
		if def.RestartPolicy.Delay > 0 {
			cooldown = def.RestartPolicy.Delay
		}
		if def.RestartPolicy.MaxAttempts > 0 {
			maxAttempts = def.RestartPolicy.MaxAttempts
		}
	}

	key := inst.Key()
	book, ok := r.attempts[key]
	if !ok {
		book = &attempt{}
		r.attempts[key] = book
	}
	if maxAttempts > 0 && book.count >= maxAttempts {
		return false
	}
	if !book.last.IsZero() && r.now().Sub(book.last) < cooldown {
		return false
	}

	task, err := r.creator.CreateTask(types.ActionRestart, inst.ServiceName, inst.InstanceID, nil, CreatedBy)
	if err != nil {
		r.logger.Warn().Err(err).
			Str("service", inst.ServiceName).
			Str("instance_id", inst.InstanceID).
			Msg("failed to submit recovery task")
		return false
	}

	book.count++
	book.last = r.now()

	metrics.RecoveryAttempts.Inc()
	r.logger.Info().
		Str("service", inst.ServiceName).
		Str("instance_id", inst.InstanceID).
		Str("task_id", task.ID).
		Int("attempt", book.count).
		Msg("submitted recovery restart")

	if r.broker != nil {
		r.broker.Publish(&events.Event{
			ID:      task.ID,
			Type:    events.EventRecoveryAttempt,
			Message: "restarting failed instance " + key.String(),
			Metadata: map[string]string{
				"service":     inst.ServiceName,
				"instance_id": inst.InstanceID,
				"task_id":     task.ID,
			},
		})
	}
	return true
}
