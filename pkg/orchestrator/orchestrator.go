package orchestrator

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/homebus/conductor/pkg/config"
	"github.com/homebus/conductor/pkg/events"
	"github.com/homebus/conductor/pkg/groups"
	"github.com/homebus/conductor/pkg/log"
	"github.com/homebus/conductor/pkg/metrics"
	"github.com/homebus/conductor/pkg/monitor"
	"github.com/homebus/conductor/pkg/recovery"
	"github.com/homebus/conductor/pkg/registry"
	"github.com/homebus/conductor/pkg/scheduler"
	"github.com/homebus/conductor/pkg/storage"
	"github.com/homebus/conductor/pkg/tracker"
	"github.com/homebus/conductor/pkg/transport"
	"github.com/homebus/conductor/pkg/types"
)

// Orchestrator wires the registry, tracker, scheduler, monitor, recovery
// loop and group coordinator into one control plane over a bus transport.
// It owns their lifecycles: New assembles, Start runs the loops, Shutdown
// tears everything down in reverse order.
type Orchestrator struct {
	cfg *config.Config

	store     storage.Store
	transport transport.Transport
	broker    *events.Broker
	registry  *registry.Registry
	tracker   *tracker.Tracker
	scheduler *scheduler.Scheduler
	monitor   *monitor.Monitor
	prober    *monitor.Prober
	recovery  *recovery.Recovery
	groups    *groups.Coordinator
	collector *metrics.Collector
	logger    zerolog.Logger

	cancel context.CancelFunc
}

// New assembles an orchestrator from configuration. The transport is
// injected so tests and the validate command can run without a broker.
func New(cfg *config.Config, tp transport.Transport) (*Orchestrator, error) {
	logger := log.WithComponent("orchestrator")

	var store storage.Store
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		boltStore, err := storage.NewBoltStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		store = boltStore
	}

	broker := events.NewBroker()
	broker.Start()

	reg, err := registry.New(store)
	if err != nil {
		return nil, fmt.Errorf("failed to load service catalog: %w", err)
	}

	tr := tracker.New()

	sched, err := scheduler.New(scheduler.Config{
		MaxConcurrentTasks: cfg.Scheduler.MaxConcurrentTasks,
		TaskTimeout:        cfg.Scheduler.TaskTimeout,
		PollInterval:       cfg.Scheduler.PollInterval,
		SettleDelay:        cfg.Scheduler.SettleDelay,
	}, reg, tr, tp, store, broker)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	coordinator, err := groups.New(reg, sched, store, broker)
	if err != nil {
		return nil, fmt.Errorf("failed to create group coordinator: %w", err)
	}

	o := &Orchestrator{
		cfg:       cfg,
		store:     store,
		transport: tp,
		broker:    broker,
		registry:  reg,
		tracker:   tr,
		scheduler: sched,
		monitor: monitor.New(monitor.Config{
			SweepInterval:  cfg.Monitor.SweepInterval,
			StaleThreshold: cfg.Monitor.StaleThreshold,
		}, tr, broker),
		prober: monitor.NewProber(reg, tr),
		groups: coordinator,
		logger: logger,
	}
	if cfg.Recovery.Enabled {
		o.recovery = recovery.New(recovery.Config{
			ScanInterval: cfg.Recovery.ScanInterval,
			Cooldown:     cfg.Recovery.Cooldown,
			MaxAttempts:  cfg.Recovery.MaxAttempts,
		}, reg, tr, sched, broker)
	}
	o.collector = metrics.NewCollector(o, 0)

	if err := o.wireTransport(); err != nil {
		return nil, err
	}

	if cfg.CatalogFile != "" {
		if err := reg.LoadFile(cfg.CatalogFile); err != nil {
			return nil, fmt.Errorf("failed to load catalog: %w", err)
		}
	}
	if cfg.GroupsFile != "" {
		if err := coordinator.LoadFile(cfg.GroupsFile); err != nil {
			return nil, fmt.Errorf("failed to load groups: %w", err)
		}
	}

	return o, nil
}

// wireTransport routes inbound bus traffic into the tracker and nudges
// the scheduler, since a state change may unblock a gated start task.
func (o *Orchestrator) wireTransport() error {
	err := o.transport.SubscribeStatus(func(msg *types.StatusMessage) {
		inst, prev := o.tracker.RecordStatus(msg)
		if prev != inst.State {
			o.broker.Publish(&events.Event{
				Type:    events.EventInstanceStateChange,
				Message: fmt.Sprintf("%s: %s -> %s", inst.Key(), prev, inst.State),
				Metadata: map[string]string{
					"service":     inst.ServiceName,
					"instance_id": inst.InstanceID,
					"from":        string(prev),
					"to":          string(inst.State),
				},
			})
		}
		o.scheduler.Wake()
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to status channel: %w", err)
	}

	err = o.transport.SubscribeHealth(func(msg *types.HealthMessage) {
		o.tracker.RecordHealth(msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to health channel: %w", err)
	}
	return nil
}

// Start launches the background loops. It returns immediately; loops run
// until Shutdown.
func (o *Orchestrator) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel

	go o.scheduler.Run(ctx)
	go o.monitor.Run(ctx)
	go o.prober.Run(ctx)
	if o.recovery != nil {
		go o.recovery.Run(ctx)
	}
	o.collector.Start()

	metrics.RegisterComponent("transport", true, "connected")
	metrics.RegisterComponent("scheduler", true, "running")
	if o.store != nil {
		metrics.RegisterComponent("store", true, "open")
	} else {
		metrics.RegisterComponent("store", true, "disabled")
	}

	o.logger.Info().
		Bool("recovery", o.recovery != nil).
		Bool("persistence", o.store != nil).
		Msg("orchestrator started")
}

// Shutdown stops the loops, the event broker, the transport, and the
// store, in that order. In-flight tasks are cancelled.
func (o *Orchestrator) Shutdown() error {
	if o.cancel != nil {
		o.cancel()
	}
	o.collector.Stop()
	o.broker.Stop()

	if err := o.transport.Close(); err != nil {
		o.logger.Warn().Err(err).Msg("transport close failed")
	}
	if o.store != nil {
		if err := o.store.Close(); err != nil {
			return fmt.Errorf("failed to close store: %w", err)
		}
	}
	o.logger.Info().Msg("orchestrator stopped")
	return nil
}

// Subscribe returns a live event feed. Callers must Unsubscribe.
func (o *Orchestrator) Subscribe() events.Subscriber {
	return o.broker.Subscribe()
}

// Unsubscribe releases an event feed.
func (o *Orchestrator) Unsubscribe(sub events.Subscriber) {
	o.broker.Unsubscribe(sub)
}
