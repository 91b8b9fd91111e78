package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/homebus/conductor/pkg/events"
	"github.com/homebus/conductor/pkg/log"
	"github.com/homebus/conductor/pkg/metrics"
	"github.com/homebus/conductor/pkg/tracker"
)

// Config holds health monitor tuning knobs.
type Config struct {
	// SweepInterval is how often the stale sweep runs.
	SweepInterval time.Duration

	// StaleThreshold is how long an instance may go without any status or
	// health report before it is marked Unknown.
	StaleThreshold time.Duration
}

func (c Config) withDefaults() Config {
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.StaleThreshold <= 0 {
		c.StaleThreshold = 90 * time.Second
	}
	return c
}

// Monitor periodically sweeps the instance tracker for instances that have
// gone silent and demotes them to Unknown. It never publishes control
// commands; acting on an Unknown instance is the recovery loop's job,
// and only once the instance reports an actual failure.
type Monitor struct {
	cfg     Config
	tracker *tracker.Tracker
	broker  *events.Broker
	logger  zerolog.Logger
}

// New creates a health monitor. The broker may be nil.
func New(cfg Config, tr *tracker.Tracker, broker *events.Broker) *Monitor {
	return &Monitor{
		cfg:     cfg.withDefaults(),
		tracker: tr,
		broker:  broker,
		logger:  log.WithComponent("monitor"),
	}
}

// Run sweeps until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	m.logger.Info().
		Dur("sweep_interval", m.cfg.SweepInterval).
		Dur("stale_threshold", m.cfg.StaleThreshold).
		Msg("health monitor started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("health monitor stopped")
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep runs one stale pass and returns the number of instances demoted.
func (m *Monitor) Sweep() int {
	stale := m.tracker.SweepStale(m.cfg.StaleThreshold)

	metrics.StaleSweepsTotal.Inc()
	if len(stale) == 0 {
		return 0
	}
	metrics.InstancesMarkedStale.Add(float64(len(stale)))

	for _, key := range stale {
		m.logger.Warn().
			Str("service", key.Service).
			Str("instance_id", key.Instance).
			Dur("threshold", m.cfg.StaleThreshold).
			Msg("instance went silent, marked unknown")

		if m.broker != nil {
			m.broker.Publish(&events.Event{
				Type:    events.EventInstanceStale,
				Message: "no report from " + key.String() + " within threshold",
				Metadata: map[string]string{
					"service":     key.Service,
					"instance_id": key.Instance,
				},
			})
		}
	}
	return len(stale)
}
