package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/homebus/conductor/pkg/health"
	"github.com/homebus/conductor/pkg/log"
	"github.com/homebus/conductor/pkg/registry"
	"github.com/homebus/conductor/pkg/tracker"
	"github.com/homebus/conductor/pkg/types"
)

const defaultProbeInterval = 30 * time.Second

type probe struct {
	checker  health.Checker
	status   *health.Status
	interval time.Duration
	retries  int
	lastRun  time.Time
}

// Prober actively probes services whose definitions declare an http or
// tcp health check, and records the outcome in the tracker for every
// instance of the service. Services with a bus check (or none) are left
// to their own heartbeats and the stale sweep.
type Prober struct {
	registry *registry.Registry
	tracker  *tracker.Tracker
	logger   zerolog.Logger

	probes map[string]*probe

	now func() time.Time
}

// NewProber creates an active prober over the service catalog.
func NewProber(reg *registry.Registry, tr *tracker.Tracker) *Prober {
	return &Prober{
		registry: reg,
		tracker:  tr,
		logger:   log.WithComponent("prober"),
		probes:   make(map[string]*probe),
		now:      time.Now,
	}
}

// Run probes until the context is cancelled. The tick is finer than any
// probe interval; each service keeps its own cadence.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	p.logger.Info().Msg("active prober started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("active prober stopped")
			return
		case <-ticker.C:
			p.Pass(ctx)
		}
	}
}

// Pass probes every due service once and returns the number of probes
// run. Exported for tests and for a one-shot check from the CLI.
func (p *Prober) Pass(ctx context.Context) int {
	p.sync()

	ran := 0
	for name, pr := range p.probes {
		if p.now().Sub(pr.lastRun) < pr.interval {
			continue
		}
		pr.lastRun = p.now()
		ran++

		result := pr.checker.Check(ctx)
		prev := pr.status.Healthy
		pr.status.Update(result, pr.retries)

		if prev != pr.status.Healthy {
			p.logger.Warn().
				Str("service", name).
				Bool("healthy", pr.status.Healthy).
				Str("detail", result.Message).
				Msg("probe health changed")
		}

		for _, inst := range p.tracker.List(name) {
			p.tracker.RecordHealth(&types.HealthMessage{
				ServiceName: name,
				InstanceID:  inst.InstanceID,
				Health:      pr.status.State(),
			})
		}
	}
	return ran
}

// sync reconciles the probe table with the current catalog.
func (p *Prober) sync() {
	defs := p.registry.List()
	seen := make(map[string]bool, len(defs))

	for _, def := range defs {
		seen[def.Name] = true
		if _, ok := p.probes[def.Name]; ok {
			continue
		}
		checker, err := health.ForService(def)
		if err != nil {
			p.logger.Warn().Err(err).Str("service", def.Name).Msg("invalid health check, skipping")
			continue
		}
		if checker == nil {
			continue
		}
		interval := def.HealthCheck.Interval
		if interval <= 0 {
			interval = defaultProbeInterval
		}
		p.probes[def.Name] = &probe{
			checker:  checker,
			status:   health.NewStatus(),
			interval: interval,
			retries:  def.HealthCheck.Retries,
		}
	}

	for name := range p.probes {
		if !seen[name] {
			delete(p.probes, name)
		}
	}
}
