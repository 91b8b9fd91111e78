package metrics

import (
	"time"

	"github.com/homebus/conductor/pkg/types"
)

// Source provides the counts the collector samples. Implemented by the
// orchestrator facade.
type Source interface {
	TaskCounts() map[types.TaskStatus]int
	InstanceCounts() map[types.InstanceState]int
	QueueDepth() int
	ActiveWorkers() int
	RegisteredServices() int
}

// Collector periodically samples gauge metrics from the orchestrator
type Collector struct {
	source   Source
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source Source, interval time.Duration) *Collector {
	if interval == 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	for _, status := range []types.TaskStatus{
		types.TaskPending, types.TaskRunning, types.TaskCompleted,
		types.TaskFailed, types.TaskCancelled,
	} {
		TasksTotal.WithLabelValues(string(status)).Set(0)
	}
	for status, n := range c.source.TaskCounts() {
		TasksTotal.WithLabelValues(string(status)).Set(float64(n))
	}

	for _, state := range []types.InstanceState{
		types.InstanceStateUnknown, types.InstanceStateStopped,
		types.InstanceStateStarting, types.InstanceStateRunning,
		types.InstanceStateStopping, types.InstanceStateFailed,
	} {
		InstancesTotal.WithLabelValues(string(state)).Set(0)
	}
	for state, n := range c.source.InstanceCounts() {
		InstancesTotal.WithLabelValues(string(state)).Set(float64(n))
	}

	TaskQueueDepth.Set(float64(c.source.QueueDepth()))
	ActiveWorkers.Set(float64(c.source.ActiveWorkers()))
	ServicesRegistered.Set(float64(c.source.RegisteredServices()))
}
