package tracker

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/homebus/conductor/pkg/types"
)

// Tracker holds the live state of every running or previously-seen instance
// of every service, keyed by (service, instance id). It is written by the
// inbound status/health ingestion loop and read concurrently by the
// scheduler, health monitor, and recovery loops, so all access goes through
// the mutex.
type Tracker struct {
	mu        sync.RWMutex
	instances map[types.InstanceKey]*types.ServiceInstance

	// now is swapped in tests for deterministic sweeps.
	now func() time.Time
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		instances: make(map[types.InstanceKey]*types.ServiceInstance),
		now:       time.Now,
	}
}

// RecordStatus upserts an instance from an inbound status message and
// refreshes its last-seen timestamp. It returns the updated instance copy
// and the previous state (InstanceStateUnknown for a first sighting).
func (t *Tracker) RecordStatus(msg *types.StatusMessage) (types.ServiceInstance, types.InstanceState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := types.InstanceKey{Service: msg.ServiceName, Instance: msg.InstanceID}
	now := t.now()

	inst, ok := t.instances[key]
	prev := types.InstanceStateUnknown
	if !ok {
		inst = &types.ServiceInstance{
			ServiceName: msg.ServiceName,
			InstanceID:  msg.InstanceID,
			Health:      types.HealthUnknown,
		}
		t.instances[key] = inst
	} else {
		prev = inst.State
	}

	if msg.State != prev {
		switch msg.State {
		case types.InstanceStateStarting:
			if ok && (prev == types.InstanceStateFailed || prev == types.InstanceStateStopped) {
				inst.RestartCount++
			}
		case types.InstanceStateRunning:
			inst.StartTime = now
		case types.InstanceStateStopped:
			inst.StopTime = now
		}
	}

	inst.State = msg.State
	inst.LastSeen = now
	if msg.ContainerID != "" {
		inst.ContainerID = msg.ContainerID
	}
	if msg.Version != "" {
		inst.Version = msg.Version
	}
	if msg.IPAddress != "" {
		inst.IPAddress = msg.IPAddress
	}
	if len(msg.Ports) > 0 {
		inst.Ports = append([]int(nil), msg.Ports...)
	}

	return *inst, prev
}

// RecordHealth updates an instance's health independently of its lifecycle
// state and refreshes last-seen. Health for an instance the tracker has
// never seen creates a placeholder in Unknown state so the report is not
// lost.
func (t *Tracker) RecordHealth(msg *types.HealthMessage) types.ServiceInstance {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := types.InstanceKey{Service: msg.ServiceName, Instance: msg.InstanceID}
	inst, ok := t.instances[key]
	if !ok {
		inst = &types.ServiceInstance{
			ServiceName: msg.ServiceName,
			InstanceID:  msg.InstanceID,
			State:       types.InstanceStateUnknown,
		}
		t.instances[key] = inst
	}

	inst.Health = msg.Health
	inst.LastSeen = t.now()
	return *inst
}

// SetMaintenance toggles the maintenance flag on all instances of a service.
// Maintenance is orthogonal to the lifecycle state.
func (t *Tracker) SetMaintenance(service string, on bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, inst := range t.instances {
		if inst.ServiceName == service {
			inst.Maintenance = on
			n++
		}
	}
	return n
}

// Get returns one instance by key.
func (t *Tracker) Get(service, instanceID string) (types.ServiceInstance, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	inst, ok := t.instances[types.InstanceKey{Service: service, Instance: instanceID}]
	if !ok {
		return types.ServiceInstance{}, false
	}
	return *inst, true
}

// List returns all instances of one service, sorted by instance id.
func (t *Tracker) List(service string) []types.ServiceInstance {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []types.ServiceInstance
	for _, inst := range t.instances {
		if inst.ServiceName == service {
			out = append(out, *inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstanceID < out[j].InstanceID })
	return out
}

// All returns every tracked instance, sorted by key.
func (t *Tracker) All() []types.ServiceInstance {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]types.ServiceInstance, 0, len(t.instances))
	for _, inst := range t.instances {
		out = append(out, *inst)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ServiceName != out[j].ServiceName {
			return out[i].ServiceName < out[j].ServiceName
		}
		return out[i].InstanceID < out[j].InstanceID
	})
	return out
}

// ListByState returns every instance currently in the given state.
func (t *Tracker) ListByState(state types.InstanceState) []types.ServiceInstance {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []types.ServiceInstance
	for _, inst := range t.instances {
		if inst.State == state {
			out = append(out, *inst)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ServiceName != out[j].ServiceName {
			return out[i].ServiceName < out[j].ServiceName
		}
		return out[i].InstanceID < out[j].InstanceID
	})
	return out
}

// HasRunning reports whether the service has at least one Running instance.
// Satisfies graph.InstanceSource.
func (t *Tracker) HasRunning(service string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, inst := range t.instances {
		if inst.ServiceName == service && inst.State == types.InstanceStateRunning {
			return true
		}
	}
	return false
}

// SweepStale transitions every instance whose last-seen timestamp predates
// now-threshold to Unknown and returns the keys that became stale in this
// sweep. Instances already Unknown are not reported again.
func (t *Tracker) SweepStale(threshold time.Duration) []types.InstanceKey {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-threshold)
	var stale []types.InstanceKey
	for key, inst := range t.instances {
		if inst.State == types.InstanceStateUnknown {
			continue
		}
		if inst.LastSeen.Before(cutoff) {
			inst.State = types.InstanceStateUnknown
			inst.Health = types.HealthUnknown
			stale = append(stale, key)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].String() < stale[j].String() })
	return stale
}

// Deregister removes an instance. This is the only deletion path.
func (t *Tracker) Deregister(service, instanceID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := types.InstanceKey{Service: service, Instance: instanceID}
	if _, ok := t.instances[key]; !ok {
		return fmt.Errorf("instance not found: %s", key)
	}
	delete(t.instances, key)
	return nil
}

// DeregisterService removes every instance of a service and returns how many
// were removed.
func (t *Tracker) DeregisterService(service string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for key, inst := range t.instances {
		if inst.ServiceName == service {
			delete(t.instances, key)
			n++
		}
	}
	return n
}
