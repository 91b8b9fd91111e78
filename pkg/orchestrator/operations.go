package orchestrator

import (
	"github.com/homebus/conductor/pkg/graph"
	"github.com/homebus/conductor/pkg/types"
)

// ServiceStatus pairs a definition with its live instances.
type ServiceStatus struct {
	Definition *types.ServiceDefinition `json:"definition"`
	Instances  []types.ServiceInstance  `json:"instances"`
}

// Register adds service definitions to the catalog as one atomic batch.
func (o *Orchestrator) Register(defs ...*types.ServiceDefinition) error {
	return o.registry.Register(defs...)
}

// Deregister removes a service definition. Rejected while another
// service depends on it.
func (o *Orchestrator) Deregister(name string) error {
	return o.registry.Deregister(name)
}

// ListServices returns all definitions with their instances.
func (o *Orchestrator) ListServices() []ServiceStatus {
	defs := o.registry.List()
	out := make([]ServiceStatus, 0, len(defs))
	for _, def := range defs {
		out = append(out, ServiceStatus{
			Definition: def,
			Instances:  o.tracker.List(def.Name),
		})
	}
	return out
}

// GetServiceStatus returns one service with its instances.
func (o *Orchestrator) GetServiceStatus(name string) (ServiceStatus, bool) {
	def, ok := o.registry.Get(name)
	if !ok {
		return ServiceStatus{}, false
	}
	return ServiceStatus{Definition: def, Instances: o.tracker.List(name)}, true
}

// StartService submits a start task.
func (o *Orchestrator) StartService(name, createdBy string) (*types.Task, error) {
	return o.scheduler.CreateTask(types.ActionStart, name, "", nil, createdBy)
}

// StopService submits a stop task.
func (o *Orchestrator) StopService(name, createdBy string) (*types.Task, error) {
	return o.scheduler.CreateTask(types.ActionStop, name, "", nil, createdBy)
}

// RestartService submits a restart task, optionally targeting a single
// instance.
func (o *Orchestrator) RestartService(name, instanceID, createdBy string) (*types.Task, error) {
	return o.scheduler.CreateTask(types.ActionRestart, name, instanceID, nil, createdBy)
}

// ScaleService submits a scale task with the desired replica count.
func (o *Orchestrator) ScaleService(name, replicas, createdBy string) (*types.Task, error) {
	return o.scheduler.CreateTask(types.ActionScale, name, "",
		map[string]string{"replicas": replicas}, createdBy)
}

// UpdateService submits an update task with opaque parameters forwarded
// to the service.
func (o *Orchestrator) UpdateService(name string, params map[string]string, createdBy string) (*types.Task, error) {
	return o.scheduler.CreateTask(types.ActionUpdate, name, "", params, createdBy)
}

// SetMaintenance submits a maintenance task toggling the flag on all of
// the service's instances.
func (o *Orchestrator) SetMaintenance(name string, enabled bool, createdBy string) (*types.Task, error) {
	value := "false"
	if enabled {
		value = "true"
	}
	return o.scheduler.CreateTask(types.ActionMaintenance, name, "",
		map[string]string{"enabled": value}, createdBy)
}

// GetTask returns a task by id.
func (o *Orchestrator) GetTask(id string) (types.Task, error) {
	return o.scheduler.GetTask(id)
}

// ListTasks returns all tasks ordered by creation time.
func (o *Orchestrator) ListTasks() []types.Task {
	return o.scheduler.ListTasks()
}

// CancelTask aborts a pending or running task.
func (o *Orchestrator) CancelTask(id string) error {
	return o.scheduler.CancelTask(id)
}

// DefineGroup registers a service group.
func (o *Orchestrator) DefineGroup(group *types.ServiceGroup) error {
	return o.groups.Define(group)
}

// DeleteGroup removes a service group.
func (o *Orchestrator) DeleteGroup(name string) error {
	return o.groups.Delete(name)
}

// GetGroup returns a group by name.
func (o *Orchestrator) GetGroup(name string) (types.ServiceGroup, error) {
	return o.groups.Get(name)
}

// ListGroups returns all groups.
func (o *Orchestrator) ListGroups() []types.ServiceGroup {
	return o.groups.List()
}

// StartGroup submits start tasks for all group members in order and
// returns the task ids.
func (o *Orchestrator) StartGroup(name, createdBy string) ([]string, error) {
	return o.groups.Start(name, createdBy)
}

// StopGroup submits stop tasks for all group members in reverse order.
func (o *Orchestrator) StopGroup(name, createdBy string) ([]string, error) {
	return o.groups.Stop(name, createdBy)
}

// DependencyGraph returns the dependency view of every service.
func (o *Orchestrator) DependencyGraph() []graph.DependencyView {
	return o.registry.Graph().Views()
}

// TopologicalOrder returns the full catalog in dependency order.
func (o *Orchestrator) TopologicalOrder() ([]string, error) {
	return o.registry.Graph().TopologicalOrder()
}

// Instances returns all tracked instances.
func (o *Orchestrator) Instances() []types.ServiceInstance {
	return o.tracker.All()
}

// metrics.Source implementation.

func (o *Orchestrator) TaskCounts() map[types.TaskStatus]int {
	return o.scheduler.TaskCounts()
}

func (o *Orchestrator) InstanceCounts() map[types.InstanceState]int {
	counts := make(map[types.InstanceState]int)
	for _, inst := range o.tracker.All() {
		counts[inst.State]++
	}
	return counts
}

func (o *Orchestrator) QueueDepth() int {
	return o.scheduler.QueueDepth()
}

func (o *Orchestrator) ActiveWorkers() int {
	return o.scheduler.ActiveCount()
}

func (o *Orchestrator) RegisteredServices() int {
	return len(o.registry.List())
}
