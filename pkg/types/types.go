package types

import (
	"time"
)

// ServiceDefinition describes a deployable bus service and its place in the
// dependency graph. Definitions are immutable after registration; changing a
// definition means re-registering it, which re-runs cycle detection.
type ServiceDefinition struct {
	Name          string            `json:"name" yaml:"name"`
	DependsOn     []string          `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	OptionalDeps  []string          `json:"optional_deps,omitempty" yaml:"optional_deps,omitempty"`
	Priority      int               `json:"priority" yaml:"priority"`
	Category      string            `json:"category,omitempty" yaml:"category,omitempty"`
	HealthCheck   *HealthCheck      `json:"healthcheck,omitempty" yaml:"healthcheck,omitempty"`
	RestartPolicy *RestartPolicy    `json:"restart_policy,omitempty" yaml:"restart_policy,omitempty"`
	Labels        map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
	RegisteredAt  time.Time         `json:"registered_at" yaml:"-"`
}

// HealthCheck defines how a managed service reports liveness.
type HealthCheck struct {
	Type     HealthCheckType `json:"type" yaml:"type"`
	Endpoint string          `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Interval time.Duration   `json:"interval" yaml:"interval"`
	Timeout  time.Duration   `json:"timeout" yaml:"timeout"`
	Retries  int             `json:"retries" yaml:"retries"`
}

// HealthCheckType defines the type of health check
type HealthCheckType string

const (
	HealthCheckHTTP HealthCheckType = "http"
	HealthCheckTCP  HealthCheckType = "tcp"
	HealthCheckBus  HealthCheckType = "bus" // heartbeat over the status channel
)

// RestartPolicy defines restart behavior for a managed service.
type RestartPolicy struct {
	Condition   RestartCondition `json:"condition" yaml:"condition"`
	MaxAttempts int              `json:"max_attempts" yaml:"max_attempts"`
	Delay       time.Duration    `json:"delay" yaml:"delay"`
}

// RestartCondition defines when to restart
type RestartCondition string

const (
	RestartNever     RestartCondition = "never"
	RestartOnFailure RestartCondition = "on-failure"
	RestartAlways    RestartCondition = "always"
)

// InstanceState represents the lifecycle state of a service instance.
// Transitions follow Stopped → Starting → Running → Stopping → Stopped;
// Failed is reachable from Starting or Running. Maintenance is an
// orthogonal flag on the instance, not a lifecycle state.
type InstanceState string

const (
	InstanceStateUnknown  InstanceState = "unknown"
	InstanceStateStopped  InstanceState = "stopped"
	InstanceStateStarting InstanceState = "starting"
	InstanceStateRunning  InstanceState = "running"
	InstanceStateStopping InstanceState = "stopping"
	InstanceStateFailed   InstanceState = "failed"
)

// HealthState represents reported instance health, independent of lifecycle.
type HealthState string

const (
	HealthUnknown   HealthState = "unknown"
	HealthHealthy   HealthState = "healthy"
	HealthUnhealthy HealthState = "unhealthy"
)

// ServiceInstance is one running (or previously seen) copy of a service,
// keyed by (ServiceName, InstanceID). Instances are created and updated only
// by inbound status/health events; tasks request transitions, they never
// write instance state directly.
type ServiceInstance struct {
	ServiceName  string        `json:"service_name"`
	InstanceID   string        `json:"instance_id"`
	State        InstanceState `json:"state"`
	Health       HealthState   `json:"health"`
	Maintenance  bool          `json:"maintenance"`
	LastSeen     time.Time     `json:"last_seen"`
	StartTime    time.Time     `json:"start_time,omitempty"`
	StopTime     time.Time     `json:"stop_time,omitempty"`
	RestartCount int           `json:"restart_count"`
	ContainerID  string        `json:"container_id,omitempty"`
	Version      string        `json:"version,omitempty"`
	IPAddress    string        `json:"ip_address,omitempty"`
	Ports        []int         `json:"ports,omitempty"`
}

// Key returns the tracker key for this instance.
func (i *ServiceInstance) Key() InstanceKey {
	return InstanceKey{Service: i.ServiceName, Instance: i.InstanceID}
}

// InstanceKey identifies an instance in the tracker.
type InstanceKey struct {
	Service  string `json:"service"`
	Instance string `json:"instance"`
}

func (k InstanceKey) String() string {
	return k.Service + "/" + k.Instance
}

// TaskAction is the requested lifecycle operation of a task.
type TaskAction string

const (
	ActionStart       TaskAction = "start"
	ActionStop        TaskAction = "stop"
	ActionRestart     TaskAction = "restart"
	ActionScale       TaskAction = "scale"
	ActionUpdate      TaskAction = "update"
	ActionMaintenance TaskAction = "maintenance"
)

// TaskStatus represents the scheduler-visible state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Task is a single requested orchestration operation against one service.
// Tasks are created by an external request, mutated only by the scheduler and
// execution engine, and retained after completion for audit.
type Task struct {
	ID          string            `json:"id"`
	Action      TaskAction        `json:"action"`
	ServiceName string            `json:"service_name"`
	InstanceID  string            `json:"instance_id,omitempty"`
	Parameters  map[string]string `json:"parameters,omitempty"`
	Status      TaskStatus        `json:"status"`
	Progress    int               `json:"progress"`
	Error       string            `json:"error,omitempty"`
	CreatedBy   string            `json:"created_by,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   time.Time         `json:"started_at,omitempty"`
	CompletedAt time.Time         `json:"completed_at,omitempty"`
}

// ServiceGroup names a set of services operated on together. Order overrides
// are optional; when absent the coordinator derives order from the dependency
// graph. Groups carry no runtime state.
type ServiceGroup struct {
	Name       string   `json:"name" yaml:"name"`
	Members    []string `json:"members" yaml:"members"`
	StartOrder []string `json:"start_order,omitempty" yaml:"start_order,omitempty"`
	StopOrder  []string `json:"stop_order,omitempty" yaml:"stop_order,omitempty"`
}

// ControlCommand is the outbound command verb on a service control channel.
type ControlCommand string

const (
	CommandStart       ControlCommand = "start"
	CommandStop        ControlCommand = "stop"
	CommandScale       ControlCommand = "scale"
	CommandUpdate      ControlCommand = "update"
	CommandMaintenance ControlCommand = "maintenance"
)

// ControlMessage is published to a service's control channel.
type ControlMessage struct {
	Command    ControlCommand    `json:"command"`
	TaskID     string            `json:"task_id"`
	Timestamp  time.Time         `json:"timestamp"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// StatusMessage is received on a service's status channel.
type StatusMessage struct {
	ServiceName string        `json:"service_name"`
	InstanceID  string        `json:"instance_id"`
	State       InstanceState `json:"state"`
	ContainerID string        `json:"container_id,omitempty"`
	Version     string        `json:"version,omitempty"`
	IPAddress   string        `json:"ip_address,omitempty"`
	Ports       []int         `json:"ports,omitempty"`
}

// HealthMessage is received on a service's health channel.
type HealthMessage struct {
	ServiceName string      `json:"service_name"`
	InstanceID  string      `json:"instance_id"`
	Health      HealthState `json:"health_status"`
}
