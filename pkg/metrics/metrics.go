package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Task metrics
	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "conductor_tasks_total",
			Help: "Total number of orchestration tasks by status",
		},
		[]string{"status"},
	)

	TaskQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conductor_task_queue_depth",
			Help: "Number of tasks waiting for admission",
		},
	)

	ActiveWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conductor_active_workers",
			Help: "Number of task workers currently executing",
		},
	)

	TasksDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conductor_tasks_dispatched_total",
			Help: "Total number of tasks dispatched for execution by action",
		},
		[]string{"action"},
	)

	TasksCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conductor_tasks_completed_total",
			Help: "Total number of tasks that completed successfully",
		},
	)

	TasksFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conductor_tasks_failed_total",
			Help: "Total number of tasks that failed",
		},
	)

	TaskExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conductor_task_execution_duration_seconds",
			Help:    "Task execution duration in seconds by action",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	// Instance metrics
	InstancesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "conductor_instances_total",
			Help: "Total number of tracked instances by state",
		},
		[]string{"state"},
	)

	ServicesRegistered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conductor_services_registered",
			Help: "Number of registered service definitions",
		},
	)

	// Sweep and recovery metrics
	StaleSweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conductor_stale_sweeps_total",
			Help: "Total number of health monitor sweep cycles",
		},
	)

	InstancesMarkedStale = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conductor_instances_marked_stale_total",
			Help: "Total number of instances aged out to unknown state",
		},
	)

	RecoveryAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conductor_recovery_attempts_total",
			Help: "Total number of restart tasks issued by auto-recovery",
		},
	)

	// Transport metrics
	ControlPublishFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conductor_control_publish_failures_total",
			Help: "Total number of control commands that failed to publish",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(TaskQueueDepth)
	prometheus.MustRegister(ActiveWorkers)
	prometheus.MustRegister(TasksDispatched)
	prometheus.MustRegister(TasksCompleted)
	prometheus.MustRegister(TasksFailed)
	prometheus.MustRegister(TaskExecutionDuration)
	prometheus.MustRegister(InstancesTotal)
	prometheus.MustRegister(ServicesRegistered)
	prometheus.MustRegister(StaleSweepsTotal)
	prometheus.MustRegister(InstancesMarkedStale)
	prometheus.MustRegister(RecoveryAttempts)
	prometheus.MustRegister(ControlPublishFailures)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
