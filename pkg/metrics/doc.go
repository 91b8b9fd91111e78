/*
Package metrics provides Prometheus metrics and process health reporting
for Conductor.

Exported collectors cover the orchestration hot paths: task counts by
status, queue depth, active workers, execution duration by action, tracked
instances by state, stale sweeps, and auto-recovery attempts. All metrics
are registered at init and served by Handler on /metrics.

A Collector samples the gauge metrics from the orchestrator on a fixed
interval; counters and histograms are incremented inline by the scheduler
and execution engine.

The package also carries a lightweight component health registry used by
the /health, /ready, and /live endpoints: each subsystem reports up or
down, and readiness requires the transport, scheduler, and store.
*/
package metrics
