// Package api exposes the orchestrator over HTTP.
//
// All operational endpoints live under /api/v1 and speak JSON. Task
// submissions return 202 with the created task; callers poll the task
// endpoint or watch the bus for completion. The root also serves the
// Prometheus /metrics endpoint and the /healthz, /readyz and /livez
// probes backed by the component health registry.
//
// The X-Conductor-User header, when present, is recorded as the task's
// created_by for the audit trail.
package api
