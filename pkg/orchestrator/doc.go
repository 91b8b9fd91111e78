// Package orchestrator assembles the conductor control plane.
//
// Layout:
//
//	                   ┌──────────────┐
//	      bus ────────▶│  transport   │──── control commands ────▶ bus
//	 status/health     └──────┬───────┘
//	                          │
//	                   ┌──────▼───────┐     ┌──────────────┐
//	                   │   tracker    │◀────│   monitor    │ stale sweep
//	                   └──────┬───────┘     │   + prober   │
//	                          │             └──────────────┘
//	   ┌──────────┐    ┌──────▼───────┐     ┌──────────────┐
//	   │ registry │───▶│  scheduler   │◀────│   recovery   │ restarts
//	   └────┬─────┘    └──────┬───────┘     └──────────────┘
//	        │                 │
//	   ┌────▼─────┐    ┌──────▼───────┐
//	   │  groups  │───▶│  task queue  │
//	   └──────────┘    └──────────────┘
//
// The facade owns construction order and shutdown order, routes inbound
// status and health reports into the tracker, and exposes the operations
// surface the HTTP API and CLI call. It also implements the metrics
// source the gauge collector samples.
//
// All state lives in the registry (definitions), tracker (instances) and
// scheduler (tasks); the facade holds no state of its own beyond wiring.
package orchestrator
