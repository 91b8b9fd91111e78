/*
Package tracker maintains the live instance table for Conductor.

Every status or health message received from the bus is upserted here,
keyed by (service name, instance id). The tracker is the single source of
truth the rest of the orchestrator reads:

  - the scheduler asks HasRunning for start-task admission
  - the execution engine polls Get until a requested transition is observed
  - the health monitor calls SweepStale to age silent instances to Unknown
  - the recovery loop scans ListByState for Failed instances

Instances are never mutated by tasks directly; a task only requests a
transition over the bus and waits for the resulting status report to land
here. The only deletion path is explicit deregistration.

All methods are safe for concurrent use; reads return copies so callers
never hold references into the guarded map.
*/
package tracker
