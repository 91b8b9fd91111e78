// Package recovery implements automatic restarts of failed instances.
//
// The loop reads the tracker on a fixed interval and submits a restart
// task for every instance in the Failed state, stamped created_by
// "auto_recovery". Two brakes keep it from thrashing a crash-looping
// service: a per-instance cooldown between attempts, and an optional cap
// on consecutive attempts. Both have orchestrator-wide defaults and can
// be overridden per service through its restart policy; a policy
// condition of "never" opts the service out entirely. The attempt count
// resets once the instance reports Running, so a service that recovers
// and fails again later gets a full budget.
//
// Submitted tasks go through the regular scheduler queue, which means
// recovery restarts respect concurrency limits and dependency gating
// like any operator-submitted task.
package recovery
