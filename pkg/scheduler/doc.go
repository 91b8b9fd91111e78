/*
Package scheduler provides the task queue, admission control, and execution
engine for Conductor.

Orchestration requests become Tasks: one requested lifecycle operation
(start, stop, restart, scale, update, maintenance) against one service.
Submission is asynchronous; CreateTask validates the target against the
registry, queues the task, and returns its id immediately.

# Admission

One long-lived Run loop owns the queue. Each pass it dispatches tasks in
FIFO submission order while capacity remains:

	┌──────────────────────────────────────────────────────────┐
	│                     Admission pass                        │
	│  for each pending task, in submission order:              │
	│    • capacity full?            → keep waiting             │
	│    • start w/ unmet deps?      → skip, stay pending       │
	│    • otherwise                 → dispatch to a worker     │
	└──────────────────────────────────────────────────────────┘

A start task whose dependency is not Running is deferred, never failed: it
keeps its queue position and is re-examined on every tick and on every
instance state change, so it executes as soon as the dependency comes up.
Stop, scale, update, and maintenance have no dependency precondition.

# Execution

Each dispatched task runs on its own goroutine, bounded by
MaxConcurrentTasks. The executor publishes the control command on the bus
and then polls the instance tracker until the expected state is observed
or the task timeout elapses; success is never assumed from the publish
alone. Restart is two sequential sub-operations with a settle delay and is
not atomic: a stop that succeeds followed by a start that fails leaves the
instance stopped and the task failed.

Task failures are recorded on the task (status, error message, progress)
and never propagate into the admission loop. Every in-flight task carries
a cancellation context, and CancelTask aborts a pending or running task;
the same path makes shutdown deterministic.

Completed tasks stay in the table and in the BoltDB audit trail.
*/
package scheduler
