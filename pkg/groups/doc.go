// Package groups implements named service groups and their expansion
// into per-member tasks.
//
// A group names a set of services plus optional explicit start and stop
// orders. Starting a group submits one start task per member, ordered by
// the dependency graph unless an explicit start order overrides it;
// stopping reverses the start order (or uses the explicit stop order).
// Expansion is not a transaction: the scheduler still gates each start
// task on its own dependencies, and one member failing leaves the
// others where they are.
package groups
