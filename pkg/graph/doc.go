/*
Package graph implements the dependency graph engine for Conductor.

The graph is built from the registered service definitions: an edge A -> B
means A depends on B, i.e. B must be Running before A may start. The engine
answers three questions for the rest of the orchestrator:

  - TopologicalOrder: a start order consistent with every edge, or a
    CycleError naming the offending services. Detection is a standard
    three-color DFS; a gray node reached again closes a cycle.
  - DependencySatisfied: whether every hard dependency of a service has at
    least one Running instance right now (the scheduler's admission check
    for start tasks).
  - Dependents: the reverse edges, used for cascade-stop ordering.

The graph is immutable once built and holds no runtime state; the registry
rebuilds it on every catalog change. Optional dependencies are carried in
the derived views but never gate admission.
*/
package graph
