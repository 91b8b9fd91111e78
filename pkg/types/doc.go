/*
Package types defines the core data structures used throughout Conductor.

This package contains the fundamental types of the orchestrator's domain
model: service definitions and their dependency edges, live service
instances, orchestration tasks, service groups, and the wire messages
exchanged with managed services over the bus.

# Core Types

Service catalog:
  - ServiceDefinition: a deployable bus service with declared dependencies
  - HealthCheck / RestartPolicy: per-service supervision settings
  - ServiceGroup: a named set of services operated on together

Runtime state:
  - ServiceInstance: one copy of a service, keyed by (service, instance id)
  - InstanceState: unknown, stopped, starting, running, stopping, failed
  - HealthState: health reported independently of the lifecycle state

Orchestration:
  - Task: one requested lifecycle operation (start/stop/restart/scale/
    update/maintenance) against one service
  - TaskStatus: pending, running, completed, failed, cancelled

Wire messages:
  - ControlMessage: outbound command on a service's control channel
  - StatusMessage / HealthMessage: inbound state and health reports

All types are JSON-serializable; definition and group types additionally
carry YAML tags so they can be loaded from catalog files.
*/
package types
