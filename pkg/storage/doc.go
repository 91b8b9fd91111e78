/*
Package storage provides persistent state storage for Conductor using BoltDB.

The store holds the data that must survive an orchestrator restart: the
service definition catalog, the service groups, and the task audit trail.
Live instance state is deliberately not persisted; it is rebuilt from the
status channel as managed services report in.

Layout is one bucket per type with JSON-encoded values keyed by name (or
task id). Put is an upsert. Tasks are append/overwrite only; there is no
task deletion path, so the audit trail is complete for the lifetime of the
database file.

BoltDB gives single-writer, multi-reader transactions with no external
process, which matches the single-active-orchestrator deployment model.
*/
package storage
