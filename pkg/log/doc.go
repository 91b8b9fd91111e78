/*
Package log provides structured logging for Conductor built on zerolog.

A single global logger is initialized once at startup via Init, with the
level and output format taken from configuration. Components derive child
loggers with WithComponent, WithService, WithTaskID, or WithInstance so
every line carries the fields needed to trace an operation across the
scheduler, executor, and sweep loops.

Console output (human-readable, RFC3339 timestamps) is the default;
JSONOutput switches to newline-delimited JSON for log shippers.
*/
package log
