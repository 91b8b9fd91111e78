/*
Package events provides an in-memory event broker for Conductor.

The broker broadcasts orchestrator events (task lifecycle, instance state
transitions, stale sweeps, recovery attempts) to interested subscribers
over buffered channels. Publishing never blocks: the broker buffers up to
100 pending events, and a subscriber whose own buffer is full simply
misses the event.

The broker is internal plumbing between the orchestrator core, the API
layer, and tests; it is unrelated to the MQTT bus, which is handled by the
transport package.
*/
package events
