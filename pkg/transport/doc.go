/*
Package transport abstracts the message bus between Conductor and the
managed services.

The orchestrator is deliberately decoupled from delivery mechanics: it
publishes ControlMessages to a per-service control channel and consumes
StatusMessages and HealthMessages from shared inbound channels. Nothing in
the core assumes a command arrived; confirmation always comes from an
observed status report.

Two implementations:

  - MQTTTransport: Eclipse Paho client against the home automation bus.
    Topics are homebus/control/<service> outbound and homebus/status/+,
    homebus/health/+ inbound, JSON payloads, QoS 1 with auto-reconnect.
  - Inmem: a synchronous loopback used by tests and local development.
    Tests register control handlers to play managed services and inject
    status/health messages to drive the tracker.
*/
package transport
