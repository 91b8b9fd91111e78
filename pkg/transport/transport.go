package transport

import (
	"context"

	"github.com/homebus/conductor/pkg/types"
)

// StatusHandler consumes inbound instance status messages.
type StatusHandler func(*types.StatusMessage)

// HealthHandler consumes inbound instance health messages.
type HealthHandler func(*types.HealthMessage)

// Transport is the message bus the orchestrator publishes control commands
// to and receives status/health events from. Delivery semantics are the
// bus's: at-most-once from the orchestrator's point of view, no ordering
// guarantee across services. The orchestrator never assumes a command
// succeeded; it waits for the resulting status report.
type Transport interface {
	// PublishControl publishes a control command on the target service's
	// control channel.
	PublishControl(ctx context.Context, service string, msg *types.ControlMessage) error

	// SubscribeStatus registers a handler for all inbound status messages.
	SubscribeStatus(handler StatusHandler) error

	// SubscribeHealth registers a handler for all inbound health messages.
	SubscribeHealth(handler HealthHandler) error

	// Close tears down the connection. Handlers receive nothing afterwards.
	Close() error
}
