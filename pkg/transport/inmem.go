package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/homebus/conductor/pkg/types"
)

// ControlHandler consumes control commands in the in-memory transport,
// playing the role of a managed service in tests.
type ControlHandler func(*types.ControlMessage)

// Inmem is a loopback Transport for tests and local development. Control
// commands are recorded and fanned out synchronously to per-service
// handlers; tests inject status and health messages to simulate managed
// services reporting back.
type Inmem struct {
	mu              sync.Mutex
	closed          bool
	statusHandlers  []StatusHandler
	healthHandlers  []HealthHandler
	controlHandlers map[string][]ControlHandler
	published       map[string][]types.ControlMessage
}

// NewInmem creates an in-memory loopback transport.
func NewInmem() *Inmem {
	return &Inmem{
		controlHandlers: make(map[string][]ControlHandler),
		published:       make(map[string][]types.ControlMessage),
	}
}

// PublishControl records the command and delivers it to any registered
// control handlers for the service.
func (t *Inmem) PublishControl(_ context.Context, service string, msg *types.ControlMessage) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport closed")
	}
	t.published[service] = append(t.published[service], *msg)
	handlers := append([]ControlHandler(nil), t.controlHandlers[service]...)
	t.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
	return nil
}

// SubscribeStatus registers a status handler.
func (t *Inmem) SubscribeStatus(handler StatusHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statusHandlers = append(t.statusHandlers, handler)
	return nil
}

// SubscribeHealth registers a health handler.
func (t *Inmem) SubscribeHealth(handler HealthHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.healthHandlers = append(t.healthHandlers, handler)
	return nil
}

// Close marks the transport closed; further publishes fail.
func (t *Inmem) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// OnControl registers a handler invoked for every control command published
// to the named service.
func (t *Inmem) OnControl(service string, handler ControlHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.controlHandlers[service] = append(t.controlHandlers[service], handler)
}

// InjectStatus delivers a status message to all status subscribers, as the
// bus would.
func (t *Inmem) InjectStatus(msg *types.StatusMessage) {
	t.mu.Lock()
	handlers := append([]StatusHandler(nil), t.statusHandlers...)
	t.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
}

// InjectHealth delivers a health message to all health subscribers.
func (t *Inmem) InjectHealth(msg *types.HealthMessage) {
	t.mu.Lock()
	handlers := append([]HealthHandler(nil), t.healthHandlers...)
	t.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
}

// Published returns a copy of every control command published to a service,
// in publish order.
func (t *Inmem) Published(service string) []types.ControlMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]types.ControlMessage(nil), t.published[service]...)
}
