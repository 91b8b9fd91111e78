package health

import (
	"context"
	"fmt"
	"time"

	"github.com/homebus/conductor/pkg/types"
)

// Result represents the outcome of one probe.
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker probes one service endpoint.
type Checker interface {
	// Check performs the probe and returns the result
	Check(ctx context.Context) Result

	// Type returns the probe type
	Type() types.HealthCheckType
}

// ForService builds the checker declared by a service definition. Bus
// checks are passive (the service heartbeats on its own), so they have
// no checker and return nil.
func ForService(def *types.ServiceDefinition) (Checker, error) {
	hc := def.HealthCheck
	if hc == nil || hc.Type == types.HealthCheckBus {
		return nil, nil
	}
	if hc.Endpoint == "" {
		return nil, fmt.Errorf("service %s: %s health check needs an endpoint", def.Name, hc.Type)
	}

	switch hc.Type {
	case types.HealthCheckHTTP:
		checker := NewHTTPChecker(hc.Endpoint)
		if hc.Timeout > 0 {
			checker.WithTimeout(hc.Timeout)
		}
		return checker, nil
	case types.HealthCheckTCP:
		checker := NewTCPChecker(hc.Endpoint)
		if hc.Timeout > 0 {
			checker.WithTimeout(hc.Timeout)
		}
		return checker, nil
	default:
		return nil, fmt.Errorf("service %s: unknown health check type %q", def.Name, hc.Type)
	}
}

// Status tracks consecutive probe outcomes for one service and applies
// the retry threshold before flipping to unhealthy.
type Status struct {
	// ConsecutiveFailures tracks the number of consecutive failed probes
	ConsecutiveFailures int

	// ConsecutiveSuccesses tracks the number of consecutive successful probes
	ConsecutiveSuccesses int

	// LastCheck is the timestamp of the last probe
	LastCheck time.Time

	// LastResult is the result of the last probe
	LastResult Result

	// Healthy indicates if the service is currently considered healthy
	Healthy bool
}

// NewStatus creates a new Status.
func NewStatus() *Status {
	return &Status{
		Healthy: true, // Assume healthy until proven otherwise
	}
}

// Update folds a new probe result into the status. Retries is the number
// of consecutive failures tolerated before the status flips.
func (s *Status) Update(result Result, retries int) {
	s.LastCheck = result.CheckedAt
	s.LastResult = result

	if result.Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
		s.Healthy = true
		return
	}

	s.ConsecutiveFailures++
	s.ConsecutiveSuccesses = 0
	if retries <= 0 {
		retries = 1
	}
	if s.ConsecutiveFailures >= retries {
		s.Healthy = false
	}
}

// State maps the boolean status to the tracker's health state.
func (s *Status) State() types.HealthState {
	if s.Healthy {
		return types.HealthHealthy
	}
	return types.HealthUnhealthy
}
