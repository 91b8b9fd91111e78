package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homebus/conductor/pkg/registry"
	"github.com/homebus/conductor/pkg/tracker"
	"github.com/homebus/conductor/pkg/types"
)

func TestProberRecordsHealth(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	reg, err := registry.New(nil)
	require.NoError(t, err)
	require.NoError(t, reg.Register(&types.ServiceDefinition{
		Name: "api",
		HealthCheck: &types.HealthCheck{
			Type:     types.HealthCheckHTTP,
			Endpoint: server.URL,
			Interval: 10 * time.Millisecond,
			Retries:  1,
		},
	}))

	tr := tracker.New()
	tr.RecordStatus(&types.StatusMessage{
		ServiceName: "api", InstanceID: "api-1", State: types.InstanceStateRunning,
	})

	p := NewProber(reg, tr)
	require.Equal(t, 1, p.Pass(context.Background()))

	inst, ok := tr.Get("api", "api-1")
	require.True(t, ok)
	assert.Equal(t, types.HealthHealthy, inst.Health)

	// Endpoint turns sour; with retries=1 one failed probe flips it.
	healthy.Store(false)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, p.Pass(context.Background()))

	inst, ok = tr.Get("api", "api-1")
	require.True(t, ok)
	assert.Equal(t, types.HealthUnhealthy, inst.Health)
}

func TestProberSkipsBusAndUndeclaredChecks(t *testing.T) {
	reg, err := registry.New(nil)
	require.NoError(t, err)
	require.NoError(t, reg.Register(
		&types.ServiceDefinition{Name: "plain"},
		&types.ServiceDefinition{
			Name:        "heartbeat",
			HealthCheck: &types.HealthCheck{Type: types.HealthCheckBus},
		},
	))

	p := NewProber(reg, tracker.New())
	assert.Equal(t, 0, p.Pass(context.Background()))
	assert.Empty(t, p.probes)
}

func TestProberHonorsInterval(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	reg, err := registry.New(nil)
	require.NoError(t, err)
	require.NoError(t, reg.Register(&types.ServiceDefinition{
		Name: "api",
		HealthCheck: &types.HealthCheck{
			Type:     types.HealthCheckHTTP,
			Endpoint: server.URL,
			Interval: time.Hour,
		},
	}))

	p := NewProber(reg, tracker.New())
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return base }

	assert.Equal(t, 1, p.Pass(context.Background()))
	assert.Equal(t, 0, p.Pass(context.Background()), "interval not yet elapsed")

	p.now = func() time.Time { return base.Add(2 * time.Hour) }
	assert.Equal(t, 1, p.Pass(context.Background()))
	assert.Equal(t, int32(2), calls.Load())
}

func TestProberDropsDeregisteredServices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	reg, err := registry.New(nil)
	require.NoError(t, err)
	require.NoError(t, reg.Register(&types.ServiceDefinition{
		Name: "api",
		HealthCheck: &types.HealthCheck{
			Type:     types.HealthCheckHTTP,
			Endpoint: server.URL,
			Interval: time.Millisecond,
		},
	}))

	p := NewProber(reg, tracker.New())
	require.Equal(t, 1, p.Pass(context.Background()))

	require.NoError(t, reg.Deregister("api"))
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 0, p.Pass(context.Background()))
	assert.Empty(t, p.probes)
}
