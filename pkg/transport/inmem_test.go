package transport

import (
	"context"
	"testing"
	"time"

	"github.com/homebus/conductor/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishControlRecordsAndDelivers(t *testing.T) {
	tr := NewInmem()

	var seen []types.ControlCommand
	tr.OnControl("tts", func(msg *types.ControlMessage) {
		seen = append(seen, msg.Command)
	})

	msg := &types.ControlMessage{
		Command:   types.CommandStart,
		TaskID:    "t-1",
		Timestamp: time.Now(),
	}
	require.NoError(t, tr.PublishControl(context.Background(), "tts", msg))

	assert.Equal(t, []types.ControlCommand{types.CommandStart}, seen)

	published := tr.Published("tts")
	require.Len(t, published, 1)
	assert.Equal(t, "t-1", published[0].TaskID)
	assert.Empty(t, tr.Published("other"))
}

func TestInjectStatusAndHealth(t *testing.T) {
	tr := NewInmem()

	var states []types.InstanceState
	require.NoError(t, tr.SubscribeStatus(func(msg *types.StatusMessage) {
		states = append(states, msg.State)
	}))

	var health []types.HealthState
	require.NoError(t, tr.SubscribeHealth(func(msg *types.HealthMessage) {
		health = append(health, msg.Health)
	}))

	tr.InjectStatus(&types.StatusMessage{ServiceName: "stt", InstanceID: "s-1", State: types.InstanceStateRunning})
	tr.InjectHealth(&types.HealthMessage{ServiceName: "stt", InstanceID: "s-1", Health: types.HealthHealthy})

	assert.Equal(t, []types.InstanceState{types.InstanceStateRunning}, states)
	assert.Equal(t, []types.HealthState{types.HealthHealthy}, health)
}

func TestClosedTransportRejectsPublish(t *testing.T) {
	tr := NewInmem()
	require.NoError(t, tr.Close())

	err := tr.PublishControl(context.Background(), "tts", &types.ControlMessage{Command: types.CommandStop})
	assert.Error(t, err)
}

func TestServiceFromTopic(t *testing.T) {
	assert.Equal(t, "tts", serviceFromTopic("homebus/status/tts"))
	assert.Equal(t, "bare", serviceFromTopic("bare"))
}
