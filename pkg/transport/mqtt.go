package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/homebus/conductor/pkg/log"
	"github.com/homebus/conductor/pkg/types"
)

// Topic layout on the bus. Every managed service listens on its own control
// topic and reports on per-service status and health topics.
const (
	controlTopicPrefix = "homebus/control/"
	statusTopicFilter  = "homebus/status/+"
	healthTopicFilter  = "homebus/health/+"
)

// MQTTConfig holds MQTT transport configuration.
type MQTTConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	// ConnectTimeout bounds the initial connect. Publish timeouts come
	// from the caller's context.
	ConnectTimeout time.Duration
}

// MQTTTransport implements Transport over an MQTT broker using Eclipse Paho.
type MQTTTransport struct {
	client mqtt.Client
	logger zerolog.Logger
}

// NewMQTT connects to the broker and returns a ready transport.
// The client auto-reconnects; subscriptions are re-established on
// reconnect by Paho's resume logic (clean session disabled).
func NewMQTT(cfg MQTTConfig) (*MQTTTransport, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	logger := log.WithComponent("transport")

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(false).
		SetAutoReconnect(true).
		SetOrderMatters(false).
		SetConnectTimeout(cfg.ConnectTimeout)

	opts.OnConnect = func(mqtt.Client) {
		logger.Info().Str("broker", cfg.BrokerURL).Msg("connected to bus")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("bus connection lost, reconnecting")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("timed out connecting to broker %s", cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to broker %s: %w", cfg.BrokerURL, err)
	}

	return &MQTTTransport{client: client, logger: logger}, nil
}

// PublishControl publishes a control command on the target service's control
// topic. QoS 1: the command is retried by the client until the broker acks,
// but duplicates are possible; managed services treat commands idempotently.
func (t *MQTTTransport) PublishControl(ctx context.Context, service string, msg *types.ControlMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal control message: %w", err)
	}

	token := t.client.Publish(controlTopicPrefix+service, 1, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to publish control command: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubscribeStatus subscribes to all service status topics.
func (t *MQTTTransport) SubscribeStatus(handler StatusHandler) error {
	token := t.client.Subscribe(statusTopicFilter, 1, func(_ mqtt.Client, m mqtt.Message) {
		var msg types.StatusMessage
		if err := json.Unmarshal(m.Payload(), &msg); err != nil {
			t.logger.Warn().
				Err(err).Str("topic", m.Topic()).Msg("dropping malformed status message")
			return
		}
		if msg.ServiceName == "" {
			msg.ServiceName = serviceFromTopic(m.Topic())
		}
		handler(&msg)
	})
	token.Wait()
	return token.Error()
}

// SubscribeHealth subscribes to all service health topics.
func (t *MQTTTransport) SubscribeHealth(handler HealthHandler) error {
	token := t.client.Subscribe(healthTopicFilter, 1, func(_ mqtt.Client, m mqtt.Message) {
		var msg types.HealthMessage
		if err := json.Unmarshal(m.Payload(), &msg); err != nil {
			t.logger.Warn().
				Err(err).Str("topic", m.Topic()).Msg("dropping malformed health message")
			return
		}
		if msg.ServiceName == "" {
			msg.ServiceName = serviceFromTopic(m.Topic())
		}
		handler(&msg)
	})
	token.Wait()
	return token.Error()
}

// Close disconnects from the broker, allowing 250ms for in-flight messages.
func (t *MQTTTransport) Close() error {
	t.client.Disconnect(250)
	return nil
}

// serviceFromTopic extracts the service name from a per-service topic like
// homebus/status/<service>.
func serviceFromTopic(topic string) string {
	i := strings.LastIndex(topic, "/")
	if i < 0 {
		return topic
	}
	return topic[i+1:]
}
