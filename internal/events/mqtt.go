package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/kozaktomas/face-recognizer/internal/config"

	log "github.com/sirupsen/logrus"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	disconnectWait = 250 // milliseconds
)

// broker is the part of mqtt.Client used for publishing.
type broker interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher sends events as JSON with QoS 0, not retained.
type MQTTPublisher struct {
	client broker
	topic  string
}

// New returns an MQTT publisher when a broker is configured, Nop otherwise.
func New(cfg config.MQTTConfig) (Publisher, error) {
	if cfg.Broker == "" {
		log.Debug("MQTT broker not configured, events disabled")
		return Nop{}, nil
	}
	return NewMQTTPublisher(cfg)
}

// NewMQTTPublisher connects to the broker.
func NewMQTTPublisher(cfg config.MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.WithError(err).Warn("MQTT connection lost, reconnecting")
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.WithField("broker", cfg.Broker).Info("Connected to MQTT broker")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connect to MQTT broker %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", cfg.Broker, err)
	}

	return newMQTTPublisher(client, cfg.Topic), nil
}

func newMQTTPublisher(client broker, topic string) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: strings.TrimSuffix(topic, "/")}
}

// Topic returns the full topic for a subtopic.
func (p *MQTTPublisher) Topic(subtopic string) string {
	return p.topic + "/" + subtopic
}

func (p *MQTTPublisher) Publish(ctx context.Context, subtopic string, payload any) {
	topic := p.Topic(subtopic)
	entry := log.WithField("topic", topic)

	data, err := json.Marshal(payload)
	if err != nil {
		entry.WithError(err).Error("Failed to encode MQTT event")
		return
	}

	timeout := publishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}

	token := p.client.Publish(topic, 0, false, data)
	if !token.WaitTimeout(timeout) {
		entry.Warn("Timed out publishing MQTT event")
		return
	}
	if err := token.Error(); err != nil {
		entry.WithError(err).Error("Failed to publish MQTT event")
		return
	}
	entry.Debug("Published MQTT event")
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(disconnectWait)
	return nil
}
