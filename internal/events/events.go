// Package events publishes route status changes to an MQTT broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// RouteStatusChanged is emitted after a route stop's status is saved.
type RouteStatusChanged struct {
	ClientID     string    `json:"clientId"`
	TechnicianID string    `json:"technicianId"`
	Date         string    `json:"date"`
	Status       string    `json:"status"`
	VisitID      string    `json:"visitId,omitempty"`
	At           time.Time `json:"at"`
}

// Publisher delivers domain events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	PublishRouteStatus(ctx context.Context, ev RouteStatusChanged) error
	Close()
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) PublishRouteStatus(context.Context, RouteStatusChanged) error { return nil }

func (Nop) Close() {}

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
}

// MQTTPublisher publishes JSON events with QoS 1.
type MQTTPublisher struct {
	client  mqtt.Client
	prefix  string
	timeout time.Duration
}

// NewMQTTPublisher connects to the broker. The paho client reconnects on
// its own after the first successful connection.
func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	const op = "events.NewMQTTPublisher"

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("MQTT connection lost")
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			log.WithField("broker", cfg.Broker).Info("MQTT connected")
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("%s: connect to %s timed out", op, cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return newMQTTPublisher(client, cfg.TopicPrefix), nil
}

func newMQTTPublisher(client mqtt.Client, prefix string) *MQTTPublisher {
	return &MQTTPublisher{
		client:  client,
		prefix:  strings.TrimSuffix(prefix, "/"),
		timeout: 5 * time.Second,
	}
}

// RouteStatusTopic is the topic a technician's stop updates are sent to.
func RouteStatusTopic(prefix, technicianID string) string {
	return fmt.Sprintf("%s/routes/%s/status", strings.TrimSuffix(prefix, "/"), technicianID)
}

// PublishRouteStatus sends the event and waits for the broker to accept it
// or for ctx to end.
func (p *MQTTPublisher) PublishRouteStatus(ctx context.Context, ev RouteStatusChanged) error {
	const op = "events.PublishRouteStatus"

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", op, err)
	}

	token := p.client.Publish(RouteStatusTopic(p.prefix, ev.TechnicianID), 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	case <-time.After(p.timeout):
		return fmt.Errorf("%s: publish timed out", op)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close disconnects, allowing in-flight messages a short grace period.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}

// New returns an MQTT publisher when a broker is configured, otherwise Nop.
// A broker that cannot be reached is logged and replaced by Nop so the API
// still starts.
func New(cfg MQTTConfig) Publisher {
	if cfg.Broker == "" {
		log.Info("MQTT broker not configured, route events disabled")
		return Nop{}
	}
	p, err := NewMQTTPublisher(cfg)
	if err != nil {
		log.WithError(err).Warn("MQTT unavailable, route events disabled")
		return Nop{}
	}
	return p
}
