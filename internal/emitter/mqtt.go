// Package emitter mirrors session updates onto an MQTT broker.
package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"backend-pushup/internal/session"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	TopicPrefix = "pushup/sessions/"

	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// Publisher is the part of mqtt.Client the emitter needs.
type Publisher interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTEmitter publishes session updates with QoS 0. Publishing never waits
// on the broker; failures are counted and logged.
type MQTTEmitter struct {
	client Publisher
	logger *slog.Logger

	mu        sync.RWMutex
	published uint64
	errors    uint64
}

func New(client Publisher) *MQTTEmitter {
	return &MQTTEmitter{
		client: client,
		logger: slog.Default().With("component", "emitter"),
	}
}

// Connect dials the broker with auto reconnect enabled.
func Connect(ctx context.Context, broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", broker))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		slog.Info("mqtt connection established", "broker", broker, "client_id", clientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost, will auto-reconnect", "broker", broker, "error", err)
	}

	client := mqtt.NewClient(opts)
	slog.Info("connecting to mqtt broker", "broker", broker)

	timeout := connectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	return client, nil
}

func Topic(sessionID string) string {
	return TopicPrefix + sessionID + "/updates"
}

func (e *MQTTEmitter) OnUpdate(u session.Update) {
	if !e.client.IsConnected() {
		e.fail()
		return
	}

	payload, err := json.Marshal(u)
	if err != nil {
		e.fail()
		e.logger.Error("encode update", "session_id", u.SessionID, "error", err)
		return
	}

	topic := Topic(u.SessionID)
	token := e.client.Publish(topic, 0, false, payload)
	go e.await(topic, token)
}

func (e *MQTTEmitter) await(topic string, token mqtt.Token) {
	if !token.WaitTimeout(publishTimeout) {
		e.fail()
		e.logger.Warn("publish timeout", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		e.fail()
		e.logger.Warn("publish failed", "topic", topic, "error", err)
		return
	}
	e.mu.Lock()
	e.published++
	e.mu.Unlock()
}

func (e *MQTTEmitter) fail() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

type Stats struct {
	Published uint64 `json:"published"`
	Errors    uint64 `json:"errors"`
}

func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{Published: e.published, Errors: e.errors}
}
