package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/rjboer/GoSpectrum/internal/logging"
	"github.com/rjboer/GoSpectrum/internal/spectrum"
)

// DefaultMQTTTopic is the topic prefix used when none is configured.
const DefaultMQTTTopic = "gospectrum"

const mqttPublishTimeout = 5 * time.Second

// MQTTConfig selects the broker and topic for detection publishing.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Broker   string `yaml:"broker" json:"broker"`
	Topic    string `yaml:"topic" json:"topic"`
	ClientID string `yaml:"client_id" json:"client_id"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
	QoS      byte   `yaml:"qos" json:"qos"`
}

// Validate checks the fields required when publishing is enabled.
func (c MQTTConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Broker == "" {
		return errors.New("mqtt broker is required when mqtt is enabled")
	}
	if c.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.QoS)
	}
	return nil
}

// signalMessage is the JSON document published per detection batch.
type signalMessage struct {
	Source    string            `json:"source"`
	Profile   string            `json:"profile,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Count     int               `json:"count"`
	Signals   []spectrum.Signal `json:"signals"`
}

type statusMessage struct {
	Connected bool      `json:"connected"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MQTTReporter publishes detections to {topic}/signals/{source} and the
// connection status, retained, to {topic}/status.
type MQTTReporter struct {
	client mqtt.Client
	topic  string
	qos    byte
	logger logging.Logger
}

// NewMQTTReporter connects to the broker. It returns nil, nil when publishing
// is disabled.
func NewMQTTReporter(cfg MQTTConfig, logger logging.Logger) (*MQTTReporter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logging.OrDefault(logger).With(logging.F("subsystem", "mqtt"))

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "gospectrum_" + uuid.NewString()[:8]
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info("connected to broker", logging.F("broker", cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("broker connection lost", logging.Err(err))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker: %w", token.Error())
	}
	return newMQTTReporter(client, cfg, log), nil
}

func newMQTTReporter(client mqtt.Client, cfg MQTTConfig, log logging.Logger) *MQTTReporter {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultMQTTTopic
	}
	return &MQTTReporter{client: client, topic: topic, qos: cfg.QoS, logger: log}
}

// Report publishes signal and status events; other events are ignored.
func (r *MQTTReporter) Report(ev Event) {
	if r == nil {
		return
	}
	switch ev.Type {
	case EventSignals:
		if len(ev.Signals) == 0 {
			return
		}
		r.publish(r.topic+"/signals/"+ev.Source, false, signalMessage{
			Source:    ev.Source,
			Profile:   ev.Profile,
			Timestamp: ev.Time,
			Count:     len(ev.Signals),
			Signals:   ev.Signals,
		})
	case EventStatus:
		msg := statusMessage{Message: ev.Message, Timestamp: ev.Time}
		if ev.Connected != nil {
			msg.Connected = *ev.Connected
		}
		r.publish(r.topic+"/status", true, msg)
	}
}

func (r *MQTTReporter) publish(topic string, retained bool, v any) {
	if !r.client.IsConnected() {
		r.logger.Debug("mqtt not connected, skipping publish", logging.F("topic", topic))
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Error("marshal mqtt message", logging.Err(err))
		return
	}
	token := r.client.Publish(topic, r.qos, retained, data)
	go func() {
		if token.WaitTimeout(mqttPublishTimeout) && token.Error() != nil {
			r.logger.Warn("mqtt publish failed", logging.F("topic", topic), logging.Err(token.Error()))
		}
	}()
}

// Close disconnects from the broker.
func (r *MQTTReporter) Close() {
	if r == nil {
		return
	}
	r.client.Disconnect(250)
}
