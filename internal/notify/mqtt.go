package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/lox/tripweather/internal/models"
)

type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Retain      bool
	Timeout     time.Duration
}

func DefaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Broker:      "tcp://localhost:1883",
		ClientID:    "tripweather",
		TopicPrefix: "tripweather",
		QoS:         1,
		Timeout:     10 * time.Second,
	}
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTDispatcher publishes alerts as JSON to <prefix>/trips/<tripID>/alerts.
type MQTTDispatcher struct {
	pub    publisher
	client mqtt.Client
	cfg    MQTTConfig
	logger *slog.Logger
}

// DialMQTT connects to the broker and returns a dispatcher using it.
func DialMQTT(cfg MQTTConfig, logger *slog.Logger) (*MQTTDispatcher, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultMQTTConfig().Timeout
	}
	logger = logger.With("component", "mqtt")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(cfg.Timeout)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt: connection lost", "error", err)
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("mqtt: connected", "broker", cfg.Broker)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("connect to mqtt broker %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", cfg.Broker, err)
	}

	d := newMQTTDispatcher(client, cfg, logger)
	d.client = client
	return d, nil
}

func newMQTTDispatcher(pub publisher, cfg MQTTConfig, logger *slog.Logger) *MQTTDispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultMQTTConfig().Timeout
	}
	return &MQTTDispatcher{pub: pub, cfg: cfg, logger: logger}
}

func (d *MQTTDispatcher) Name() string {
	return "mqtt"
}

func (d *MQTTDispatcher) Topic(tripID string) string {
	return fmt.Sprintf("%s/trips/%s/alerts", strings.TrimRight(d.cfg.TopicPrefix, "/"), tripID)
}

func (d *MQTTDispatcher) Dispatch(ctx context.Context, alert models.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	topic := d.Topic(alert.TripID)
	token := d.pub.Publish(topic, d.cfg.QoS, d.cfg.Retain, payload)

	timer := time.NewTimer(d.cfg.Timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
	case <-timer.C:
		return fmt.Errorf("publish %s: timed out after %s", topic, d.cfg.Timeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	d.logger.Debug("mqtt: published alert", "topic", topic, "bytes", len(payload))
	return nil
}

func (d *MQTTDispatcher) Close() {
	if d.client != nil {
		d.client.Disconnect(250)
	}
}
