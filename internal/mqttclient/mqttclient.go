// internal/mqttclient/mqttclient.go
package mqttclient

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sua-org/cam-scout/internal/config"
)

// Subtópicos publicados pelo cam-scout abaixo de BaseTopic.
const (
	TopicDiscovery = "discovery"
	TopicCapture   = "capture"
	TopicLocks     = "analysis/locks"
	TopicStatus    = "status"
)

type Client struct {
	client    mqtt.Client
	baseTopic string
	log       *slog.Logger
}

func NewClient(cfg config.MQTTConfig) (*Client, error) {
	broker := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "cam-scout"
	}
	// sufixo evita derrubar outra instância com o mesmo client id
	clientID = clientID + "-" + uuid.NewString()[:8]

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	log := slog.With("component", "mqtt")
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("connection lost", "broker", broker, "error", err)
	})

	cli := mqtt.NewClient(opts)
	token := cli.Connect()
	if ok := token.WaitTimeout(10 * time.Second); !ok {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect error: %w", err)
	}
	log.Info("connected", "broker", broker, "client_id", clientID)

	return &Client{client: cli, baseTopic: strings.TrimSuffix(cfg.BaseTopic, "/"), log: log}, nil
}

// Topic monta <base>/<sub>.
func (c *Client) Topic(sub string) string {
	return JoinTopic(c.baseTopic, sub)
}

func JoinTopic(base, sub string) string {
	sub = strings.TrimPrefix(sub, "/")
	if base == "" {
		return sub
	}
	if sub == "" {
		return base
	}
	return base + "/" + sub
}

func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt publish timeout on %s", topic)
	}
	return token.Error()
}

// PublishJSON serializa v e publica em <base>/<sub> com QoS 0.
func (c *Client) PublishJSON(sub string, retained bool, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal mqtt payload: %w", err)
	}
	return c.Publish(c.Topic(sub), 0, retained, payload)
}

func (c *Client) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	token := c.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	return token.Error()
}

func (c *Client) Close() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}
