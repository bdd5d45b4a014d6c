package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"swing-service/internal/config"
	"swing-service/internal/ingest"
	"swing-service/internal/monitoring"
)

// publisher is the part of mqtt.Client the transport publishes through.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTTransport feeds messages published on the ingest topic to the
// pipeline and publishes each response on <reply_topic>/<session_id>.
type MQTTTransport struct {
	cfg      config.MQTTConfig
	pipeline *ingest.Pipeline
	client   mqtt.Client
}

func NewMQTTTransport(cfg config.MQTTConfig, p *ingest.Pipeline) *MQTTTransport {
	if cfg.ClientID == "" {
		cfg.ClientID = "swing-service-" + uuid.NewString()[:8]
	}
	return &MQTTTransport{cfg: cfg, pipeline: p}
}

func (t *MQTTTransport) Start() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(t.cfg.Broker)
	opts.SetClientID(t.cfg.ClientID)

	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	// batches of one session must reach the pipeline in publish order
	opts.SetOrderMatters(true)

	opts.OnConnect = t.onConnect
	opts.OnConnectionLost = t.onConnectionLost
	opts.OnReconnecting = t.onReconnecting

	t.client = mqtt.NewClient(opts)

	monitoring.Logf("[mqtt] connecting to %s as %s...", t.cfg.Broker, t.cfg.ClientID)

	token := t.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("MQTT connect timeout")
	}
	if token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}
	return nil
}

// Run starts the transport and keeps it connected until ctx is done.
func (t *MQTTTransport) Run(ctx context.Context) error {
	if err := t.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	t.Stop()
	return nil
}

func (t *MQTTTransport) Stop() {
	if t.client != nil && t.client.IsConnected() {
		t.client.Disconnect(1000)
	}
	monitoring.Logf("[mqtt] transport stopped")
}

func (t *MQTTTransport) onConnect(client mqtt.Client) {
	monitoring.Logf("[mqtt] connected")

	token := client.Subscribe(t.cfg.Topic, t.cfg.QoS, t.onMessage)
	if !token.WaitTimeout(5 * time.Second) {
		monitoring.Logf("[mqtt] subscribe timeout for %s", t.cfg.Topic)
		return
	}
	if token.Error() != nil {
		monitoring.Logf("[mqtt] subscribe error: %v", token.Error())
		return
	}

	monitoring.Logf("[mqtt] subscribed to %s", t.cfg.Topic)
}

func (t *MQTTTransport) onConnectionLost(client mqtt.Client, err error) {
	monitoring.Logf("[mqtt] connection lost: %v (will auto-reconnect)", err)
}

func (t *MQTTTransport) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	monitoring.Logf("[mqtt] reconnecting...")
}

func (t *MQTTTransport) onMessage(client mqtt.Client, msg mqtt.Message) {
	t.handle(client, msg.Payload())
}

func (t *MQTTTransport) handle(pub publisher, payload []byte) {
	msg, responses := t.pipeline.HandleMessage(context.Background(), "mqtt", payload)
	for _, resp := range responses {
		data, err := resp.Encode()
		if err != nil {
			monitoring.Logf("[mqtt] failed to encode %s: %v", resp.Type, err)
			continue
		}
		sessionID := resp.SessionID
		if sessionID == "" && msg != nil {
			sessionID = msg.Session()
		}

		topic := t.replyTopic(sessionID)
		token := pub.Publish(topic, t.cfg.QoS, false, data)
		// waiting inside a message handler would stall the ordered router
		go func() {
			<-token.Done()
			if err := token.Error(); err != nil {
				monitoring.Logf("[mqtt] publish to %s failed: %v", topic, err)
			}
		}()
	}
}

// replyTopic is <reply_topic>/<session_id>, or <reply_topic>/errors for
// messages that never named a session.
func (t *MQTTTransport) replyTopic(sessionID string) string {
	base := strings.TrimSuffix(t.cfg.ReplyTopic, "/")
	if sessionID == "" {
		return base + "/errors"
	}
	return base + "/" + sessionID
}
