package server

import (
	"encoding/json"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swing-service/internal/analytics"
	"swing-service/internal/config"
	"swing-service/internal/ingest"
	"swing-service/internal/session"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakePublisher struct {
	msgs []published
}

func (f *fakePublisher) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	f.msgs = append(f.msgs, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return doneToken{}
}

func (f *fakePublisher) types(t *testing.T) []ingest.MessageType {
	t.Helper()
	out := make([]ingest.MessageType, len(f.msgs))
	for i, m := range f.msgs {
		var resp ingest.Response
		require.NoError(t, json.Unmarshal(m.payload, &resp))
		out[i] = resp.Type
	}
	return out
}

func newTestMQTT() *MQTTTransport {
	cfg := config.Default().MQTT
	cfg.ReplyTopic = "swing/events/"
	p := ingest.NewPipeline(session.NewRegistry(analytics.DefaultConfig()), nil)
	return NewMQTTTransport(cfg, p)
}

func TestMQTTRepliesOnSessionTopic(t *testing.T) {
	tr := newTestMQTT()
	pub := &fakePublisher{}

	tr.handle(pub, []byte(`{"type":"session_start","session_id":"watch_mqtt"}`))
	samples := swingStream(400, 150)
	for i := 0; i < len(samples); i += 100 {
		tr.handle(pub, batchJSON(t, "watch_mqtt", samples[i:i+100]))
	}
	tr.handle(pub, []byte(`{"type":"session_end","session_id":"watch_mqtt"}`))

	assert.Equal(t, []ingest.MessageType{ingest.TypeSessionStarted, ingest.TypeSwingDetected, ingest.TypeSessionEnded}, pub.types(t))
	for _, m := range pub.msgs {
		assert.Equal(t, "swing/events/watch_mqtt", m.topic)
		assert.Equal(t, byte(1), m.qos)
	}
}

func TestMQTTDecodeErrorsGoToErrorTopic(t *testing.T) {
	tr := newTestMQTT()
	pub := &fakePublisher{}

	tr.handle(pub, []byte(`{oops`))
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "swing/events/errors", pub.msgs[0].topic)

	tr.handle(pub, []byte(`{"type":"session_end","session_id":"ghost"}`))
	require.Len(t, pub.msgs, 2)
	assert.Equal(t, "swing/events/ghost", pub.msgs[1].topic)
}

func TestMQTTClientID(t *testing.T) {
	tr := NewMQTTTransport(config.MQTTConfig{}, nil)
	assert.Regexp(t, `^swing-service-[0-9a-f]{8}$`, tr.cfg.ClientID)

	tr = NewMQTTTransport(config.MQTTConfig{ClientID: "court-3"}, nil)
	assert.Equal(t, "court-3", tr.cfg.ClientID)
}
