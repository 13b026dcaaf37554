package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"solar-clock/internal/widget"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeToken struct{ err error }

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t fakeToken) Error() error { return t.err }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type published struct {
	payload  string
	retained bool
}

// fakeClient implements the calls the publisher makes; the embedded
// interface panics on anything else.
type fakeClient struct {
	mqtt.Client

	mu         sync.Mutex
	published  map[string][]published
	handlers   map[string]mqtt.MessageHandler
	publishErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		published: make(map[string][]published),
		handlers:  make(map[string]mqtt.MessageHandler),
	}
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	var s string
	switch p := payload.(type) {
	case string:
		s = p
	case []byte:
		s = string(p)
	}
	c.published[topic] = append(c.published[topic], published{s, retained})
	return fakeToken{err: c.publishErr}
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = cb
	return fakeToken{}
}

func (c *fakeClient) IsConnected() bool { return true }
func (c *fakeClient) Disconnect(uint)   {}

func (c *fakeClient) count(topic string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.published[topic])
}

func (c *fakeClient) lastPayload(topic string) published {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.published[topic]
	if len(msgs) == 0 {
		return published{}
	}
	return msgs[len(msgs)-1]
}

type fakeController struct {
	theme widget.Theme
	mode  widget.ClockMode
}

func (c *fakeController) SetTheme(t widget.Theme) error         { c.theme = t; return nil }
func (c *fakeController) SetClockMode(m widget.ClockMode) error { c.mode = m; return nil }

func testFrame(clock string) widget.Frame {
	return widget.Frame{
		At:           time.Date(2025, 6, 15, 19, 45, 10, 0, time.UTC),
		Clock:        clock,
		SolarClock:   clock,
		RealClock:    "19:45:10",
		Countdown:    "Sunset in: 22h 44m 50s",
		Status:       "Sunset Time: 18:30:00",
		Location:     "Dhaka, Bangladesh",
		Theme:        widget.ThemeNight,
		Appearance:   widget.ThemeNight,
		ClockMode:    widget.ClockSolar,
		Ready:        true,
		UntilSeconds: 81890,
	}
}

func TestPublishFrame(t *testing.T) {
	client := newFakeClient()
	p := newPublisher(client, "solarclock", zap.NewNop().Sugar())

	require.NoError(t, p.PublishFrame(testFrame("01:15:10")))
	assert.Equal(t, published{"01:15:10", false}, client.lastPayload("solarclock/clock/clock"))
	assert.Equal(t, "Dhaka, Bangladesh", client.lastPayload("solarclock/clock/location").payload)
	assert.Equal(t, "true", client.lastPayload("solarclock/clock/ready").payload)
	assert.Equal(t, "81890", client.lastPayload("solarclock/clock/until").payload)

	state := client.lastPayload("solarclock/clock/state")
	assert.True(t, state.retained)
	var decoded widget.Frame
	require.NoError(t, json.Unmarshal([]byte(state.payload), &decoded))
	assert.Equal(t, "01:15:10", decoded.Clock)

	require.NoError(t, p.PublishFrame(testFrame("01:15:11")))
	assert.Equal(t, 2, client.count("solarclock/clock/clock"))
	assert.Equal(t, 1, client.count("solarclock/clock/location"))
	assert.Equal(t, 2, client.count("solarclock/clock/state"))
}

func TestPublishFrameError(t *testing.T) {
	client := newFakeClient()
	client.publishErr = errors.New("not connected")
	p := newPublisher(client, "solarclock", zap.NewNop().Sugar())

	assert.Error(t, p.PublishFrame(testFrame("01:15:10")))

	// Failed values are retried on the next frame.
	client.publishErr = nil
	require.NoError(t, p.PublishFrame(testFrame("01:15:10")))
	assert.Equal(t, 2, client.count("solarclock/clock/location"))
}

func TestDisabledPublisher(t *testing.T) {
	p, err := NewPublisher(PublisherConfig{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, p.PublishFrame(testFrame("01:15:10")))
	assert.NoError(t, p.PublishHomeAssistantDiscovery())
	assert.NoError(t, p.SubscribeControls(&fakeController{}))
	assert.False(t, p.IsConnected())
	assert.NoError(t, p.Close())
}

func TestHomeAssistantDiscovery(t *testing.T) {
	client := newFakeClient()
	p := newPublisher(client, "solarclock", zap.NewNop().Sugar())
	require.NoError(t, p.PublishHomeAssistantDiscovery())

	msg := client.lastPayload("homeassistant/sensor/solar_clock/countdown/config")
	require.True(t, msg.retained)
	var cfg map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(msg.payload), &cfg))
	assert.Equal(t, "solarclock/clock/countdown", cfg["state_topic"])
	assert.Equal(t, "solar_clock_countdown", cfg["unique_id"])

	msg = client.lastPayload("homeassistant/select/solar_clock/theme/config")
	require.NoError(t, json.Unmarshal([]byte(msg.payload), &cfg))
	assert.Equal(t, "solarclock/clock/theme/set", cfg["command_topic"])
	assert.Equal(t, []interface{}{"day", "night", "auto"}, cfg["options"])
}

func TestSubscribeControls(t *testing.T) {
	client := newFakeClient()
	p := newPublisher(client, "solarclock", zap.NewNop().Sugar())
	ctrl := &fakeController{}
	require.NoError(t, p.SubscribeControls(ctrl))

	client.handlers["solarclock/clock/theme/set"](client, fakeMessage{"solarclock/clock/theme/set", []byte("Day")})
	client.handlers["solarclock/clock/mode/set"](client, fakeMessage{"solarclock/clock/mode/set", []byte("real")})
	client.handlers["solarclock/clock/mode/set"](client, fakeMessage{"solarclock/clock/mode/set", []byte("lunar")})

	assert.Equal(t, widget.ThemeDay, ctrl.theme)
	assert.Equal(t, widget.ClockReal, ctrl.mode)
}
