package mqtt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"solar-clock/internal/widget"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	deviceID      = "solar_clock"
	discoveryRoot = "homeassistant"
)

// Controller receives mode changes sent over MQTT.
type Controller interface {
	SetTheme(widget.Theme) error
	SetClockMode(widget.ClockMode) error
}

type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	enabled     bool
	log         *zap.SugaredLogger

	mu   sync.Mutex
	last map[string]string
}

type PublisherConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Enabled     bool
	Logger      *zap.SugaredLogger
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if !cfg.Enabled {
		return &Publisher{enabled: false, log: cfg.Logger}, nil
	}

	log := cfg.Logger
	// Several clocks may share one broker.
	clientID := fmt.Sprintf("%s-%s", cfg.ClientID, uuid.NewString()[:8])

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			log.Warnf("MQTT connection lost: %v", err)
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			log.Infof("MQTT connected as %s", clientID)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return newPublisher(client, cfg.TopicPrefix, log), nil
}

func newPublisher(client mqtt.Client, prefix string, log *zap.SugaredLogger) *Publisher {
	return &Publisher{
		client:      client,
		topicPrefix: prefix,
		enabled:     true,
		log:         log,
		last:        make(map[string]string),
	}
}

func (p *Publisher) Name() string { return "mqtt" }

func (p *Publisher) topic(name string) string {
	return fmt.Sprintf("%s/clock/%s", p.topicPrefix, name)
}

// PublishFrame sends each field of f to its own topic, skipping values that
// have not changed, and the whole frame as retained JSON on <prefix>/clock/state.
func (p *Publisher) PublishFrame(f widget.Frame) error {
	if !p.enabled {
		return nil
	}

	values := map[string]string{
		"clock":       f.Clock,
		"solar_clock": f.SolarClock,
		"real_clock":  f.RealClock,
		"countdown":   f.Countdown,
		"status":      f.Status,
		"location":    f.Location,
		"theme":       string(f.Theme),
		"mode":        string(f.ClockMode),
		"ready":       strconv.FormatBool(f.Ready),
		"until":       strconv.FormatInt(f.UntilSeconds, 10),
	}

	var firstErr error
	for name, value := range values {
		if !p.changed(name, value) {
			continue
		}
		topic := p.topic(name)
		token := p.client.Publish(topic, 0, false, value)
		token.Wait()
		if err := token.Error(); err != nil {
			p.forget(name)
			p.log.Debugf("Failed to publish to %s: %v", topic, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to publish %s: %w", topic, err)
			}
		}
	}

	stateJSON, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	token := p.client.Publish(p.topic("state"), 0, true, stateJSON)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish state: %w", token.Error())
	}
	return firstErr
}

func (p *Publisher) changed(name, value string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if prev, ok := p.last[name]; ok && prev == value {
		return false
	}
	p.last[name] = value
	return true
}

func (p *Publisher) forget(name string) {
	p.mu.Lock()
	delete(p.last, name)
	p.mu.Unlock()
}

// SubscribeControls routes <prefix>/clock/theme/set and
// <prefix>/clock/mode/set to ctrl.
func (p *Publisher) SubscribeControls(ctrl Controller) error {
	if !p.enabled {
		return nil
	}

	handlers := map[string]func(string) error{
		p.topic("theme/set"): func(v string) error {
			t, err := widget.ParseTheme(v)
			if err != nil {
				return err
			}
			return ctrl.SetTheme(t)
		},
		p.topic("mode/set"): func(v string) error {
			m, err := widget.ParseClockMode(v)
			if err != nil {
				return err
			}
			return ctrl.SetClockMode(m)
		},
	}

	for topic, handle := range handlers {
		token := p.client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			if err := handle(string(msg.Payload())); err != nil {
				p.log.Warnf("Ignoring %s=%q: %v", msg.Topic(), msg.Payload(), err)
			}
		})
		token.Wait()
		if token.Error() != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, token.Error())
		}
	}
	return nil
}

type discoveryEntity struct {
	Component string
	Name      string
	ID        string
	Icon      string
	Options   []string
}

var entities = []discoveryEntity{
	{"sensor", "Clock", "clock", "mdi:clock-outline", nil},
	{"sensor", "Solar Clock", "solar_clock", "mdi:weather-sunset", nil},
	{"sensor", "Countdown", "countdown", "mdi:timer-sand", nil},
	{"sensor", "Status", "status", "mdi:information-outline", nil},
	{"sensor", "Location", "location", "mdi:map-marker", nil},
	{"select", "Theme", "theme", "mdi:theme-light-dark", []string{"day", "night", "auto"}},
	{"select", "Clock Mode", "mode", "mdi:clock-digital", []string{"solar", "real"}},
}

func (p *Publisher) PublishHomeAssistantDiscovery() error {
	if !p.enabled {
		return nil
	}

	for _, e := range entities {
		discoveryTopic := fmt.Sprintf("%s/%s/%s/%s/config", discoveryRoot, e.Component, deviceID, e.ID)

		config := map[string]interface{}{
			"name":        e.Name,
			"unique_id":   fmt.Sprintf("%s_%s", deviceID, e.ID),
			"state_topic": p.topic(e.ID),
			"icon":        e.Icon,
			"device": map[string]interface{}{
				"identifiers":  []string{deviceID},
				"name":         "Solar Clock",
				"manufacturer": "solar-clock",
				"model":        "Sunset Clock",
			},
		}
		if e.Component == "select" {
			config["command_topic"] = p.topic(e.ID + "/set")
			config["options"] = e.Options
		}

		payload, err := json.Marshal(config)
		if err != nil {
			return fmt.Errorf("failed to marshal discovery for %s: %w", e.ID, err)
		}
		token := p.client.Publish(discoveryTopic, 0, true, payload)
		token.Wait()
		if token.Error() != nil {
			return fmt.Errorf("failed to publish discovery for %s: %w", e.ID, token.Error())
		}
	}
	return nil
}

func (p *Publisher) IsConnected() bool {
	if !p.enabled {
		return false
	}
	return p.client.IsConnected()
}

func (p *Publisher) Close() error {
	if p.enabled && p.client != nil {
		p.client.Disconnect(1000)
	}
	return nil
}
