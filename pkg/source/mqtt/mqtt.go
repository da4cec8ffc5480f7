// Package mqtt feeds live power readings from an MQTT broker into an
// outlet registry. The outlet ID is taken from the topic segment matched by
// the first '+' wildcard of the subscription filter.
package mqtt

import (
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/OpenCHAMI/senselink/internal/metrics"
	"github.com/OpenCHAMI/senselink/pkg/outlet"
)

const (
	DefaultTopic    = "senselink/+/power"
	DefaultClientID = "senselink"
	sourceName      = "mqtt"
)

type Config struct {
	Broker   string        `json:"broker"`
	ClientID string        `json:"client_id"`
	Topic    string        `json:"topic"`
	QoS      byte          `json:"qos"`
	Username string        `json:"username"`
	Password string        `json:"-"`
	Timeout  time.Duration `json:"timeout"`
}

func (c *Config) applyDefaults() {
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("broker cannot be empty")
	}
	if c.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2, got %d", c.QoS)
	}
	if !strings.Contains(c.Topic, "+") {
		return fmt.Errorf("topic %q must contain a '+' wildcard for the outlet ID", c.Topic)
	}
	return nil
}

type Source struct {
	cfg      Config
	registry *outlet.Registry
	client   paho.Client
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Source)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Source) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Source) { s.metrics = m }
}

func New(cfg Config, registry *outlet.Registry, opts ...Option) *Source {
	cfg.applyDefaults()
	s := &Source{
		cfg:      cfg,
		registry: registry,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start connects to the broker and subscribes. The subscription is renewed
// on every reconnect.
func (s *Source) Start() error {
	if err := s.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid mqtt config: %w", err)
	}
	opts := paho.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(s.cfg.Timeout).
		SetOnConnectHandler(func(c paho.Client) {
			token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, s.HandleMessage)
			if token.WaitTimeout(s.cfg.Timeout) && token.Error() != nil {
				s.logger.Error().Err(token.Error()).Str("topic", s.cfg.Topic).Msg("failed to subscribe")
				return
			}
			s.logger.Info().Str("topic", s.cfg.Topic).Msg("subscribed to power readings")
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			s.logger.Warn().Err(err).Msg("lost connection to MQTT broker")
		})
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username).SetPassword(s.cfg.Password)
	}

	s.client = paho.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(s.cfg.Timeout) {
		return fmt.Errorf("timed out connecting to MQTT broker %s", s.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", s.cfg.Broker, err)
	}
	return nil
}

func (s *Source) Stop() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}

// HandleMessage applies one reading message. Bad topics, bad payloads and
// unknown outlets are logged and ignored.
func (s *Source) HandleMessage(_ paho.Client, msg paho.Message) {
	id, err := OutletID(s.cfg.Topic, msg.Topic())
	if err != nil {
		s.logger.Debug().Err(err).Msg("ignoring message")
		return
	}
	reading, err := outlet.ParseReading(msg.Payload())
	if err != nil {
		s.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("ignoring malformed reading")
		return
	}
	o, err := s.registry.Update(id, reading.Apply)
	if err != nil {
		s.logger.Debug().Err(err).Str("topic", msg.Topic()).Msg("ignoring reading for unknown outlet")
		return
	}
	s.metrics.RecordSourceUpdate(sourceName)
	s.metrics.SetOutletPower(o.ID, o.Power)
	s.logger.Trace().Str("outlet", o.ID).Float64("power", o.Power).Msg("applied reading")
}

// OutletID extracts the segment of topic matched by the first '+' in filter.
func OutletID(filter, topic string) (string, error) {
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")
	id := ""
	for i, f := range fs {
		if f == "#" {
			break
		}
		if i >= len(ts) {
			return "", fmt.Errorf("topic %q does not match %q", topic, filter)
		}
		switch f {
		case "+":
			if id == "" {
				id = ts[i]
			}
		default:
			if f != ts[i] {
				return "", fmt.Errorf("topic %q does not match %q", topic, filter)
			}
		}
		if i == len(fs)-1 && len(ts) != len(fs) {
			return "", fmt.Errorf("topic %q does not match %q", topic, filter)
		}
	}
	if id == "" {
		return "", fmt.Errorf("no outlet ID in topic %q", topic)
	}
	return id, nil
}
