// internal/publish/mqtt.go

// Package publish pushes every published snapshot to outbound sinks.
// Sinks hang off the poll loop, so none of them may block it.
package publish

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/tamzrod/modbus-bridge/internal/metrics"
	"github.com/tamzrod/modbus-bridge/internal/snapshot"
)

const publishTrackTimeout = 5 * time.Second

// broker is the slice of the paho client the sink drives. Tests
// substitute a fake; mqtt.Client satisfies it as is.
type broker interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
}

// MQTTConfig describes the broker connection and topic layout.
type MQTTConfig struct {
	Broker    string // e.g. tcp://broker:1883
	ClientID  string
	Username  string
	Password  string
	TopicBase string // prefix for every topic
	QOS       byte
	Retained  bool
}

// MQTT publishes each snapshot group as JSON under
// <base>/<measurement>, and every field as a plain number under
// <base>/<measurement>/<field>.
type MQTT struct {
	cli broker
	cfg MQTTConfig
	m   *metrics.Metrics
}

// NewMQTT connects to the broker. Startup fails fast on an unreachable
// broker; drops after that are ridden out by paho's auto reconnect.
func NewMQTT(cfg MQTTConfig, m *metrics.Metrics) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	cli := mqtt.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, errors.Wrapf(token.Error(), "mqtt connect %s", cfg.Broker)
	}
	klog.Infof("mqtt: connected to %s as %s", cfg.Broker, cfg.ClientID)
	return newMQTT(cli, cfg, m), nil
}

func newMQTT(cli broker, cfg MQTTConfig, m *metrics.Metrics) *MQTT {
	cfg.TopicBase = strings.TrimSuffix(cfg.TopicBase, "/")
	return &MQTT{cli: cli, cfg: cfg, m: m}
}

// Publish fans the snapshot out. Fire and forget: delivery is tracked
// off the poll loop and an offline broker just drops the cycle.
func (s *MQTT) Publish(snap *snapshot.Snapshot) {
	if !s.cli.IsConnected() {
		s.m.SinkPublishes.WithLabelValues("mqtt", "skipped").Inc()
		return
	}
	for _, g := range snap.Groups {
		payload, err := json.Marshal(g)
		if err != nil {
			klog.Warningf("mqtt: marshal group %s: %v", g.Name, err)
			continue
		}
		s.send(s.cfg.TopicBase+"/"+g.Name, payload)
		for _, f := range g.Fields {
			s.send(s.cfg.TopicBase+"/"+g.Name+"/"+f.Name,
				strconv.FormatFloat(f.Value, 'f', -1, 64))
		}
	}
}

// Close flushes in-flight messages and disconnects.
func (s *MQTT) Close() {
	s.cli.Disconnect(250)
}

func (s *MQTT) send(topic string, payload interface{}) {
	token := s.cli.Publish(topic, s.cfg.QOS, s.cfg.Retained, payload)
	go func() {
		if !token.WaitTimeout(publishTrackTimeout) {
			s.m.SinkPublishes.WithLabelValues("mqtt", "timeout").Inc()
			return
		}
		if err := token.Error(); err != nil {
			s.m.SinkPublishes.WithLabelValues("mqtt", "failure").Inc()
			klog.V(2).Infof("mqtt: publish %s: %v", topic, err)
			return
		}
		s.m.SinkPublishes.WithLabelValues("mqtt", "success").Inc()
	}()
}
