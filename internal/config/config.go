// internal/config/config.go

// Package config assembles the bridge's runtime configuration from the
// environment. FromEnv parses, Validate checks, Normalize clamps; run
// them in that order.
package config

import (
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Transport kinds.
const (
	TransportSolarman = "solarman"
	TransportTCP      = "tcp"
	TransportRTU      = "rtu"
)

type Config struct {
	Transport TransportConfig
	Poll      PollConfig
	HTTP      HTTPConfig
	MQTT      MQTTConfig
	Table     TableConfig
	Breaker   BreakerConfig
}

// ---- TRANSPORT ----

type TransportConfig struct {
	// Kind selects the wire protocol: solarman, tcp or rtu.
	Kind string

	// Solarman logger stick.
	LoggerIP   string
	LoggerPort int
	LoggerSN   uint32

	// Plain Modbus TCP.
	Endpoint string

	// Serial RTU.
	RTU RTUConfig

	SlaveID uint8
	// SocketTimeout bounds one wire round trip including the dial.
	SocketTimeout time.Duration
}

type RTUConfig struct {
	Device   string
	BaudRate int
	DataBits int
	Parity   string
	StopBits int
}

// LoggerAddr is the solarman endpoint, host:port.
func (t TransportConfig) LoggerAddr() string {
	return net.JoinHostPort(t.LoggerIP, strconv.Itoa(t.LoggerPort))
}

// ---- POLL ----

type PollConfig struct {
	Interval       time.Duration
	RequestTimeout time.Duration
}

// ---- HTTP ----

type HTTPConfig struct {
	Host string
	Port int
}

func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

// ---- MQTT ----

type MQTTConfig struct {
	Broker    string // empty disables the sink
	ClientID  string
	Username  string
	Password  string
	TopicBase string
	QOS       uint8
	Retained  bool
}

func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

// ---- TABLE / BREAKER ----

type TableConfig struct {
	Path          string
	RoundDecimals int
}

type BreakerConfig struct {
	FailLimit int
	OpenFor   time.Duration
}

// FromEnv reads the documented environment. Unset variables take their
// defaults; a variable that is set but unparsable is an error, not a
// silent fallback.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.Transport.Kind = envString("TRANSPORT", TransportSolarman)
	cfg.Transport.LoggerIP = envString("LOGGER_IP", "")
	if cfg.Transport.LoggerPort, err = envInt("LOGGER_PORT", 8899); err != nil {
		return nil, err
	}
	if cfg.Transport.LoggerSN, err = envUint32("LOGGER_SN", 0); err != nil {
		return nil, err
	}
	cfg.Transport.Endpoint = envString("MODBUS_ENDPOINT", "")
	cfg.Transport.RTU.Device = envString("RTU_DEVICE", "")
	if cfg.Transport.RTU.BaudRate, err = envInt("RTU_BAUD", 9600); err != nil {
		return nil, err
	}
	if cfg.Transport.RTU.DataBits, err = envInt("RTU_DATA_BITS", 8); err != nil {
		return nil, err
	}
	cfg.Transport.RTU.Parity = envString("RTU_PARITY", "N")
	if cfg.Transport.RTU.StopBits, err = envInt("RTU_STOP_BITS", 1); err != nil {
		return nil, err
	}
	slave, err := envInt("MB_SLAVE_ID", 1)
	if err != nil {
		return nil, err
	}
	cfg.Transport.SlaveID = uint8(slave)
	if cfg.Transport.SocketTimeout, err = envSeconds("SOCKET_TIMEOUT", 3.0); err != nil {
		return nil, err
	}

	if cfg.Poll.RequestTimeout, err = envSeconds("REQUEST_TIMEOUT", 3.0); err != nil {
		return nil, err
	}
	if cfg.Poll.Interval, err = envSeconds("POLL_INTERVAL_S", 2.0); err != nil {
		return nil, err
	}

	cfg.HTTP.Host = envString("LISTEN_HOST", "0.0.0.0")
	if cfg.HTTP.Port, err = envInt("LISTEN_PORT", 8080); err != nil {
		return nil, err
	}

	cfg.Table.Path = envString("REG_TABLE", "deye-modbus-registers.yaml")
	if cfg.Table.RoundDecimals, err = envInt("ROUND_DECIMALS", 2); err != nil {
		return nil, err
	}

	if cfg.Breaker.FailLimit, err = envInt("CB_FAIL_LIMIT", 3); err != nil {
		return nil, err
	}
	if cfg.Breaker.OpenFor, err = envSeconds("CB_OPEN_SECONDS", 30.0); err != nil {
		return nil, err
	}

	cfg.MQTT.Broker = envString("MQTT_BROKER", "")
	cfg.MQTT.ClientID = envString("MQTT_CLIENT_ID", "modbus-bridge")
	cfg.MQTT.Username = envString("MQTT_USERNAME", "")
	cfg.MQTT.Password = envString("MQTT_PASSWORD", "")
	cfg.MQTT.TopicBase = envString("MQTT_TOPIC_BASE", "deye")
	qos, err := envInt("MQTT_QOS", 0)
	if err != nil {
		return nil, err
	}
	cfg.MQTT.QOS = uint8(qos)
	if cfg.MQTT.Retained, err = envBool("MQTT_RETAINED", false); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ---- ENV HELPERS ----

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "%s=%q", key, v)
	}
	return n, nil
}

func envUint32(key string, def uint32) (uint32, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "%s=%q", key, v)
	}
	return uint32(n), nil
}

// envSeconds parses a float number of seconds, the unit every duration
// knob of this service uses.
func envSeconds(key string, def float64) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return time.Duration(def * float64(time.Second)), nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "%s=%q", key, v)
	}
	return time.Duration(f * float64(time.Second)), nil
}

func envBool(key string, def bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.Wrapf(err, "%s=%q", key, v)
	}
	return b, nil
}
