// internal/config/validate_test.go
package config

import (
	"testing"
	"time"
)

// helper to build a minimal valid solarman config quickly
func solarmanConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			Kind:          TransportSolarman,
			LoggerIP:      "192.168.1.50",
			LoggerPort:    8899,
			LoggerSN:      2712345678,
			SlaveID:       1,
			SocketTimeout: 3 * time.Second,
		},
		Poll: PollConfig{
			Interval:       2 * time.Second,
			RequestTimeout: 3 * time.Second,
		},
		HTTP:    HTTPConfig{Host: "0.0.0.0", Port: 8080},
		Table:   TableConfig{Path: "deye-modbus-registers.yaml", RoundDecimals: 2},
		Breaker: BreakerConfig{FailLimit: 3, OpenFor: 30 * time.Second},
	}
}

// ---- tests ----

func TestValidate_SolarmanOK(t *testing.T) {
	if err := Validate(solarmanConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_SolarmanMissingIP(t *testing.T) {
	cfg := solarmanConfig()
	cfg.Transport.LoggerIP = ""
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestValidate_SolarmanMissingSerial(t *testing.T) {
	cfg := solarmanConfig()
	cfg.Transport.LoggerSN = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestValidate_TCPNeedsEndpoint(t *testing.T) {
	cfg := solarmanConfig()
	cfg.Transport.Kind = TransportTCP
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error, got nil")
	}
	cfg.Transport.Endpoint = "10.0.0.7:502"
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_RTUNeedsDeviceAndParity(t *testing.T) {
	cfg := solarmanConfig()
	cfg.Transport.Kind = TransportRTU
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error, got nil")
	}

	cfg.Transport.RTU = RTUConfig{Device: "/dev/ttyUSB0", BaudRate: 9600, DataBits: 8, Parity: "X", StopBits: 1}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected parity error, got nil")
	}

	cfg.Transport.RTU.Parity = "E"
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_UnknownTransport(t *testing.T) {
	cfg := solarmanConfig()
	cfg.Transport.Kind = "carrier-pigeon"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestValidate_PortRanges(t *testing.T) {
	cfg := solarmanConfig()
	cfg.HTTP.Port = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error, got nil")
	}

	cfg = solarmanConfig()
	cfg.Transport.LoggerPort = 70000
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestValidate_MQTTQoS(t *testing.T) {
	cfg := solarmanConfig()
	cfg.MQTT.Broker = "tcp://broker:1883"
	cfg.MQTT.QOS = 3
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error, got nil")
	}

	// QOS is ignored while the sink is disabled.
	cfg.MQTT.Broker = ""
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNormalize_Floors(t *testing.T) {
	cfg := solarmanConfig()
	cfg.Poll.Interval = time.Millisecond
	cfg.Poll.RequestTimeout = 0
	cfg.Breaker.FailLimit = 0
	cfg.Breaker.OpenFor = 0
	cfg.Table.RoundDecimals = 99

	Normalize(cfg)

	if cfg.Poll.Interval != minInterval {
		t.Fatalf("interval = %v, want %v", cfg.Poll.Interval, minInterval)
	}
	if cfg.Poll.RequestTimeout != minTimeout {
		t.Fatalf("request timeout = %v, want %v", cfg.Poll.RequestTimeout, minTimeout)
	}
	if cfg.Breaker.FailLimit != 1 {
		t.Fatalf("fail limit = %d, want 1", cfg.Breaker.FailLimit)
	}
	if cfg.Breaker.OpenFor != minOpenFor {
		t.Fatalf("open for = %v, want %v", cfg.Breaker.OpenFor, minOpenFor)
	}
	if cfg.Table.RoundDecimals != maxDecimals {
		t.Fatalf("decimals = %d, want %d", cfg.Table.RoundDecimals, maxDecimals)
	}
}

func TestNormalize_DefaultsMQTTClientID(t *testing.T) {
	cfg := solarmanConfig()
	cfg.MQTT.Broker = "tcp://broker:1883"
	Normalize(cfg)
	if cfg.MQTT.ClientID != "modbus-bridge" {
		t.Fatalf("client id = %q, want default", cfg.MQTT.ClientID)
	}

	// A disabled sink stays untouched.
	cfg = solarmanConfig()
	Normalize(cfg)
	if cfg.MQTT.ClientID != "" {
		t.Fatalf("client id = %q, want empty while disabled", cfg.MQTT.ClientID)
	}
}

func TestNormalize_KeepsSaneValues(t *testing.T) {
	cfg := solarmanConfig()
	want := *cfg
	Normalize(cfg)
	if *cfg != want {
		t.Fatalf("Normalize changed a sane config:\n got %+v\nwant %+v", *cfg, want)
	}
}
