// internal/config/validate.go
package config

import "fmt"

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	// ------------------------------------------------------------
	// TRANSPORT
	// ------------------------------------------------------------

	switch cfg.Transport.Kind {
	case TransportSolarman:
		if cfg.Transport.LoggerIP == "" {
			return fmt.Errorf("transport %q: LOGGER_IP is required", cfg.Transport.Kind)
		}
		if cfg.Transport.LoggerSN == 0 {
			return fmt.Errorf("transport %q: LOGGER_SN is required", cfg.Transport.Kind)
		}
		if cfg.Transport.LoggerPort < 1 || cfg.Transport.LoggerPort > 65535 {
			return fmt.Errorf("LOGGER_PORT %d out of range", cfg.Transport.LoggerPort)
		}

	case TransportTCP:
		if cfg.Transport.Endpoint == "" {
			return fmt.Errorf("transport %q: MODBUS_ENDPOINT is required", cfg.Transport.Kind)
		}

	case TransportRTU:
		if cfg.Transport.RTU.Device == "" {
			return fmt.Errorf("transport %q: RTU_DEVICE is required", cfg.Transport.Kind)
		}
		switch cfg.Transport.RTU.Parity {
		case "N", "E", "O":
		default:
			return fmt.Errorf("RTU_PARITY %q must be N, E or O", cfg.Transport.RTU.Parity)
		}

	default:
		return fmt.Errorf("TRANSPORT %q must be solarman, tcp or rtu", cfg.Transport.Kind)
	}

	// ------------------------------------------------------------
	// HTTP / TABLE / MQTT
	// ------------------------------------------------------------

	if cfg.HTTP.Port < 1 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("LISTEN_PORT %d out of range", cfg.HTTP.Port)
	}
	if cfg.Table.Path == "" {
		return fmt.Errorf("REG_TABLE must not be empty")
	}
	if cfg.MQTT.Enabled() && cfg.MQTT.QOS > 2 {
		return fmt.Errorf("MQTT_QOS %d must be 0, 1 or 2", cfg.MQTT.QOS)
	}

	return nil
}
