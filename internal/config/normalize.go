// internal/config/normalize.go
package config

import (
	"time"

	"golang.org/x/exp/constraints"
)

// Floors and caps applied by Normalize. Values outside these ranges are
// almost always typos; running with them would hammer the device or
// produce unreadable output.
const (
	minInterval = 100 * time.Millisecond
	minTimeout  = 100 * time.Millisecond
	minOpenFor  = time.Second
	maxDecimals = 8
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	cfg.Poll.Interval = floor(cfg.Poll.Interval, minInterval)
	cfg.Poll.RequestTimeout = floor(cfg.Poll.RequestTimeout, minTimeout)
	cfg.Transport.SocketTimeout = floor(cfg.Transport.SocketTimeout, minTimeout)

	cfg.Breaker.OpenFor = floor(cfg.Breaker.OpenFor, minOpenFor)
	cfg.Breaker.FailLimit = floor(cfg.Breaker.FailLimit, 1)

	cfg.Table.RoundDecimals = clamp(cfg.Table.RoundDecimals, 0, maxDecimals)

	if cfg.MQTT.Enabled() && cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "modbus-bridge"
	}
}

func floor[T constraints.Ordered](v, lo T) T {
	if v < lo {
		return lo
	}
	return v
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
