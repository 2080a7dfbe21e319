// internal/transport/transport.go

// Package transport holds the device-facing read clients. Each client
// speaks one wire protocol and exposes the same two register reads; the
// poller is handed whichever one the configuration selects.
package transport

import "github.com/pkg/errors"

// Words converts big-endian register payload bytes into words. Modbus
// puts the high byte of every register first regardless of how the
// table later orders multi-word values.
func Words(b []byte) ([]uint16, error) {
	if len(b)%2 != 0 {
		return nil, errors.Errorf("register payload has odd length %d", len(b))
	}
	out := make([]uint16, len(b)/2)
	for i := range out {
		out[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return out, nil
}
