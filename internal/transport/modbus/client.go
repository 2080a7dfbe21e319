// internal/transport/modbus/client.go

// Package modbus adapts the goburrow Modbus client to the poller's
// reader contract, for inverters reachable over plain Modbus TCP or a
// local RTU serial line instead of a Solarman stick.
package modbus

import (
	"context"
	"time"

	goburrow "github.com/goburrow/modbus"
	"github.com/pkg/errors"

	"github.com/tamzrod/modbus-bridge/internal/transport"
)

// TCPConfig describes a Modbus TCP endpoint.
type TCPConfig struct {
	Addr        string
	SlaveID     byte
	Timeout     time.Duration
	IdleTimeout time.Duration
}

// RTUConfig describes a serial Modbus RTU endpoint.
type RTUConfig struct {
	Device   string
	BaudRate int
	DataBits int
	Parity   string
	StopBits int
	SlaveID  byte
	Timeout  time.Duration
}

// Client wraps a goburrow handler pair. The underlying transport
// connects lazily and reconnects on the next request after an error,
// which is exactly the recovery the poll loop expects.
type Client struct {
	client goburrow.Client
	closer interface{ Close() error }
}

// NewTCP returns a Modbus TCP client.
func NewTCP(cfg TCPConfig) *Client {
	h := goburrow.NewTCPClientHandler(cfg.Addr)
	h.Timeout = cfg.Timeout
	h.IdleTimeout = cfg.IdleTimeout
	h.SlaveId = cfg.SlaveID
	return &Client{client: goburrow.NewClient(h), closer: h}
}

// NewRTU returns a Modbus RTU client for a serial device.
func NewRTU(cfg RTUConfig) *Client {
	h := goburrow.NewRTUClientHandler(cfg.Device)
	h.BaudRate = cfg.BaudRate
	h.DataBits = cfg.DataBits
	h.Parity = cfg.Parity
	h.StopBits = cfg.StopBits
	h.Timeout = cfg.Timeout
	h.SlaveId = cfg.SlaveID
	return &Client{client: goburrow.NewClient(h), closer: h}
}

// ReadHoldingRegisters reads qty registers from the holding bank.
func (c *Client) ReadHoldingRegisters(ctx context.Context, addr, qty uint16) ([]uint16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := c.client.ReadHoldingRegisters(addr, qty)
	if err != nil {
		return nil, errors.Wrapf(err, "read holding %d+%d", addr, qty)
	}
	return transport.Words(b)
}

// ReadInputRegisters reads qty registers from the input bank.
func (c *Client) ReadInputRegisters(ctx context.Context, addr, qty uint16) ([]uint16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := c.client.ReadInputRegisters(addr, qty)
	if err != nil {
		return nil, errors.Wrapf(err, "read input %d+%d", addr, qty)
	}
	return transport.Words(b)
}

// Close shuts the underlying connection or serial port.
func (c *Client) Close() error {
	return c.closer.Close()
}
