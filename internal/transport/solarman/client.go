// internal/transport/solarman/client.go

// Package solarman reads Modbus registers through a Solarman V5 logger
// stick: each read is a Modbus RTU frame wrapped in the logger's TCP
// envelope.
package solarman

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
)

// Config identifies the logger endpoint and the inverter behind it.
type Config struct {
	// Addr is the logger's TCP endpoint, host:port.
	Addr string
	// LoggerSerial is the stick's serial number. The logger drops
	// frames addressed to any other serial.
	LoggerSerial uint32
	// SlaveID is the Modbus unit id of the inverter behind the stick.
	SlaveID byte
	// Timeout bounds each request round trip when the caller's context
	// carries no deadline of its own.
	Timeout time.Duration
}

// Client is a Solarman V5 register reader. Not safe for concurrent use;
// the poll loop is its only caller.
type Client struct {
	cfg  Config
	conn net.Conn
	seq  uint16

	dial func(ctx context.Context, addr string) (net.Conn, error)
}

// New returns a client that connects on first use and reconnects after
// any wire error.
func New(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		dial: func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", addr)
		},
	}
}

// ReadHoldingRegisters reads qty registers from the holding bank.
func (c *Client) ReadHoldingRegisters(ctx context.Context, addr, qty uint16) ([]uint16, error) {
	return c.read(ctx, fcReadHolding, addr, qty)
}

// ReadInputRegisters reads qty registers from the input bank.
func (c *Client) ReadInputRegisters(ctx context.Context, addr, qty uint16) ([]uint16, error) {
	return c.read(ctx, fcReadInput, addr, qty)
}

// Close drops the connection. The client may be reused; the next read
// redials.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) read(ctx context.Context, fc byte, addr, qty uint16) ([]uint16, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.cfg.Timeout)
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.drop()
		return nil, errors.Wrap(err, "set deadline")
	}

	c.seq++
	rtu := encodeReadRequest(c.cfg.SlaveID, fc, addr, qty)
	if _, err := c.conn.Write(encodeFrame(c.seq, c.cfg.LoggerSerial, rtu)); err != nil {
		c.drop()
		return nil, errors.Wrap(err, "write request")
	}

	frame, err := readFrame(c.conn)
	if err != nil {
		c.drop()
		return nil, errors.Wrap(err, "read response")
	}
	resp, err := decodeFrame(frame, c.seq, c.cfg.LoggerSerial)
	if err != nil {
		// Envelope is broken or out of sync. Resyncing mid-stream is
		// not worth it; reconnect on the next read instead.
		c.drop()
		return nil, err
	}
	return decodeReadResponse(resp, c.cfg.SlaveID, fc, qty)
}

func (c *Client) ensureConnected(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	dctx := ctx
	if _, ok := ctx.Deadline(); !ok && c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	conn, err := c.dial(dctx, c.cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "dial %s", c.cfg.Addr)
	}
	c.conn = conn
	return nil
}

func (c *Client) drop() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// readFrame pulls one complete V5 frame off the wire: the three-byte
// prefix fixes the total size, the rest is read exactly.
func readFrame(r io.Reader) ([]byte, error) {
	head := make([]byte, 3)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, err
	}
	if head[0] != frameStart {
		return nil, errors.Errorf("bad start byte 0x%02X", head[0])
	}
	payloadLen := int(head[1]) | int(head[2])<<8
	rest := make([]byte, headerLen-3+payloadLen+trailerLen)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, err
	}
	return append(head, rest...), nil
}
