// internal/transport/modbus/client_test.go
package modbus

import (
	"context"
	"errors"
	"testing"
	"time"
)

// A cancelled context must short-circuit before any wire IO; the bogus
// endpoint would otherwise make these reads fail differently.
func TestReadsHonorContextCancellation(t *testing.T) {
	cli := NewTCP(TCPConfig{Addr: "127.0.0.1:1", SlaveID: 1, Timeout: time.Second})
	defer cli.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := cli.ReadHoldingRegisters(ctx, 587, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("holding read err = %v, want context.Canceled", err)
	}
	if _, err := cli.ReadInputRegisters(ctx, 587, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("input read err = %v, want context.Canceled", err)
	}
}
