// internal/breaker/breaker_test.go
package breaker

import (
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestBreaker(failLimit int, openFor time.Duration) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	b := New(failLimit, openFor)
	b.SetNow(clk.now)
	return b, clk
}

func TestOpensAtFailLimit(t *testing.T) {
	b, clk := newTestBreaker(3, 30*time.Second)

	if b.Failure() {
		t.Fatal("failure 1 opened the breaker")
	}
	if b.Failure() {
		t.Fatal("failure 2 opened the breaker")
	}
	if !b.Allow() {
		t.Fatal("breaker blocked below the limit")
	}
	if !b.Failure() {
		t.Fatal("failure 3 did not open the breaker")
	}
	if b.Allow() {
		t.Fatal("breaker allowed during cooldown")
	}

	failures, openUntil := b.Stats()
	if failures != 3 {
		t.Fatalf("failures = %d, want 3", failures)
	}
	if want := clk.t.Add(30 * time.Second); !openUntil.Equal(want) {
		t.Fatalf("openUntil = %v, want %v", openUntil, want)
	}
}

func TestAllowsProbeAfterCooldown(t *testing.T) {
	b, clk := newTestBreaker(1, 30*time.Second)

	b.Failure()
	if b.Allow() {
		t.Fatal("breaker allowed during cooldown")
	}

	clk.advance(29 * time.Second)
	if b.Allow() {
		t.Fatal("breaker allowed before cooldown expired")
	}

	clk.advance(time.Second)
	if !b.Allow() {
		t.Fatal("breaker blocked after cooldown expired")
	}
}

func TestProbeFailureReArms(t *testing.T) {
	b, clk := newTestBreaker(1, 30*time.Second)

	b.Failure()
	clk.advance(31 * time.Second)
	if !b.Allow() {
		t.Fatal("probe blocked")
	}

	if !b.Failure() {
		t.Fatal("probe failure did not re-arm the breaker")
	}
	if b.Allow() {
		t.Fatal("breaker allowed right after failed probe")
	}
	clk.advance(31 * time.Second)
	if !b.Allow() {
		t.Fatal("breaker blocked after second cooldown")
	}
}

func TestSuccessCloses(t *testing.T) {
	b, clk := newTestBreaker(2, 30*time.Second)

	b.Failure()
	b.Failure()
	clk.advance(31 * time.Second)
	b.Success()

	if !b.Allow() {
		t.Fatal("breaker blocked after success")
	}
	failures, openUntil := b.Stats()
	if failures != 0 {
		t.Fatalf("failures = %d, want 0", failures)
	}
	if !openUntil.IsZero() {
		t.Fatalf("openUntil = %v, want zero", openUntil)
	}
}

func TestSuccessResetsFailureRun(t *testing.T) {
	b, _ := newTestBreaker(3, 30*time.Second)

	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()
	if _, openUntil := b.Stats(); !openUntil.IsZero() {
		t.Fatal("breaker opened although the run was broken by a success")
	}
	if !b.Allow() {
		t.Fatal("breaker blocked although the run was broken by a success")
	}
}

func TestFailLimitFloor(t *testing.T) {
	b := New(0, time.Second)
	if !b.Failure() {
		t.Fatal("limit 0 must behave as limit 1")
	}
}
