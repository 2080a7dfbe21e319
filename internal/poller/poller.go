// internal/poller/poller.go

// Package poller drives the acquisition cycle: execute the planned
// register reads, decode every table entry, publish one snapshot.
package poller

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/tamzrod/modbus-bridge/internal/breaker"
	"github.com/tamzrod/modbus-bridge/internal/decode"
	"github.com/tamzrod/modbus-bridge/internal/metrics"
	"github.com/tamzrod/modbus-bridge/internal/schema"
	"github.com/tamzrod/modbus-bridge/internal/snapshot"
)

// Reader abstracts the wire client a poll drives. The poller depends on
// register geometry only; framing lives in internal/transport.
type Reader interface {
	ReadHoldingRegisters(ctx context.Context, addr, qty uint16) ([]uint16, error) // FC 3
	ReadInputRegisters(ctx context.Context, addr, qty uint16) ([]uint16, error)   // FC 4
	Close() error
}

// Sink receives every published snapshot, after the store swap.
// Publish MUST NOT block and MUST NOT mutate the snapshot.
type Sink interface {
	Publish(*snapshot.Snapshot)
}

// ErrBreakerOpen marks a poll skipped because the breaker cooldown is
// still running.
var ErrBreakerOpen = errors.New("circuit breaker open")

// Config is the runtime config the poller needs. Reader, Table,
// Breaker, Store and Metrics are required.
type Config struct {
	Reader   Reader
	Table    *schema.Table
	Breaker  *breaker.Breaker
	Store    *snapshot.Store
	Metrics  *metrics.Metrics
	Sinks    []Sink
	Decimals int
	Timeout  time.Duration // budget for one whole poll pass
	Interval time.Duration // runner tick

	now func() time.Time // test override
}

// Poller is a dumb, clock-driven reader. Single goroutine: Run and
// PollOnce must not be called concurrently.
type Poller struct {
	cfg     Config
	entries []schema.Entry
	plan    Plan
	seq     uint64
	now     func() time.Time
}

// New validates the config and builds the read plan once.
func New(cfg Config) (*Poller, error) {
	if cfg.Reader == nil {
		return nil, errors.New("poller: reader required")
	}
	if cfg.Table == nil || len(cfg.Table.Entries) == 0 {
		return nil, errors.New("poller: register table with at least one entry required")
	}
	if cfg.Breaker == nil {
		return nil, errors.New("poller: breaker required")
	}
	if cfg.Store == nil {
		return nil, errors.New("poller: store required")
	}
	if cfg.Metrics == nil {
		return nil, errors.New("poller: metrics required")
	}
	if cfg.Timeout <= 0 {
		return nil, errors.New("poller: timeout must be > 0")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	now := cfg.now
	if now == nil {
		now = time.Now
	}
	return &Poller{
		cfg:     cfg,
		entries: cfg.Table.Entries,
		plan:    BuildPlan(cfg.Table.Entries),
		now:     now,
	}, nil
}

// PollOnce performs exactly one poll cycle. All-or-nothing: on any read
// or decode error nothing is published and readers keep the previous
// snapshot. A skip due to an open breaker returns ErrBreakerOpen.
func (p *Poller) PollOnce(ctx context.Context) (*snapshot.Snapshot, error) {
	m := p.cfg.Metrics
	if !p.cfg.Breaker.Allow() {
		m.PollsTotal.WithLabelValues("skipped").Inc()
		return nil, ErrBreakerOpen
	}

	start := p.now()
	snap, err := p.poll(ctx)
	m.PollDuration.Observe(p.now().Sub(start).Seconds())

	if err != nil {
		m.PollsTotal.WithLabelValues("failure").Inc()
		if opened := p.cfg.Breaker.Failure(); opened {
			failures, until := p.cfg.Breaker.Stats()
			m.BreakerOpen.Set(1)
			m.BreakerOpens.Inc()
			klog.Warningf("circuit breaker opened after %d consecutive failures, next attempt at %s",
				failures, until.Format(time.RFC3339))
		}
		return nil, err
	}

	p.cfg.Breaker.Success()
	m.BreakerOpen.Set(0)
	m.PollsTotal.WithLabelValues("success").Inc()
	m.LastSuccess.Set(float64(snap.Taken.UnixNano()) / 1e9)

	p.cfg.Store.Set(snap)
	for _, s := range p.cfg.Sinks {
		s.Publish(snap)
	}
	return snap, nil
}

// poll executes every planned range and decodes every entry.
func (p *Poller) poll(ctx context.Context) (*snapshot.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	m := p.cfg.Metrics
	words := make([][]uint16, len(p.plan.Ranges))
	for i, r := range p.plan.Ranges {
		w, err := p.read(ctx, r)
		if err != nil {
			m.ReadsTotal.WithLabelValues(r.Function.String(), "failure").Inc()
			return nil, errors.Wrapf(err, "range %s %d+%d", r.Function, r.Start, r.Count)
		}
		if len(w) != int(r.Count) {
			m.ReadsTotal.WithLabelValues(r.Function.String(), "failure").Inc()
			return nil, errors.Errorf("range %s %d+%d: got %d words",
				r.Function, r.Start, r.Count, len(w))
		}
		m.ReadsTotal.WithLabelValues(r.Function.String(), "success").Inc()
		words[i] = w
	}

	values := make([]snapshot.Value, len(p.entries))
	for i, e := range p.entries {
		slot := p.plan.Slots[i]
		w := words[slot.Range][slot.Offset : slot.Offset+e.Count]
		v, err := decode.Value(e, w, p.cfg.Decimals)
		if err != nil {
			return nil, err
		}
		values[i] = snapshot.Value{Entry: e, Value: v}
	}

	p.seq++
	return snapshot.New(values, p.now(), p.seq), nil
}

func (p *Poller) read(ctx context.Context, r Range) ([]uint16, error) {
	if r.Function == schema.FunctionInput {
		return p.cfg.Reader.ReadInputRegisters(ctx, r.Start, r.Count)
	}
	return p.cfg.Reader.ReadHoldingRegisters(ctx, r.Start, r.Count)
}
