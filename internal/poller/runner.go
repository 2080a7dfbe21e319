// internal/poller/runner.go
package poller

import (
	"context"
	"time"

	"k8s.io/klog/v2"
)

// Run drives the poll loop until ctx ends. The first poll fires
// immediately, later polls follow the ticker. One goroutine. No
// overlap. No per-read retries: a failed cycle waits for the next tick.
func (p *Poller) Run(ctx context.Context) error {
	klog.Infof("poller: %d entries in %d range(s), %d words per poll, interval %s",
		len(p.entries), len(p.plan.Ranges), p.plan.Words(), p.cfg.Interval)

	p.tick(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	snap, err := p.PollOnce(ctx)
	switch {
	case err == ErrBreakerOpen:
		klog.V(2).Info("poller: breaker open, cycle skipped")
	case err != nil:
		klog.Warningf("poller: cycle failed: %v", err)
	default:
		klog.V(2).Infof("poller: cycle %d ok, %d group(s)", snap.Seq, len(snap.Groups))
	}
}
