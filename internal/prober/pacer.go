package prober

import (
	"context"
	"time"
)

// pacer spaces probes at a fixed rate using a leaky-bucket deadline:
// each wait advances the next send slot by one interval, so timing
// error never accumulates. Cancellation is observed within one
// interval.
type pacer struct {
	interval time.Duration
	next     time.Time
}

func newPacer(perSecond float64) *pacer {
	if perSecond <= 0 {
		perSecond = 1
	}
	interval := time.Duration(float64(time.Second) / perSecond)
	if interval <= 0 {
		interval = time.Nanosecond
	}
	return &pacer{interval: interval}
}

// wait blocks until the next send slot or until ctx is done.
func (p *pacer) wait(ctx context.Context) error {
	now := time.Now()
	if p.next.Before(now) {
		p.next = now
	}
	delay := p.next.Sub(now)
	p.next = p.next.Add(p.interval)
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
