// Package prober implements the measurement state machine: a paced
// send loop and a concurrent receive loop share one UDP channel, and a
// binary search over candidate probe rates converges on the highest
// rate whose per-window loss ratio stays under the threshold.
package prober

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/NodePath81/mtrip/internal/channel"
	"github.com/NodePath81/mtrip/internal/metrics"
	"github.com/NodePath81/mtrip/internal/protocol"
)

const (
	// receivePollInterval bounds each blocking receive so the drain
	// loop observes cancellation promptly.
	receivePollInterval = 50 * time.Millisecond

	// warmup parameters: a short low-rate burst seeds the RTT estimate
	// before the search starts.
	warmupRate     = 100.0
	warmupDuration = 100 * time.Millisecond

	maxConsecutiveSendFailures = 10

	minDrainTimeout = 20 * time.Millisecond

	// minWindowProbes is the smallest sample a window may pass on. At
	// low candidate rates the window is stretched (within the run
	// budget) until this many probes went out; a window still smaller
	// than this is never deemed sustainable.
	minWindowProbes = 10
)

type prober struct {
	cfg      Config
	ch       *channel.Channel
	logger   *slog.Logger
	deadline time.Time

	seq    uint32
	active atomic.Pointer[windowCollector]

	rttEst     metrics.Estimator
	rttSamples []time.Duration

	packetsSent atomic.Uint64
	packetsRecv atomic.Uint64

	sendFailures int
	pacingWarned bool
	pacingFailed bool
}

// Run connects to the reflector and executes one measurement run. An
// interrupted run returns its partial result with a nil error; only
// setup failures and persistent I/O failures are errors.
func Run(ctx context.Context, cfg Config, logger *slog.Logger) (Result, error) {
	if err := cfg.validate(); err != nil {
		return Result{}, err
	}
	cfg.applyDefaults()

	ch, err := channel.Connect(cfg.Target, cfg.Port)
	if err != nil {
		return Result{}, err
	}
	defer ch.Close()

	p := &prober{cfg: cfg, ch: ch, logger: logger}
	return p.run(ctx)
}

func (p *prober) run(ctx context.Context) (Result, error) {
	start := time.Now()
	p.deadline = start.Add(p.cfg.Duration)

	recvCtx, stopRecv := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.receiveLoop(recvCtx)
	}()
	defer func() {
		stopRecv()
		wg.Wait()
	}()

	// Seed the RTT estimate so drain timeouts track the path instead
	// of the 500ms ceiling. Zero echoes here is not fatal: the search
	// below will fail its windows and report inconclusive.
	if _, err := p.runWindow(ctx, warmupRate, warmupDuration); err != nil {
		return Result{}, err
	}

	ceilingRate := p.cfg.CeilingBps / 8 / float64(p.cfg.ProbeSize)
	outcome, err := search(ctx, p.deadline, ceilingRate, p.cfg.Resolution, p.cfg.LossThreshold,
		func(ctx context.Context, rate float64) (WindowSummary, error) {
			return p.runWindow(ctx, rate, p.cfg.Window)
		})
	if err != nil {
		return Result{}, err
	}

	result := Result{
		RunID:        uuid.New().String(),
		Target:       p.cfg.Target,
		ProbeSize:    p.cfg.ProbeSize,
		Elapsed:      time.Since(start),
		Inconclusive: !outcome.conclusive,
		LossRatio:    outcome.lossRatio,
		Windows:      outcome.windows,
		PacketsSent:  p.packetsSent.Load(),
		PacketsRecv:  p.packetsRecv.Load(),
		RTT:          metrics.Summarize(p.rttSamples),
	}
	if outcome.conclusive {
		result.EstimateBytesPerSec = outcome.low * float64(p.cfg.ProbeSize)
		result.EstimateBps = result.EstimateBytesPerSec * 8
	}
	return result, nil
}

// runWindow paces probes at the candidate rate for the window duration,
// then drains echoes before computing the loss ratio. The window's
// collector stays active through the drain and is retired afterwards,
// so echoes straggling in from a closed window are discarded.
func (p *prober) runWindow(ctx context.Context, rate float64, duration time.Duration) (WindowSummary, error) {
	expected := int(rate*duration.Seconds()) + 1
	w := newWindowCollector(p.seq, expected)
	p.active.Store(w)
	defer p.active.Store(nil)

	p.applyKernelPacing(rate)

	packet := make([]byte, p.cfg.ProbeSize)
	pc := newPacer(rate)
	end := time.Now().Add(duration)
	delivered := 0

	// The window runs for its nominal duration but is stretched until
	// minWindowProbes went out, as far as the run budget allows.
	for (time.Now().Before(end) || delivered < minWindowProbes) && time.Now().Before(p.deadline) {
		if err := pc.wait(ctx); err != nil {
			break // cancelled; account for what was sent
		}
		seq := p.seq
		p.seq++
		protocol.PutSeq(packet, seq)
		w.noteSent(seq, time.Now())
		if err := p.ch.Send(packet); err != nil {
			w.noteSendFailed(seq)
			if errors.Is(err, channel.ErrClosed) {
				return WindowSummary{}, err
			}
			p.sendFailures++
			if channel.IsResourceExhaustion(err) || p.sendFailures >= maxConsecutiveSendFailures {
				return WindowSummary{}, fmt.Errorf("probe send failing persistently: %w", err)
			}
			p.logger.Warn("probe send failed", "seq", seq, "error", err)
			continue
		}
		p.sendFailures = 0
		p.packetsSent.Add(1)
		delivered++
	}

	sleepCtx(ctx, p.drainTimeout())

	sent, received := w.counts()
	samples := w.rttSamples()
	for _, rtt := range samples {
		p.rttEst.Observe(rtt)
	}
	p.rttSamples = append(p.rttSamples, samples...)

	summary := WindowSummary{
		Rate:      rate,
		Sent:      sent,
		Received:  received,
		Lost:      sent - received,
		LossRatio: w.lossRatio(),
	}
	p.logger.Debug("window complete",
		"rate_pps", rate, "sent", sent, "received", received, "loss", summary.LossRatio)
	return summary, nil
}

// receiveLoop drains echoes for the whole run and matches them against
// the active window's collector by sequence number. Arrival order does
// not matter.
func (p *prober) receiveLoop(ctx context.Context) {
	buf := make([]byte, protocol.MaxProbeSize)
	for {
		if ctx.Err() != nil {
			return
		}
		n, _, err := p.ch.Receive(buf, receivePollInterval)
		if err != nil {
			if errors.Is(err, channel.ErrTimeout) {
				continue
			}
			if errors.Is(err, channel.ErrClosed) {
				return
			}
			p.logger.Debug("receive failed", "error", err)
			continue
		}
		if n < protocol.SeqHeaderSize {
			continue
		}
		w := p.active.Load()
		if w == nil {
			continue
		}
		if w.noteEcho(protocol.Seq(buf), time.Now()) {
			p.packetsRecv.Add(1)
		}
	}
}

func (p *prober) drainTimeout() time.Duration {
	est := p.rttEst.Estimate()
	if est <= 0 {
		return p.cfg.DrainCeiling
	}
	d := est * time.Duration(p.cfg.RTTMultiple)
	if d < minDrainTimeout {
		d = minDrainTimeout
	}
	return d
}

func (p *prober) applyKernelPacing(rate float64) {
	if !p.cfg.KernelPacing || p.pacingFailed {
		return
	}
	if err := p.ch.ApplyPacingRate(rate * float64(p.cfg.ProbeSize)); err != nil {
		p.pacingFailed = true
		if !p.pacingWarned {
			p.pacingWarned = true
			p.logger.Warn("kernel pacing unavailable", "error", err)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
