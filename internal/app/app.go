// Package app is the controller layer: it owns the selected mode's
// lifecycle, wires the measurement to the history store, and runs
// post-mortem diagnostics. Interrupts arrive as context cancellation.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/NodePath81/mtrip/internal/history"
	"github.com/NodePath81/mtrip/internal/metrics"
	"github.com/NodePath81/mtrip/internal/pacing"
	"github.com/NodePath81/mtrip/internal/prober"
	"github.com/NodePath81/mtrip/internal/reflector"
)

// MeterOptions resolves flags and config file into one meter run.
type MeterOptions struct {
	Probe     prober.Config
	HistoryDB string
}

// RunReflector serves echoes until ctx is cancelled.
func RunReflector(ctx context.Context, cfg reflector.Config, logger *slog.Logger) error {
	return reflector.Run(ctx, cfg, logger)
}

// RunMeter executes one measurement run, persists it when a history
// database is configured, and attaches diagnostics for dead runs.
func RunMeter(ctx context.Context, opts MeterOptions, logger *slog.Logger) (prober.Result, error) {
	if opts.Probe.KernelPacing {
		if installed, err := pacing.FQInstalled(); err == nil && !installed {
			logger.Warn("no fq qdisc found; kernel pacing will not take effect")
		}
	}

	started := time.Now()
	result, err := prober.Run(ctx, opts.Probe, logger)
	if err != nil {
		return prober.Result{}, err
	}

	if result.PacketsRecv == 0 && result.PacketsSent > 0 {
		// Nothing came back at all. An ICMP echo tells apart a dead
		// host from a host without a reflector listening.
		if rtt, perr := metrics.PingICMP(opts.Probe.Target, time.Second); perr == nil {
			logger.Warn("host answers icmp but no probes were echoed; is the reflector running?",
				"target", opts.Probe.Target, "icmp_rtt", rtt)
		} else {
			logger.Warn("no echoes and no icmp reply from target", "target", opts.Probe.Target)
		}
	}

	if opts.HistoryDB != "" {
		if err := recordRun(opts.HistoryDB, started, result); err != nil {
			logger.Warn("history record failed", "db", opts.HistoryDB, "error", err)
		}
	}
	return result, nil
}

func recordRun(path string, started time.Time, result prober.Result) error {
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Record(history.Run{
		ID:                  result.RunID,
		StartedAt:           started,
		Target:              result.Target,
		ProbeSize:           result.ProbeSize,
		Duration:            result.Elapsed,
		EstimateBytesPerSec: result.EstimateBytesPerSec,
		LossRatio:           result.LossRatio,
		Inconclusive:        result.Inconclusive,
		PacketsSent:         result.PacketsSent,
		PacketsRecv:         result.PacketsRecv,
	})
}
