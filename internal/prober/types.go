package prober

import (
	"errors"
	"fmt"
	"time"

	"github.com/NodePath81/mtrip/internal/metrics"
	"github.com/NodePath81/mtrip/internal/protocol"
)

const (
	// DefaultCeilingBps bounds the initial search interval: no candidate
	// rate exceeds this bandwidth.
	DefaultCeilingBps = 1e9
	// DefaultWindow is the sub-duration of one candidate-rate window.
	DefaultWindow = 200 * time.Millisecond
	// DefaultLossThreshold is the loss ratio a sustainable rate may not exceed.
	DefaultLossThreshold = 0.01
	// DefaultResolution stops the search when the remaining interval
	// shrinks below this fraction of the ceiling.
	DefaultResolution = 0.01
	// DefaultDrainCeiling bounds the per-window echo drain when no RTT
	// estimate exists yet.
	DefaultDrainCeiling = 500 * time.Millisecond
	// DefaultRTTMultiple scales the RTT estimate into a drain timeout.
	DefaultRTTMultiple = 3
)

// Config defines parameters for one measurement run.
type Config struct {
	// Target is the reflector host or IP.
	Target string
	// Port is the reflector port.
	Port int
	// ProbeSize is the probe datagram size in bytes (sequence header included).
	ProbeSize int
	// Duration is the total time budget for the run.
	Duration time.Duration
	// LossThreshold is the maximum sustainable loss ratio (default 1%).
	LossThreshold float64
	// CeilingBps is the upper bound of the rate search in bits per second.
	CeilingBps float64
	// Window is the duration probes are sent at one candidate rate.
	Window time.Duration
	// Resolution is the convergence threshold as a fraction of the ceiling.
	Resolution float64
	// DrainCeiling bounds the echo drain timeout absent an RTT estimate.
	DrainCeiling time.Duration
	// RTTMultiple scales the RTT estimate into the drain timeout.
	RTTMultiple int
	// KernelPacing additionally paces the socket in the kernel (linux, fq).
	KernelPacing bool
}

func (cfg *Config) applyDefaults() {
	if cfg.LossThreshold <= 0 {
		cfg.LossThreshold = DefaultLossThreshold
	}
	if cfg.CeilingBps <= 0 {
		cfg.CeilingBps = DefaultCeilingBps
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Resolution <= 0 {
		cfg.Resolution = DefaultResolution
	}
	if cfg.DrainCeiling <= 0 {
		cfg.DrainCeiling = DefaultDrainCeiling
	}
	if cfg.RTTMultiple <= 0 {
		cfg.RTTMultiple = DefaultRTTMultiple
	}
}

func (cfg *Config) validate() error {
	if cfg.Target == "" {
		return errors.New("target host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("port %d out of range", cfg.Port)
	}
	if cfg.ProbeSize < protocol.MinProbeSize {
		return fmt.Errorf("probe size must be >= %d bytes", protocol.MinProbeSize)
	}
	if cfg.ProbeSize > protocol.MaxProbeSize {
		return fmt.Errorf("probe size must be <= %d bytes", protocol.MaxProbeSize)
	}
	if cfg.Duration <= 0 {
		return errors.New("duration must be > 0")
	}
	if cfg.LossThreshold < 0 || cfg.LossThreshold >= 1 {
		return errors.New("loss threshold must be in [0,1)")
	}
	return nil
}

// WindowSummary describes one completed measurement window.
type WindowSummary struct {
	// Rate is the candidate rate in probes per second.
	Rate float64
	// Sent is the number of probes transmitted in the window.
	Sent int
	// Received is the number of matched echoes.
	Received int
	// Lost is Sent - Received.
	Lost int
	// LossRatio is Lost/Sent, in [0,1].
	LossRatio float64
	// Sustainable reports whether the window passed the loss threshold.
	Sustainable bool
}

// Result is the outcome of a measurement run.
type Result struct {
	// RunID uniquely identifies the run.
	RunID string
	// Target is the reflector host measured against.
	Target string
	// ProbeSize is the probe datagram size used.
	ProbeSize int
	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration
	// EstimateBytesPerSec is the highest sustainable throughput found.
	EstimateBytesPerSec float64
	// EstimateBps is the same estimate in bits per second.
	EstimateBps float64
	// Inconclusive reports that no sustainable rate was found.
	Inconclusive bool
	// LossRatio is the loss observed at the floor when inconclusive,
	// otherwise the loss of the last sustainable window.
	LossRatio float64
	// Windows lists the candidate windows in search order.
	Windows []WindowSummary
	// PacketsSent and PacketsRecv cover the whole run, warmup included.
	PacketsSent uint64
	PacketsRecv uint64
	// RTT summarizes round-trip times of all matched echoes.
	RTT metrics.Summary
}
