package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NodePath81/mtrip/internal/app"
	"github.com/NodePath81/mtrip/internal/config"
	"github.com/NodePath81/mtrip/internal/prober"
	"github.com/NodePath81/mtrip/internal/reflector"
	"github.com/NodePath81/mtrip/internal/util"
)

const version = "1.0.0"

const (
	exitOK       = 0
	exitFailure  = 1
	exitResource = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printHelp()
		return exitFailure
	}
	switch args[0] {
	case "reflect":
		return runReflect(args[1:])
	case "meter":
		return runMeter(args[1:])
	case "version", "-v", "--version":
		fmt.Println(version)
		return exitOK
	case "help", "-h", "--help":
		printHelp()
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "error: unknown mode %q (want reflect or meter)\n", args[0])
		return exitFailure
	}
}

func runReflect(args []string) int {
	fs := flag.NewFlagSet("reflect", flag.ContinueOnError)
	port := fs.Int("p", 0, "Listen port (required)")
	configPath := fs.String("config", "", "Path to optional config file")
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}
	if *port <= 0 || *port > 65535 {
		fmt.Fprintln(os.Stderr, "error: -p must be a port between 1 and 65535")
		return exitFailure
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitFailure
	}
	logger := util.NewLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = app.RunReflector(ctx, reflector.Config{
		Port:                 *port,
		ReadTimeout:          cfg.Reflector.ReadTimeout.Value(),
		MaxConsecutiveErrors: cfg.Reflector.MaxErrors,
	}, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, reflector.ErrResourceExhausted) {
			return exitResource
		}
		return exitFailure
	}
	return exitOK
}

func runMeter(args []string) int {
	fs := flag.NewFlagSet("meter", flag.ContinueOnError)
	host := fs.String("h", "", "Reflector host (required)")
	port := fs.Int("p", 0, "Reflector port (required)")
	probeSizeInput := fs.String("s", "", "Probe size in bytes, e.g. 512 or 1kb (required)")
	durationSec := fs.Float64("t", 0, "Measurement duration in seconds (required)")
	ceilingInput := fs.String("ceiling", "", "Rate search upper bound, e.g. 1gbps")
	window := fs.Duration("window", 0, "Per-candidate window duration")
	lossThreshold := fs.Float64("loss", 0, "Sustainable loss ratio threshold")
	resolution := fs.Float64("resolution", 0, "Convergence threshold (fraction of ceiling)")
	historyDB := fs.String("history", "", "SQLite file to record runs into")
	noKernelPacing := fs.Bool("no-kernel-pacing", false, "Disable SO_MAX_PACING_RATE assist")
	configPath := fs.String("config", "", "Path to optional config file")
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}

	if *host == "" {
		fmt.Fprintln(os.Stderr, "error: -h <host> is required")
		return exitFailure
	}
	if *port <= 0 || *port > 65535 {
		fmt.Fprintln(os.Stderr, "error: -p must be a port between 1 and 65535")
		return exitFailure
	}
	if *probeSizeInput == "" {
		fmt.Fprintln(os.Stderr, "error: -s <probe_size> is required")
		return exitFailure
	}
	if *durationSec <= 0 {
		fmt.Fprintln(os.Stderr, "error: -t <duration_seconds> must be > 0")
		return exitFailure
	}

	probeSize, err := util.ParseBytes(*probeSizeInput)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error: -s:", err)
		return exitFailure
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitFailure
	}
	logger := util.NewLogger(cfg.Log.Level)

	ceiling := cfg.Meter.Ceiling
	if *ceilingInput != "" {
		ceiling = *ceilingInput
	}
	ceilingBps, err := util.ParseBandwidth(ceiling)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error: -ceiling:", err)
		return exitFailure
	}

	probeCfg := prober.Config{
		Target:        *host,
		Port:          *port,
		ProbeSize:     int(probeSize),
		Duration:      time.Duration(*durationSec * float64(time.Second)),
		LossThreshold: cfg.Meter.LossThreshold,
		CeilingBps:    ceilingBps,
		Window:        cfg.Meter.Window.Value(),
		Resolution:    cfg.Meter.Resolution,
		KernelPacing:  cfg.Meter.KernelPacingEnabled() && !*noKernelPacing,
	}
	if *window > 0 {
		probeCfg.Window = *window
	}
	if *lossThreshold > 0 {
		probeCfg.LossThreshold = *lossThreshold
	}
	if *resolution > 0 {
		probeCfg.Resolution = *resolution
	}

	db := cfg.Meter.HistoryDB
	if *historyDB != "" {
		db = *historyDB
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := app.RunMeter(ctx, app.MeterOptions{Probe: probeCfg, HistoryDB: db}, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitFailure
	}

	printResult(result)
	return exitOK
}

func printResult(result prober.Result) {
	if result.Inconclusive {
		fmt.Printf("inconclusive (loss ratio %.2f at the lowest probed rate)\n", result.LossRatio)
	} else {
		fmt.Printf("estimated bandwidth: %s (%s/s)\n",
			util.FormatBitsPerSecond(result.EstimateBps),
			util.FormatBytes(result.EstimateBytesPerSec))
	}
	fmt.Printf("  run:       %s\n", result.RunID)
	fmt.Printf("  duration:  %s\n", result.Elapsed.Round(time.Millisecond))
	fmt.Printf("  windows:   %d\n", len(result.Windows))
	fmt.Printf("  packets:   %d sent, %d echoed\n", result.PacketsSent, result.PacketsRecv)
	if result.RTT.Samples > 0 {
		fmt.Printf("  rtt:       mean %s, p50 %s, p90 %s, stdev %s (%d samples)\n",
			result.RTT.Mean.Round(time.Microsecond),
			result.RTT.P50.Round(time.Microsecond),
			result.RTT.P90.Round(time.Microsecond),
			result.RTT.StdDev.Round(time.Microsecond),
			result.RTT.Samples)
	}
}

func printHelp() {
	fmt.Print(`mtrip - UDP bandwidth measurement

Usage:
  mtrip reflect -p <port>
  mtrip meter -h <host> -p <port> -s <probe_size> -t <duration_seconds>
  mtrip version
  mtrip help

Meter options:
  -ceiling <rate>      rate search upper bound (default 1gbps)
  -window <duration>   per-candidate window (default 200ms)
  -loss <ratio>        sustainable loss threshold (default 0.01)
  -resolution <frac>   convergence threshold (default 0.01)
  -history <path>      record runs into a SQLite file
  -no-kernel-pacing    disable SO_MAX_PACING_RATE assist
  -config <path>       YAML defaults file (both modes)
`)
}
