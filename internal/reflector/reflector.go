// Package reflector implements the echo side of the measurement: every
// inbound datagram is sent back to its origin byte-for-byte, with no
// interpretation of the payload.
package reflector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/NodePath81/mtrip/internal/channel"
	"github.com/NodePath81/mtrip/internal/protocol"
)

const (
	// DefaultReadTimeout bounds each blocking receive so the loop can
	// observe cancellation between datagrams.
	DefaultReadTimeout = 500 * time.Millisecond
	// DefaultMaxConsecutiveErrors is the transient-failure budget
	// before the loop gives up.
	DefaultMaxConsecutiveErrors = 10
)

// ErrResourceExhausted marks repeated OS-level resource exhaustion; the
// caller maps it to a distinguishable exit status.
var ErrResourceExhausted = errors.New("reflector: socket resources exhausted")

// Config holds the reflector loop parameters.
type Config struct {
	Port                 int
	ReadTimeout          time.Duration
	MaxConsecutiveErrors int
}

func (cfg *Config) applyDefaults() {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
}

// Run binds the port and serves echoes until ctx is cancelled or an
// unrecoverable channel error occurs.
func Run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	cfg.applyDefaults()
	ch, err := channel.Bind(cfg.Port)
	if err != nil {
		return err
	}
	defer ch.Close()
	logger.Info("reflector listening", "port", cfg.Port)
	return Serve(ctx, ch, cfg, logger)
}

// Serve echoes datagrams on an existing channel. Exposed separately so
// tests can drive a channel on an ephemeral port.
func Serve(ctx context.Context, ch *channel.Channel, cfg Config, logger *slog.Logger) error {
	cfg.applyDefaults()

	// One buffer per loop; the echo completes before the next receive
	// reuses it, so no copy is needed.
	buf := make([]byte, protocol.MaxProbeSize)
	consecutive := 0
	exhausted := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, addr, err := ch.Receive(buf, cfg.ReadTimeout)
		if err != nil {
			if errors.Is(err, channel.ErrTimeout) {
				continue
			}
			if errors.Is(err, channel.ErrClosed) {
				return nil
			}
			if fatal, ferr := countFailure(err, &consecutive, &exhausted, cfg.MaxConsecutiveErrors); fatal {
				return ferr
			}
			logger.Warn("receive failed", "error", err)
			continue
		}
		if err := ch.Send(buf[:n]); err != nil {
			if errors.Is(err, channel.ErrClosed) {
				return nil
			}
			// A single unreachable destination is not fatal.
			if fatal, ferr := countFailure(err, &consecutive, &exhausted, cfg.MaxConsecutiveErrors); fatal {
				return ferr
			}
			logger.Warn("echo failed", "peer", addr, "bytes", n, "error", err)
			continue
		}
		consecutive = 0
		exhausted = 0
	}
}

func countFailure(err error, consecutive, exhausted *int, budget int) (bool, error) {
	if channel.IsResourceExhaustion(err) {
		*exhausted++
		if *exhausted >= 3 {
			return true, fmt.Errorf("%w: %w", ErrResourceExhausted, err)
		}
		return false, nil
	}
	*exhausted = 0
	*consecutive++
	if *consecutive >= budget {
		return true, fmt.Errorf("reflector: %d consecutive failures, last: %w", *consecutive, err)
	}
	return false, nil
}
