package prober

import (
	"context"
	"math"
	"time"
)

// windowFunc runs one measurement window at the candidate probe rate.
// The search loop is factored over it so the convergence logic can be
// exercised without a network.
type windowFunc func(ctx context.Context, rate float64) (WindowSummary, error)

type searchOutcome struct {
	// low is the highest rate (probes/sec) that stayed under the loss
	// threshold; 0 when every candidate failed.
	low        float64
	windows    []WindowSummary
	conclusive bool
	// lossRatio is the loss of the last sustainable window, or of the
	// lowest failing candidate when the search never found a floor.
	lossRatio float64
}

// search performs binary-search rate convergence between 0 and ceiling
// probes/sec. low only increases and high only decreases; the loop ends
// on budget exhaustion, convergence below resolution, or cancellation.
func search(ctx context.Context, deadline time.Time, ceiling, resolution, threshold float64, run windowFunc) (searchOutcome, error) {
	low, high := 0.0, ceiling
	minGap := ceiling * resolution
	if minGap <= 0 {
		minGap = 1
	}

	out := searchOutcome{}
	floorRate := math.MaxFloat64
	floorLoss := 0.0
	lowLoss := 0.0

	for time.Now().Before(deadline) && high-low > minGap {
		if ctx.Err() != nil {
			break
		}
		candidate := (low + high) / 2
		summary, err := run(ctx, candidate)
		if err != nil {
			return out, err
		}
		// An undersampled window (budget ran out mid-window) carries
		// too little evidence to raise the floor.
		if summary.LossRatio <= threshold && summary.Sent >= minWindowProbes {
			summary.Sustainable = true
			low = candidate
			lowLoss = summary.LossRatio
		} else {
			high = candidate
			// Report the loss seen at the lowest adequately
			// sampled failing rate when nothing ever passes.
			if summary.Sent >= minWindowProbes && candidate < floorRate {
				floorRate = candidate
				floorLoss = summary.LossRatio
			}
		}
		out.windows = append(out.windows, summary)
	}

	out.low = low
	if low > 0 {
		out.conclusive = true
		out.lossRatio = lowLoss
	} else {
		out.lossRatio = floorLoss
	}
	return out, nil
}
