package prober

import (
	"context"
	"testing"
	"time"
)

func farDeadline() time.Time { return time.Now().Add(time.Hour) }

// scripted builds a windowFunc whose loss depends only on the rate.
func scripted(lossAt func(rate float64) float64) windowFunc {
	return func(_ context.Context, rate float64) (WindowSummary, error) {
		loss := lossAt(rate)
		sent := 100
		lost := int(loss * float64(sent))
		return WindowSummary{
			Rate:      rate,
			Sent:      sent,
			Received:  sent - lost,
			Lost:      lost,
			LossRatio: loss,
		}, nil
	}
}

func TestSearchBisectionInvariants(t *testing.T) {
	const ceiling = 1000.0
	low, high := 0.0, ceiling
	run := func(ctx context.Context, rate float64) (WindowSummary, error) {
		// Every candidate must bisect the current interval exactly.
		if want := (low + high) / 2; rate != want {
			t.Fatalf("candidate = %v, want midpoint %v of [%v, %v]", rate, want, low, high)
		}
		summary, _ := scripted(func(r float64) float64 {
			if r <= 400 {
				return 0
			}
			return 0.3
		})(ctx, rate)
		// Mirror the expected bound movement.
		if summary.LossRatio <= 0.01 {
			if rate < low {
				t.Fatalf("low decreased: %v -> %v", low, rate)
			}
			low = rate
		} else {
			if rate > high {
				t.Fatalf("high increased: %v -> %v", high, rate)
			}
			high = rate
		}
		return summary, nil
	}

	outcome, err := search(context.Background(), farDeadline(), ceiling, 0.001, 0.01, run)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !outcome.conclusive {
		t.Fatal("expected a conclusive outcome")
	}
	// The sustainable boundary is 400; resolution is 1 (0.001 * 1000).
	if outcome.low < 395 || outcome.low > 400 {
		t.Fatalf("converged to %v, want within resolution below 400", outcome.low)
	}
}

func TestSearchConvergesToCeilingWhenLossless(t *testing.T) {
	const ceiling = 1000.0
	outcome, err := search(context.Background(), farDeadline(), ceiling, 0.01, 0.01,
		scripted(func(float64) float64 { return 0 }))
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !outcome.conclusive {
		t.Fatal("expected a conclusive outcome")
	}
	if outcome.low < ceiling*0.98 {
		t.Fatalf("converged to %v, want within 1%% of ceiling %v", outcome.low, ceiling)
	}
	if outcome.low > ceiling {
		t.Fatalf("estimate %v exceeds ceiling %v", outcome.low, ceiling)
	}
}

func TestSearchInconclusiveWhenAllRatesFail(t *testing.T) {
	outcome, err := search(context.Background(), farDeadline(), 1000, 0.01, 0.01,
		scripted(func(float64) float64 { return 0.5 }))
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if outcome.conclusive {
		t.Fatal("expected inconclusive outcome")
	}
	if outcome.low != 0 {
		t.Fatalf("low = %v, want 0", outcome.low)
	}
	if outcome.lossRatio != 0.5 {
		t.Fatalf("observed loss = %v, want 0.5", outcome.lossRatio)
	}
}

func TestSearchTotalLossIsNotFatal(t *testing.T) {
	// Total loss at high rates must fail the candidate and keep the
	// search going, not abort it.
	outcome, err := search(context.Background(), farDeadline(), 1000, 0.01, 0.01,
		scripted(func(rate float64) float64 {
			if rate > 100 {
				return 1
			}
			return 0
		}))
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !outcome.conclusive {
		t.Fatal("expected a conclusive outcome below the total-loss region")
	}
	if outcome.low <= 0 || outcome.low > 100 {
		t.Fatalf("converged to %v, want in (0, 100]", outcome.low)
	}
}

func TestSearchStopsOnExhaustedBudget(t *testing.T) {
	calls := 0
	outcome, err := search(context.Background(), time.Now().Add(-time.Second), 1000, 0.01, 0.01,
		func(ctx context.Context, rate float64) (WindowSummary, error) {
			calls++
			return WindowSummary{Rate: rate}, nil
		})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if calls != 0 {
		t.Fatalf("ran %d windows past the deadline", calls)
	}
	if outcome.conclusive {
		t.Fatal("zero-window run must be inconclusive")
	}
}

func TestSearchStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := search(ctx, farDeadline(), 1000, 0.0001, 0.01,
		func(ctx context.Context, rate float64) (WindowSummary, error) {
			calls++
			if calls == 2 {
				cancel()
			}
			return WindowSummary{Rate: rate, LossRatio: 0}, nil
		})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if calls != 2 {
		t.Fatalf("ran %d windows, want 2 (stop after cancel)", calls)
	}
}
