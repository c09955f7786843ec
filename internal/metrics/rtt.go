// Package metrics holds round-trip-time estimation and summary
// statistics for a measurement run.
package metrics

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Summary describes the distribution of RTT samples from one run.
type Summary struct {
	Mean    time.Duration
	Min     time.Duration
	Max     time.Duration
	StdDev  time.Duration
	P50     time.Duration
	P90     time.Duration
	Samples int
}

// Summarize computes distribution statistics over RTT samples.
func Summarize(samples []time.Duration) Summary {
	if len(samples) == 0 {
		return Summary{}
	}
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = float64(s)
	}
	sort.Float64s(values)

	summary := Summary{
		Mean:    time.Duration(stat.Mean(values, nil)),
		Min:     time.Duration(values[0]),
		Max:     time.Duration(values[len(values)-1]),
		P50:     time.Duration(stat.Quantile(0.50, stat.Empirical, values, nil)),
		P90:     time.Duration(stat.Quantile(0.90, stat.Empirical, values, nil)),
		Samples: len(samples),
	}
	if len(values) > 1 {
		summary.StdDev = time.Duration(stat.StdDev(values, nil))
	}
	return summary
}

// Estimator keeps an exponentially weighted RTT estimate, used to size
// the per-window drain timeout.
type Estimator struct {
	mu  sync.Mutex
	est time.Duration
}

// ewmaAlpha matches the classic srtt gain of 1/8.
const ewmaAlpha = 0.125

// Observe folds one RTT sample into the estimate.
func (e *Estimator) Observe(rtt time.Duration) {
	if rtt <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.est == 0 {
		e.est = rtt
		return
	}
	e.est = time.Duration((1-ewmaAlpha)*float64(e.est) + ewmaAlpha*float64(rtt))
}

// Estimate returns the current estimate, or 0 when no sample was seen.
func (e *Estimator) Estimate() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.est
}
