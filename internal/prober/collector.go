package prober

import (
	"sync"
	"time"
)

// windowCollector is the shared, append-only result store for one
// measurement window. The send loop registers probes as they go out;
// the receive loop matches echoes by sequence number. Sequence numbers
// are never reused across windows, so an echo from a closed window can
// never land here: contains rejects it.
type windowCollector struct {
	mu     sync.Mutex
	base   uint32      // first sequence number of the window
	sentAt []time.Time // index = seq - base; zero time = send failed
	rtts   map[uint32]time.Duration
}

func newWindowCollector(base uint32, capacity int) *windowCollector {
	if capacity < 1 {
		capacity = 1
	}
	return &windowCollector{
		base:   base,
		sentAt: make([]time.Time, 0, capacity),
		rtts:   make(map[uint32]time.Duration, capacity),
	}
}

// noteSent registers an outgoing probe. Probes must be registered in
// sequence order starting at base.
func (w *windowCollector) noteSent(seq uint32, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if seq-w.base != uint32(len(w.sentAt)) { // wrap-safe
		return
	}
	w.sentAt = append(w.sentAt, at)
}

// noteSendFailed voids a registered probe whose transmit failed, so it
// counts as neither sent nor lost.
func (w *windowCollector) noteSendFailed(seq uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := seq - w.base
	if idx < uint32(len(w.sentAt)) {
		w.sentAt[idx] = time.Time{}
	}
}

// noteEcho records one returned probe. It reports false for stale
// sequence numbers (not in this window), voided sends, and duplicates,
// so a result is never double-counted.
func (w *windowCollector) noteEcho(seq uint32, at time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := seq - w.base
	if idx >= uint32(len(w.sentAt)) {
		return false
	}
	sent := w.sentAt[idx]
	if sent.IsZero() {
		return false
	}
	if _, dup := w.rtts[seq]; dup {
		return false
	}
	rtt := at.Sub(sent)
	if rtt < 0 {
		rtt = 0
	}
	w.rtts[seq] = rtt
	return true
}

// counts returns probes actually sent and echoes received.
func (w *windowCollector) counts() (sent, received int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, at := range w.sentAt {
		if !at.IsZero() {
			sent++
		}
	}
	return sent, len(w.rtts)
}

// lossRatio is lost/sent, in [0,1]. A window with nothing sent counts
// as total loss so the candidate rate fails rather than passes vacuously.
func (w *windowCollector) lossRatio() float64 {
	sent, received := w.counts()
	if sent == 0 {
		return 1
	}
	ratio := float64(sent-received) / float64(sent)
	if ratio < 0 {
		ratio = 0
	}
	return ratio
}

// rttSamples copies out the collected round-trip times.
func (w *windowCollector) rttSamples() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	samples := make([]time.Duration, 0, len(w.rtts))
	for _, rtt := range w.rtts {
		samples = append(samples, rtt)
	}
	return samples
}
