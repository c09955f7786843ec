package prober

import (
	"math"
	"testing"
	"time"
)

func TestCollectorAccounting(t *testing.T) {
	w := newWindowCollector(10, 8)
	now := time.Now()
	for seq := uint32(10); seq < 15; seq++ {
		w.noteSent(seq, now)
	}

	if !w.noteEcho(12, now.Add(time.Millisecond)) {
		t.Fatal("echo for sent probe rejected")
	}
	if !w.noteEcho(10, now.Add(2*time.Millisecond)) {
		t.Fatal("out-of-order echo rejected")
	}

	sent, received := w.counts()
	if sent != 5 || received != 2 {
		t.Fatalf("counts = (%d, %d), want (5, 2)", sent, received)
	}
	if got := w.lossRatio(); math.Abs(got-0.6) > 1e-9 {
		t.Fatalf("loss ratio = %v, want 0.6", got)
	}
}

func TestCollectorRejectsDuplicates(t *testing.T) {
	w := newWindowCollector(0, 4)
	now := time.Now()
	w.noteSent(0, now)

	if !w.noteEcho(0, now.Add(time.Millisecond)) {
		t.Fatal("first echo rejected")
	}
	if w.noteEcho(0, now.Add(2*time.Millisecond)) {
		t.Fatal("duplicate echo double-counted")
	}
	if _, received := w.counts(); received != 1 {
		t.Fatalf("received = %d, want 1", received)
	}
}

func TestCollectorRejectsStaleSequences(t *testing.T) {
	w := newWindowCollector(100, 4)
	now := time.Now()
	w.noteSent(100, now)
	w.noteSent(101, now)

	// Sequence numbers from before or after the window must be discarded.
	if w.noteEcho(99, now) {
		t.Fatal("accepted echo older than the window")
	}
	if w.noteEcho(102, now) {
		t.Fatal("accepted echo beyond the window")
	}
}

func TestCollectorVoidsFailedSends(t *testing.T) {
	w := newWindowCollector(0, 4)
	now := time.Now()
	w.noteSent(0, now)
	w.noteSent(1, now)
	w.noteSendFailed(1)

	sent, _ := w.counts()
	if sent != 1 {
		t.Fatalf("sent = %d, want 1 after voided send", sent)
	}
	if w.noteEcho(1, now) {
		t.Fatal("accepted echo for a probe that was never transmitted")
	}
}

func TestCollectorSequenceWrap(t *testing.T) {
	base := uint32(math.MaxUint32 - 1)
	w := newWindowCollector(base, 4)
	now := time.Now()
	for i := uint32(0); i < 4; i++ {
		w.noteSent(base+i, now) // wraps through 0
	}

	if !w.noteEcho(0, now.Add(time.Millisecond)) {
		t.Fatal("echo for wrapped sequence rejected")
	}
	if !w.noteEcho(base, now.Add(time.Millisecond)) {
		t.Fatal("echo for base sequence rejected")
	}
	sent, received := w.counts()
	if sent != 4 || received != 2 {
		t.Fatalf("counts = (%d, %d), want (4, 2)", sent, received)
	}
}

func TestCollectorLossRatioBounds(t *testing.T) {
	w := newWindowCollector(0, 4)
	if got := w.lossRatio(); got != 1 {
		t.Fatalf("empty window loss ratio = %v, want 1 (total loss)", got)
	}

	now := time.Now()
	w.noteSent(0, now)
	w.noteEcho(0, now.Add(time.Millisecond))
	if got := w.lossRatio(); got != 0 {
		t.Fatalf("fully echoed window loss ratio = %v, want 0", got)
	}
}
