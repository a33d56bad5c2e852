package partial

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjlabs/polyglot-broadcast/internal/asr"
)

func newTestHandler() *Handler {
	gate := NewFeatureGate(StaticFlagSource{Config: FlagConfig{
		Enabled: true, RolloutPercentage: 100, MinStabilityThreshold: 0.85, MaxBufferTimeout: 50 * time.Millisecond,
	}})
	dedup := NewDedupCache(time.Minute, 1000)
	return NewHandler("session-1", gate, dedup, 200*time.Millisecond, 0.20, zap.NewNop())
}

func TestHandlePartialForwardsOnStabilityAndBoundary(t *testing.T) {
	h := newTestHandler()
	h.HandlePartial(asr.Result{
		ResultID:       "r1",
		Text:           "hello there.",
		StabilityScore: 0.9,
		Timestamp:      time.Now(),
	})

	select {
	case f := <-h.Forwarded():
		if f.Text != "hello there." || f.IsFinal {
			t.Fatalf("unexpected forwarded result: %+v", f)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a forwarded partial, none arrived")
	}
}

func TestHandlePartialWithholdsBelowStabilityThreshold(t *testing.T) {
	h := newTestHandler()
	h.HandlePartial(asr.Result{
		ResultID:       "r1",
		Text:           "hello there.",
		StabilityScore: 0.1,
		Timestamp:      time.Now(),
	})

	select {
	case f := <-h.Forwarded():
		t.Fatalf("expected no forward below stability threshold, got %+v", f)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandlePartialForwardsOnBufferTimeoutWithoutBoundary(t *testing.T) {
	h := newTestHandler()
	h.HandlePartial(asr.Result{
		ResultID:       "r1",
		Text:           "hello there without punctuation",
		StabilityScore: 0.9,
		Timestamp:      time.Now(),
	})

	select {
	case <-h.Forwarded():
		t.Fatal("expected no forward before buffer timeout elapses")
	case <-time.After(10 * time.Millisecond):
	}

	// Feed another partial after the timeout window to trigger the walk.
	time.Sleep(60 * time.Millisecond)
	h.HandlePartial(asr.Result{
		ResultID:       "r2",
		Text:           "second partial.",
		StabilityScore: 0.9,
		Timestamp:      time.Now(),
	})

	seenIDs := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case f := <-h.Forwarded():
			seenIDs[f.ResultID] = true
		case <-time.After(time.Second):
			t.Fatalf("expected 2 forwards, only saw %d", len(seenIDs))
		}
	}
	if !seenIDs["r1"] || !seenIDs["r2"] {
		t.Fatalf("expected both r1 and r2 forwarded, got %v", seenIDs)
	}
}

func TestHandleFinalForwardsAndDropsReplacedPartials(t *testing.T) {
	h := newTestHandler()
	h.HandleFinal(asr.Result{
		ResultID: "final-1",
		Text:     "this is the final text.",
		IsFinal:  true,
	})

	select {
	case f := <-h.Forwarded():
		if !f.IsFinal || f.Text != "this is the final text." {
			t.Fatalf("unexpected final forward: %+v", f)
		}
	case <-time.After(time.Second):
		t.Fatal("expected final to be forwarded")
	}
}

func TestHandleFinalDedupsIdenticalText(t *testing.T) {
	h := newTestHandler()
	h.HandleFinal(asr.Result{ResultID: "f1", Text: "same text.", IsFinal: true})
	<-h.Forwarded()

	h.HandleFinal(asr.Result{ResultID: "f2", Text: "same text.", IsFinal: true})
	select {
	case f := <-h.Forwarded():
		t.Fatalf("expected duplicate final to be suppressed, got %+v", f)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSweepOrphansDropsStaleEntries(t *testing.T) {
	gate := NewFeatureGate(StaticFlagSource{Config: FlagConfig{
		Enabled: true, RolloutPercentage: 100, MinStabilityThreshold: 0.99, MaxBufferTimeout: time.Hour,
	}})
	dedup := NewDedupCache(time.Minute, 1000)
	h := NewHandler("session-1", gate, dedup, 10*time.Millisecond, 0.20, zap.NewNop())

	h.HandlePartial(asr.Result{
		ResultID:       "stale",
		Text:           "never stabilizes",
		StabilityScore: 0.1,
		Timestamp:      time.Now(),
	})
	time.Sleep(20 * time.Millisecond)

	dropped := h.SweepOrphans()
	if dropped != 1 {
		t.Fatalf("expected 1 dropped orphan, got %d", dropped)
	}
}
