package wsapi

import (
	"testing"

	"github.com/kjlabs/polyglot-broadcast/internal/audio"
	"github.com/kjlabs/polyglot-broadcast/internal/wire"
)

func registerFakeConn(h *Hub, connID string) *outboundConn {
	oc := &outboundConn{
		audio: make(chan []byte, 8),
		json:  make(chan wire.Outbound, 8),
		done:  make(chan struct{}),
	}
	h.mu.Lock()
	h.conns[connID] = oc
	h.mu.Unlock()
	return oc
}

func newTestAnalyzers() *qualityAnalyzers {
	return &qualityAnalyzers{
		clipping: audio.NewClippingDetector(),
		snr:      audio.NewSNRCalculator(),
		echo:     audio.NewEchoDetector(),
		silence:  audio.NewSilenceState(),
	}
}

func TestEmitQualityWarningsFiresClippingWarning(t *testing.T) {
	hub := NewHub()
	registerFakeConn(hub, "c1")
	d := &Deps{Hub: hub}
	qa := newTestAnalyzers()

	samples := make([]float64, 100)
	for i := range samples {
		samples[i] = 0.99
	}

	d.emitQualityWarnings("c1", qa, samples, 16000, 1.0)

	select {
	case msg := <-hub.conns["c1"].json:
		if msg.Type != wire.TypeAudioQualityWarning {
			t.Fatalf("expected audioQualityWarning, got %s", msg.Type)
		}
		payload, ok := msg.Payload.(wire.AudioQualityWarningPayload)
		if !ok || payload.WarningType != "clipping" {
			t.Fatalf("expected clipping warning payload, got %+v", msg.Payload)
		}
	default:
		t.Fatal("expected a warning to be queued for clipping samples")
	}
}

func TestEmitQualityWarningsSilentForCleanSignal(t *testing.T) {
	hub := NewHub()
	registerFakeConn(hub, "c1")
	d := &Deps{Hub: hub}
	qa := newTestAnalyzers()

	samples := make([]float64, 100)
	for i := range samples {
		samples[i] = 0.3
	}

	d.emitQualityWarnings("c1", qa, samples, 16000, 1.0)

	select {
	case msg := <-hub.conns["c1"].json:
		t.Fatalf("expected no warning for a clean mid-level signal, got %+v", msg)
	default:
	}
}
