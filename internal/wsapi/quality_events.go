package wsapi

import (
	"fmt"
	"time"

	"github.com/kjlabs/polyglot-broadcast/internal/audio"
	"github.com/kjlabs/polyglot-broadcast/internal/wire"
)

// qualityAnalyzers holds one connection's stateful audio-quality detectors
// (component F): clipping and SNR are stateless per-chunk, echo is
// per-chunk autocorrelation, silence carries hysteresis state across
// chunks.
type qualityAnalyzers struct {
	clipping *audio.ClippingDetector
	snr      *audio.SNRCalculator
	echo     *audio.EchoDetector
	silence  *audio.SilenceState
}

// emitQualityWarnings runs every analyzer over one chunk and pushes an
// audioQualityWarning message for whichever conditions fire. Analyzers
// never gate ingestion (section 4.F): a warning is advisory only.
func (d *Deps) emitQualityWarnings(connID string, qa *qualityAnalyzers, samples []float64, sampleRateHz int, chunkSeconds float64) {
	if clip := qa.clipping.Analyze(samples); clip.IsClipping {
		d.Hub.SendJSON(connID, warningMessage("clipping", "warning",
			fmt.Sprintf("%.1f%% of samples are clipped", clip.Percentage),
			"reduce microphone gain"))
	}

	if snrDB := qa.snr.CalculateDB(samples); snrDB < 10 {
		d.Hub.SendJSON(connID, warningMessage("low_snr", "warning",
			fmt.Sprintf("signal-to-noise ratio is %.1fdB", snrDB),
			"move to a quieter environment or use a headset microphone"))
	}

	if qa.echo.HasEcho(samples, sampleRateHz) {
		d.Hub.SendJSON(connID, warningMessage("echo", "info",
			"echo detected in the input signal",
			"use headphones to prevent audio feedback"))
	}

	if qa.silence.Update(audio.LevelDB(samples), chunkSeconds) {
		d.Hub.SendJSON(connID, warningMessage("silence", "info",
			"no speech detected for an extended period",
			"check that the microphone is active"))
	}
}

func warningMessage(warningType, severity, message, recommendation string) wire.Outbound {
	return wire.Outbound{
		Type:      wire.TypeAudioQualityWarning,
		Timestamp: time.Now().UnixMilli(),
		Payload: wire.AudioQualityWarningPayload{
			WarningType:    warningType,
			Severity:       severity,
			Message:        message,
			Recommendation: recommendation,
		},
	}
}
