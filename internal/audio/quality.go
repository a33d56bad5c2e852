// Quality analyzers for component F: SNR, clipping, echo and silence,
// grounded on original_source/audio-transcription/audio_quality/analyzers/
// (clipping_detector.py, snr_calculator.py, echo_detector.py,
// silence_detector.py). These run parallel and best-effort -- per section
// 4.F they never gate the ingestion pipeline, only emit events.
package audio

import (
	"encoding/binary"
	"math"
)

// DecodePCM16LE decodes a little-endian PCM16 frame into normalized
// float64 samples in [-1, 1].
func DecodePCM16LE(data []byte) []float64 {
	n := len(data) / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
		out[i] = float64(s) / 32768.0
	}
	return out
}

func rms(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// ClippingResult is the outcome of one clipping-detector pass.
type ClippingResult struct {
	Percentage float64
	ClippedCount int
	IsClipping   bool
}

// ClippingDetector flags samples at or above thresholdPercent of full
// scale as clipped (default 98%, per the original Python implementation).
type ClippingDetector struct {
	ThresholdPercent float64
	AlertPercent     float64 // clipping % that triggers IsClipping (default 1.0)
}

func NewClippingDetector() *ClippingDetector {
	return &ClippingDetector{ThresholdPercent: 98.0, AlertPercent: 1.0}
}

func (d *ClippingDetector) Analyze(samples []float64) ClippingResult {
	if len(samples) == 0 {
		return ClippingResult{}
	}
	threshold := d.ThresholdPercent / 100.0
	clipped := 0
	for _, s := range samples {
		if math.Abs(s) >= threshold {
			clipped++
		}
	}
	pct := float64(clipped) / float64(len(samples)) * 100.0
	return ClippingResult{
		Percentage:   pct,
		ClippedCount: clipped,
		IsClipping:   pct > d.AlertPercent,
	}
}

// SNRCalculator estimates signal-to-noise ratio in dB: signal RMS over the
// whole chunk against a noise floor RMS estimated from low-energy samples
// (|s| < -40 dB, i.e. 0.01 normalized amplitude).
type SNRCalculator struct {
	NoiseThreshold float64
}

func NewSNRCalculator() *SNRCalculator {
	return &SNRCalculator{NoiseThreshold: 0.01}
}

func (c *SNRCalculator) CalculateDB(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	signal := rms(samples)

	var noise []float64
	for _, s := range samples {
		if math.Abs(s) < c.NoiseThreshold {
			noise = append(noise, s)
		}
	}
	noiseRMS := 1e-10
	if len(noise) > 0 {
		noiseRMS = rms(noise)
		if noiseRMS == 0 {
			noiseRMS = 1e-10
		}
	}

	if signal <= 0 {
		return -100.0
	}
	snrDB := 20 * math.Log10(signal/noiseRMS)
	return math.Min(snrDB, 100.0)
}

// EchoDetector searches for an autocorrelation peak in the 10-500ms lag
// range exceeding -15dB relative to the zero-lag energy, per section 4.F.
type EchoDetector struct {
	MinLagMs, MaxLagMs int
	ThresholdDB        float64
}

func NewEchoDetector() *EchoDetector {
	return &EchoDetector{MinLagMs: 10, MaxLagMs: 500, ThresholdDB: -15.0}
}

func (d *EchoDetector) HasEcho(samples []float64, sampleRateHz int) bool {
	if len(samples) < 2 {
		return false
	}
	zeroLagEnergy := energy(samples, 0)
	if zeroLagEnergy <= 0 {
		return false
	}

	minLag := d.MinLagMs * sampleRateHz / 1000
	maxLag := d.MaxLagMs * sampleRateHz / 1000
	if maxLag >= len(samples) {
		maxLag = len(samples) - 1
	}

	thresholdLinear := math.Pow(10, d.ThresholdDB/20.0)
	for lag := minLag; lag <= maxLag; lag++ {
		corr := autocorrelation(samples, lag)
		if corr/zeroLagEnergy >= thresholdLinear {
			return true
		}
	}
	return false
}

func energy(samples []float64, lag int) float64 {
	return autocorrelation(samples, lag)
}

func autocorrelation(samples []float64, lag int) float64 {
	var sum float64
	for i := 0; i+lag < len(samples); i++ {
		sum += samples[i] * samples[i+lag]
	}
	return sum
}

// SilenceState tracks the two-threshold hysteresis described in section
// 4.F: enter silence at -50dB, exit at -40dB, sustained 5s to fire.
type SilenceState struct {
	EnterDB        float64
	ExitDB         float64
	SustainSeconds float64

	inSilence   bool
	silenceSecs float64
}

func NewSilenceState() *SilenceState {
	return &SilenceState{EnterDB: -50.0, ExitDB: -40.0, SustainSeconds: 5.0}
}

// Update feeds one chunk's level (dBFS from RMS) and its duration; returns
// true exactly once when sustained silence crosses SustainSeconds.
func (s *SilenceState) Update(levelDB float64, chunkSeconds float64) (fired bool) {
	if !s.inSilence && levelDB <= s.EnterDB {
		s.inSilence = true
		s.silenceSecs = 0
	} else if s.inSilence && levelDB >= s.ExitDB {
		s.inSilence = false
		s.silenceSecs = 0
	}

	if s.inSilence {
		s.silenceSecs += chunkSeconds
		if s.silenceSecs >= s.SustainSeconds && s.silenceSecs-chunkSeconds < s.SustainSeconds {
			return true
		}
	}
	return false
}

func LevelDB(samples []float64) float64 {
	r := rms(samples)
	if r <= 0 {
		return -100.0
	}
	return 20 * math.Log10(r)
}
