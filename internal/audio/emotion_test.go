package audio

import "testing"

func TestWpmFromOnsetRateClampsRange(t *testing.T) {
	if got := wpmFromOnsetRate(0); got != 60 {
		t.Fatalf("expected floor of 60, got %d", got)
	}
	if got := wpmFromOnsetRate(100); got != 240 {
		t.Fatalf("expected ceiling of 240, got %d", got)
	}
}

func TestEstimatorFirstChunkEstablishesBaseline(t *testing.T) {
	e := NewEstimator()
	samples := make([]float64, 100)
	for i := range samples {
		samples[i] = 0.1
	}
	dyn := e.Estimate(samples, 5.0)
	if dyn.RateWpm < 60 || dyn.RateWpm > 240 {
		t.Fatalf("expected rate within data-model range, got %d", dyn.RateWpm)
	}
}

func TestEstimatorDetectsExcitedOnLoudFastSpeech(t *testing.T) {
	e := NewEstimator()
	quiet := make([]float64, 100)
	for i := range quiet {
		quiet[i] = 0.05
	}
	// establish a quiet baseline first.
	e.Estimate(quiet, 3.0)
	e.Estimate(quiet, 3.0)

	loud := make([]float64, 100)
	for i := range loud {
		loud[i] = 0.5
	}
	dyn := e.Estimate(loud, 6.0)
	if dyn.Emotion != EmotionExcited {
		t.Fatalf("expected excited classification for loud+fast speech after quiet baseline, got %v", dyn.Emotion)
	}
}

func TestClassifyVolumeBands(t *testing.T) {
	cases := []struct {
		db   float64
		want VolumeLevel
	}{
		{-5, VolumeXLoud}, {-15, VolumeLoud}, {-30, VolumeNormal}, {-60, VolumeSoft},
	}
	for _, c := range cases {
		if got := classifyVolume(c.db); got != c.want {
			t.Errorf("db=%f: expected %v, got %v", c.db, c.want, got)
		}
	}
}
