package ssml

import (
	"strings"
	"testing"

	"github.com/kjlabs/polyglot-broadcast/internal/audio"
)

func TestGenerateEscapesXML(t *testing.T) {
	out := Generate(`<hello> & "world" 'quote'`, audio.EmotionDynamics{
		Emotion: audio.EmotionNeutral, RateWpm: 150, VolumeLevel: audio.VolumeNormal,
	})
	if strings.Contains(out, "<hello>") {
		t.Fatalf("expected raw angle brackets to be escaped, got %s", out)
	}
	if !strings.Contains(out, "&lt;hello&gt;") || !strings.Contains(out, "&amp;") {
		t.Fatalf("expected escaped entities, got %s", out)
	}
}

func TestGenerateNeutralProducesMediumRate(t *testing.T) {
	out := Generate("hello", audio.EmotionDynamics{
		Emotion: audio.EmotionNeutral, RateWpm: 150, VolumeLevel: audio.VolumeNormal,
	})
	if !strings.Contains(out, `rate="medium"`) {
		t.Fatalf("expected medium rate for 150wpm neutral speech, got %s", out)
	}
}

func TestGenerateSadInsertsBreaksAndSlowsRate(t *testing.T) {
	out := Generate("sad, words", audio.EmotionDynamics{
		Emotion: audio.EmotionSad, RateWpm: 150, VolumeLevel: audio.VolumeNormal,
	})
	if !strings.Contains(out, `<break time="300ms"/>`) {
		t.Fatalf("expected a clause break for sad emotion, got %s", out)
	}
	if !strings.Contains(out, `rate="slow"`) {
		t.Fatalf("expected rate stepped one notch slower than medium, got %s", out)
	}
}

func TestGenerateExcitedSpeedsUpRate(t *testing.T) {
	out := Generate("hello", audio.EmotionDynamics{
		Emotion: audio.EmotionExcited, RateWpm: 150, VolumeLevel: audio.VolumeNormal,
	})
	if !strings.Contains(out, `rate="fast"`) {
		t.Fatalf("expected rate stepped one notch faster than medium, got %s", out)
	}
}

func TestGenerateVolumeClassification(t *testing.T) {
	out := Generate("hello", audio.EmotionDynamics{
		Emotion: audio.EmotionNeutral, RateWpm: 150, VolumeLevel: audio.VolumeXLoud,
	})
	if !strings.Contains(out, `volume="x-loud"`) {
		t.Fatalf("expected x-loud volume, got %s", out)
	}
}

func TestGenerateRateBandBoundaries(t *testing.T) {
	cases := []struct {
		wpm  int
		want string
	}{
		{80, "x-slow"}, {120, "slow"}, {150, "medium"}, {190, "fast"}, {220, "x-fast"},
	}
	for _, c := range cases {
		out := Generate("hi", audio.EmotionDynamics{Emotion: audio.EmotionNeutral, RateWpm: c.wpm, VolumeLevel: audio.VolumeNormal})
		if !strings.Contains(out, `rate="`+c.want+`"`) {
			t.Errorf("wpm=%d: expected rate %s, got %s", c.wpm, c.want, out)
		}
	}
}
