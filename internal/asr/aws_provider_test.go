package asr

import "testing"

// OpenStream's happy path drives a real transcribestreaming.Client over the
// network, so it isn't exercised here; this covers the pure language-code
// validation that runs before any network call.

func TestOpenStreamRejectsUnsupportedLanguage(t *testing.T) {
	p := NewAWSProvider(nil, 16000)
	_, err := p.OpenStream(nil, "xx-unsupported", StabilityHigh)
	if err == nil {
		t.Fatal("expected an error for an unsupported source language")
	}
}

func TestTranscribeLangCodesCoversPlatformLanguages(t *testing.T) {
	for _, lang := range []string{"en", "ko", "ja", "es", "fr", "de", "zh"} {
		if _, ok := transcribeLangCodes[lang]; !ok {
			t.Fatalf("expected a Transcribe locale mapping for %q", lang)
		}
	}
}
