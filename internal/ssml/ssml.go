// Package ssml implements component K: maps EmotionDynamics onto
// <prosody rate=.. volume=..> and emotion-driven breaks, XML-escaping all
// input text.
package ssml

import (
	"fmt"
	"strings"

	"github.com/kjlabs/polyglot-broadcast/internal/audio"
)

type Rate string

const (
	RateXSlow Rate = "x-slow"
	RateSlow  Rate = "slow"
	RateMedium Rate = "medium"
	RateFast  Rate = "fast"
	RateXFast Rate = "x-fast"
)

var rateOrder = []Rate{RateXSlow, RateSlow, RateMedium, RateFast, RateXFast}

// classifyRate buckets rateWpm into one of five fixed bands per section
// 4.K. Thresholds center "medium" on a natural ~150wpm conversational
// pace.
func classifyRate(wpm int) Rate {
	switch {
	case wpm < 100:
		return RateXSlow
	case wpm < 135:
		return RateSlow
	case wpm < 170:
		return RateMedium
	case wpm < 205:
		return RateFast
	default:
		return RateXFast
	}
}

func stepSlower(r Rate) Rate { return step(r, -1) }
func stepFaster(r Rate) Rate { return step(r, 1) }

func step(r Rate, delta int) Rate {
	idx := 0
	for i, v := range rateOrder {
		if v == r {
			idx = i
			break
		}
	}
	idx += delta
	if idx < 0 {
		idx = 0
	}
	if idx >= len(rateOrder) {
		idx = len(rateOrder) - 1
	}
	return rateOrder[idx]
}

func classifyVolume(v audio.VolumeLevel) string {
	switch v {
	case audio.VolumeXLoud:
		return "x-loud"
	case audio.VolumeLoud:
		return "loud"
	case audio.VolumeSoft:
		return "soft"
	default:
		return "medium"
	}
}

// Generate builds the SSML document for one language's synthesized
// segment, applying the emotion-driven adjustments of section 4.K: sad
// inserts a 300ms break at clause boundaries and biases rate one step
// slower; excited biases one step faster; neutral passes through.
func Generate(text string, dyn audio.EmotionDynamics) string {
	rate := classifyRate(dyn.RateWpm)
	volume := classifyVolume(dyn.VolumeLevel)

	body := escapeXML(text)
	switch dyn.Emotion {
	case audio.EmotionSad:
		rate = stepSlower(rate)
		body = insertClauseBreaks(body, `<break time="300ms"/>`)
	case audio.EmotionExcited:
		rate = stepFaster(rate)
	}

	return fmt.Sprintf(`<speak><prosody rate="%s" volume="%s">%s</prosody></speak>`, rate, volume, body)
}

// insertClauseBreaks inserts breakTag after clause-separating commas and
// semicolons, a simple proxy for "at clause boundaries".
func insertClauseBreaks(escaped string, breakTag string) string {
	var b strings.Builder
	for _, r := range escaped {
		b.WriteRune(r)
		if r == ',' || r == ';' {
			b.WriteString(breakTag)
		}
	}
	return b.String()
}

// escapeXML escapes the five XML-significant characters named in section
// 4.K: & < > " '.
func escapeXML(text string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return replacer.Replace(text)
}
