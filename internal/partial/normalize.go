package partial

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// Normalize is the fixed-point text normalization named in section 3's
// TranslationCacheEntry key and section 4.H's dedup cache: lowercase,
// strip, collapse whitespace, strip specified punctuation.
func Normalize(text string) string {
	lower := strings.ToLower(strings.TrimSpace(text))

	var b strings.Builder
	lastWasSpace := false
	for _, r := range lower {
		if unicode.IsSpace(r) {
			if !lastWasSpace && b.Len() > 0 {
				b.WriteRune(' ')
			}
			lastWasSpace = true
			continue
		}
		if isStrippedPunct(r) {
			continue
		}
		b.WriteRune(r)
		lastWasSpace = false
	}
	return strings.TrimSpace(b.String())
}

func isStrippedPunct(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ';', ':', '"', '\'', '(', ')', '[', ']', '{', '}':
		return true
	default:
		return false
	}
}

// HashNormalized returns the stable, cross-machine sha256 hex digest of
// Normalize(text), per section 8's round-trip testable property.
func HashNormalized(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}

// CacheKey builds the content-addressed key of sections 3/4.J:
// "{source}:{target}:{sha256(normalize(text))}".
func CacheKey(source, target, text string) string {
	return source + ":" + target + ":" + HashNormalized(text)
}
