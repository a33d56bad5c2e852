package session

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// Word lists grounded on original_source/session-management/lambda/
// refresh_handler's Bible/Christian-themed session_id_generator.py
// (adjectives.txt / nouns.txt / blacklist.txt). Kept small and curated here
// rather than loaded from disk, since this service has no Lambda cold-start
// reuse concern to optimize for.
var adjectives = []string{
	"faithful", "steadfast", "humble", "radiant", "gentle", "golden",
	"tranquil", "valiant", "earnest", "blessed", "serene", "joyful",
	"patient", "devoted", "graceful", "hopeful", "kindly", "mighty",
	"noble", "peaceful", "quiet", "resolute", "sincere", "trusting",
	"upright", "wise", "zealous", "ancient", "bright", "calm",
}

var nouns = []string{
	"shepherd", "disciple", "harbor", "vineyard", "psalm", "dove",
	"covenant", "pilgrim", "lantern", "olive", "cedar", "river",
	"sparrow", "meadow", "chapel", "anchor", "beacon", "garden",
	"harvest", "journey", "refuge", "sanctuary", "summit", "valley",
	"fountain", "horizon", "lighthouse", "orchard", "pasture", "tabernacle",
}

var blacklist = map[string]struct{}{
	"damn": {}, "curse": {}, "hell": {},
}

var sessionIDPattern = regexp.MustCompile(`^[a-z]+-[a-z]+-\d{3}$`)

// maxGeneratorAttempts is N1 from section 4.B: attempts inside a single
// Generate call before giving up and letting the caller retry with backoff.
const maxGeneratorAttempts = 10

// Generator produces human-readable session IDs of the form
// "{adjective}-{noun}-{NNN}", NNN in [100,999], rejecting any candidate
// that contains a blacklisted word.
type Generator struct {
	maxAttempts int
}

func NewGenerator(maxAttempts int) *Generator {
	if maxAttempts <= 0 {
		maxAttempts = maxGeneratorAttempts
	}
	return &Generator{maxAttempts: maxAttempts}
}

// Generate draws candidates until uniquenessCheck accepts one or
// maxAttempts is exhausted. uniquenessCheck should probe the store (Get)
// and return true when the id is free.
func (g *Generator) Generate(uniquenessCheck func(candidate string) (bool, error)) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		adj, err := pick(adjectives)
		if err != nil {
			return "", err
		}
		noun, err := pick(nouns)
		if err != nil {
			return "", err
		}
		if _, bad := blacklist[adj]; bad {
			continue
		}
		if _, bad := blacklist[noun]; bad {
			continue
		}
		n, err := randInt(100, 999)
		if err != nil {
			return "", err
		}
		candidate := fmt.Sprintf("%s-%s-%d", adj, noun, n)

		if uniquenessCheck == nil {
			return candidate, nil
		}
		free, err := uniquenessCheck(candidate)
		if err != nil {
			return "", err
		}
		if free {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("session id generator exhausted after %d attempts", g.maxAttempts)
}

// ValidateFormat checks the testable-property regex of section 8 plus the
// numeric range and blacklist rule.
func ValidateFormat(id string) bool {
	if !sessionIDPattern.MatchString(id) {
		return false
	}
	parts := strings.Split(id, "-")
	if len(parts) != 3 {
		return false
	}
	if _, bad := blacklist[parts[0]]; bad {
		return false
	}
	if _, bad := blacklist[parts[1]]; bad {
		return false
	}
	if parts[2][0] == '0' {
		return false
	}
	return true
}

func pick(words []string) (string, error) {
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(words))))
	if err != nil {
		return "", err
	}
	return words[idx.Int64()], nil
}

func randInt(lo, hi int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(hi-lo+1)))
	if err != nil {
		return 0, err
	}
	return lo + int(n.Int64()), nil
}
