package partial

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjlabs/polyglot-broadcast/internal/asr"
)

// BufferedResult is the section-3 data model entry held in a per-session
// ordered sequence.
type BufferedResult struct {
	ResultID       string
	Text           string
	StabilityScore float64
	Timestamp      time.Time
	AddedAt        time.Time
	Forwarded      bool
}

// sentenceTerminators are the terminal punctuation/pause markers gate 3
// checks for (section 4.H).
var sentenceTerminators = []string{".", "!", "?", "…"}

func endsAtSentenceBoundary(text string) bool {
	trimmed := strings.TrimSpace(text)
	for _, t := range sentenceTerminators {
		if strings.HasSuffix(trimmed, t) {
			return true
		}
	}
	return false
}

// Forwarded is what the handler emits downstream to the fan-out
// orchestrator (component I): a transcript segment ready for translation.
type Forwarded struct {
	ResultID  string
	Text      string
	IsFinal   bool
}

// Handler implements section 4.H end to end for one session: the four
// forwarding gates, the buffered-result sequence, final-replaces-partial
// reconciliation with Levenshtein discrepancy logging, and orphan sweep.
type Handler struct {
	sessionID string
	gate      *FeatureGate
	dedup     *DedupCache
	orphanTimeout time.Duration
	discrepancyWarnPct float64
	log       *zap.Logger

	mu      sync.Mutex
	entries []*BufferedResult

	out chan Forwarded
}

func NewHandler(sessionID string, gate *FeatureGate, dedup *DedupCache, orphanTimeout time.Duration, discrepancyWarnPct float64, log *zap.Logger) *Handler {
	return &Handler{
		sessionID:          sessionID,
		gate:               gate,
		dedup:              dedup,
		orphanTimeout:      orphanTimeout,
		discrepancyWarnPct: discrepancyWarnPct,
		log:                log,
		out:                make(chan Forwarded, 64),
	}
}

func (h *Handler) Forwarded() <-chan Forwarded { return h.out }

// HandlePartial implements gates 1-4 and the buffer-walk of section 4.H.
func (h *Handler) HandlePartial(r asr.Result) {
	enabled, cfg := h.gate.IsEnabledForSession(h.sessionID)
	if !enabled {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	entry := &BufferedResult{
		ResultID:       r.ResultID,
		Text:           r.Text,
		StabilityScore: r.StabilityScore,
		Timestamp:      r.Timestamp,
		AddedAt:        now,
	}
	h.entries = append(h.entries, entry)

	h.walkAndForwardLocked(now, cfg)
}

// walkAndForwardLocked forwards any newly-qualifying entry: gate 2
// (stability) AND gate 3 (sentence boundary or buffer timeout), then gate 4
// (dedup). Caller holds h.mu.
func (h *Handler) walkAndForwardLocked(now time.Time, cfg FlagConfig) {
	for _, e := range h.entries {
		if e.Forwarded {
			continue
		}
		stable := e.StabilityScore >= cfg.MinStabilityThreshold
		boundary := endsAtSentenceBoundary(e.Text) || now.Sub(e.AddedAt) >= cfg.MaxBufferTimeout
		if !stable || !boundary {
			continue
		}

		normHash := HashNormalized(e.Text)
		if h.dedup.Seen(normHash) {
			continue
		}
		e.Forwarded = true
		select {
		case h.out <- Forwarded{ResultID: e.ResultID, Text: e.Text, IsFinal: false}:
		default:
			if h.log != nil {
				h.log.Warn("⚠️ dropped forwarded partial, downstream full", zap.String("sessionId", h.sessionID))
			}
		}
	}
}

// HandleFinal implements the final-result reconciliation of section 4.H:
// remove corresponding partials (by ReplacesResultIDs, else a 5s window),
// log discrepancy on forwarded partials, then forward the final unless its
// normalized text is already in the dedup cache.
func (h *Handler) HandleFinal(r asr.Result) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var removed []*BufferedResult
	var kept []*BufferedResult

	if len(r.ReplacesResultIDs) > 0 {
		replaces := make(map[string]struct{}, len(r.ReplacesResultIDs))
		for _, id := range r.ReplacesResultIDs {
			replaces[id] = struct{}{}
		}
		for _, e := range h.entries {
			if _, match := replaces[e.ResultID]; match {
				removed = append(removed, e)
			} else {
				kept = append(kept, e)
			}
		}
	} else {
		windowStart := r.Timestamp.Add(-5 * time.Second)
		for _, e := range h.entries {
			if !e.Timestamp.Before(windowStart) && !e.Timestamp.After(r.Timestamp) {
				removed = append(removed, e)
			} else {
				kept = append(kept, e)
			}
		}
	}
	h.entries = kept

	for _, e := range removed {
		if !e.Forwarded {
			continue
		}
		dist := levenshtein(Normalize(e.Text), Normalize(r.Text))
		maxLen := max(len(e.Text), len(r.Text))
		if maxLen == 0 {
			continue
		}
		discrepancy := float64(dist) / float64(maxLen)
		if discrepancy >= h.discrepancyWarnPct && h.log != nil {
			h.log.Warn("⚠️ partial/final discrepancy exceeds threshold",
				zap.String("sessionId", h.sessionID),
				zap.Float64("discrepancy", discrepancy),
				zap.String("partial", e.Text),
				zap.String("final", r.Text))
		}
	}

	normHash := HashNormalized(r.Text)
	if h.dedup.Seen(normHash) {
		return
	}
	select {
	case h.out <- Forwarded{ResultID: r.ResultID, Text: r.Text, IsFinal: true}:
	default:
		if h.log != nil {
			h.log.Warn("⚠️ dropped forwarded final, downstream full", zap.String("sessionId", h.sessionID))
		}
	}
}

// SweepOrphans drops any buffered partial older than orphanTimeout
// (default 20s) and returns the count dropped, per section 4.H.
func (h *Handler) SweepOrphans() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	var kept []*BufferedResult
	dropped := 0
	for _, e := range h.entries {
		if now.Sub(e.AddedAt) > h.orphanTimeout {
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	h.entries = kept
	return dropped
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// levenshtein is the standard edit-distance DP, used for the
// partial/final discrepancy check named in section 4.H.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = minOf3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

func minOf3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
