// Package asr implements component G, the ASR Session Manager: one
// streaming ASR session per active speaker with partial-result
// stabilization enabled, forwarding Partial and Final events to the
// Partial Result Handler (component H).
package asr

import "time"

// Result is the event shape named in section 4.G and the data model's
// Partial/FinalResult.
type Result struct {
	ResultID         string
	SessionID        string
	SourceLanguage   string
	Text             string
	Timestamp        time.Time
	IsFinal          bool
	StabilityScore   float64  // partials only
	ReplacesResultIDs []string // finals only, optional
}

// Stability levels accepted by enablePartialResultsStabilization.
type StabilityLevel string

const (
	StabilityHigh   StabilityLevel = "high"
	StabilityMedium StabilityLevel = "medium"
	StabilityLow    StabilityLevel = "low"
)
