// Package partial implements component H, the Partial Result Buffer &
// Handler: feature-flag rollout gating, stability/sentence-boundary
// gating, dedup, and the buffered-result lifecycle.
package partial

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"time"
)

// FlagConfig mirrors original_source's FeatureFlagConfig
// (feature_flag_service.py): global enable, percentage rollout, and the
// stability/timeout defaults consumed by the forwarding gates.
type FlagConfig struct {
	Enabled            bool
	RolloutPercentage  int     // 0..100
	MinStabilityThreshold float64 // 0.70..0.95
	MaxBufferTimeout   time.Duration // 2s..10s
}

func (c FlagConfig) Validate() bool {
	if c.RolloutPercentage < 0 || c.RolloutPercentage > 100 {
		return false
	}
	if c.MinStabilityThreshold < 0.70 || c.MinStabilityThreshold > 0.95 {
		return false
	}
	if c.MaxBufferTimeout < 2*time.Second || c.MaxBufferTimeout > 10*time.Second {
		return false
	}
	return true
}

// FlagSource supplies the current snapshot, pluggable so a real SSM- or
// Redis-backed source can replace the static default without touching the
// hashing/bucketing logic below.
type FlagSource interface {
	Current() FlagConfig
}

type StaticFlagSource struct{ Config FlagConfig }

func (s StaticFlagSource) Current() FlagConfig { return s.Config }

// FeatureGate implements gate 1 of section 4.H: consistent hashing of
// sessionId (SHA-256, first 4 bytes big-endian mod 100) assigns a session
// to a stable bucket so its verdict never flips during its lifetime under
// a fixed configuration snapshot.
type FeatureGate struct {
	source FlagSource

	mu      sync.Mutex
	verdicts map[string]sessionVerdict
}

type sessionVerdict struct {
	enabled bool
	config  FlagConfig
}

func NewFeatureGate(source FlagSource) *FeatureGate {
	return &FeatureGate{source: source, verdicts: make(map[string]sessionVerdict)}
}

// IsEnabledForSession returns the session's sticky rollout verdict,
// computing and caching it from the current flag snapshot on first call.
func (g *FeatureGate) IsEnabledForSession(sessionID string) (bool, FlagConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if v, ok := g.verdicts[sessionID]; ok {
		return v.enabled, v.config
	}

	cfg := g.source.Current()
	var enabled bool
	switch {
	case !cfg.Enabled:
		enabled = false
	case cfg.RolloutPercentage >= 100:
		enabled = true
	default:
		enabled = bucketFor(sessionID) < cfg.RolloutPercentage
	}

	g.verdicts[sessionID] = sessionVerdict{enabled: enabled, config: cfg}
	return enabled, cfg
}

func bucketFor(sessionID string) int {
	sum := sha256.Sum256([]byte(sessionID))
	v := binary.BigEndian.Uint32(sum[:4])
	return int(v % 100)
}
