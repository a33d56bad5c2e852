// Package session implements component B, the Session Registry, plus the
// session-scoped data model of section 3.
package session

import "time"

type QualityTier string

const (
	QualityStandard QualityTier = "standard"
	QualityPremium  QualityTier = "premium"
)

// BroadcastState mirrors the original Python implementation's
// broadcast_state.py: every transition returns a fresh value rather than
// mutating in place, and stamps lastStateChange in unix milliseconds.
type BroadcastState struct {
	IsActive        bool    `json:"isActive"`
	IsPaused        bool    `json:"isPaused"`
	IsMuted         bool    `json:"isMuted"`
	Volume          float64 `json:"volume"`
	LastStateChange int64   `json:"lastStateChange"`
}

func DefaultBroadcastState(now time.Time) BroadcastState {
	return BroadcastState{
		IsActive:        true,
		IsPaused:        false,
		IsMuted:         false,
		Volume:          1.0,
		LastStateChange: now.UnixMilli(),
	}
}

// IsBroadcasting reports "Broadcasting" per section 4.B: active, not
// paused, not muted.
func (b BroadcastState) IsBroadcasting() bool {
	return b.IsActive && !b.IsPaused && !b.IsMuted
}

func (b BroadcastState) Pause(now time.Time) BroadcastState {
	b.IsPaused = true
	b.LastStateChange = now.UnixMilli()
	return b
}

func (b BroadcastState) Resume(now time.Time) BroadcastState {
	b.IsPaused = false
	b.LastStateChange = now.UnixMilli()
	return b
}

func (b BroadcastState) Mute(now time.Time) BroadcastState {
	b.IsMuted = true
	b.LastStateChange = now.UnixMilli()
	return b
}

func (b BroadcastState) Unmute(now time.Time) BroadcastState {
	b.IsMuted = false
	b.LastStateChange = now.UnixMilli()
	return b
}

// SetVolume returns a copy with volume v and a bumped lastStateChange when
// v is in [0,1] (section 4.B); a value outside that range is rejected, and
// the unchanged state is returned with false.
func (b BroadcastState) SetVolume(v float64, now time.Time) (BroadcastState, bool) {
	if v < 0 || v > 1 {
		return b, false
	}
	b.Volume = v
	b.LastStateChange = now.UnixMilli()
	return b, true
}

// Session is the durable record keyed by sessionId (section 3).
type Session struct {
	SessionID       string          `json:"sessionId"`
	SpeakerID       string          `json:"speakerId"`
	SourceLanguage  string          `json:"sourceLanguage"`
	QualityTier     QualityTier     `json:"qualityTier"`
	IsActive        bool            `json:"isActive"`
	CreatedAt       time.Time       `json:"createdAt"`
	ExpiresAt       time.Time       `json:"expiresAt"`
	ListenerCount   int64           `json:"listenerCount"` // denormalized; mutated only via AtomicAdd
	BroadcastState  BroadcastState  `json:"broadcastState"`
}
