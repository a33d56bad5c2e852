// Package wire defines the wire protocol of section 6: inbound
// speaker/listener message shapes and outbound server message shapes.
// It is a leaf package with no collaborator dependencies of its own, so
// both the connection-handling side (wsapi) and the message-producing
// collaborators that don't own a connection (control, heartbeat) can
// depend on it without an import cycle.
package wire

import "github.com/kjlabs/polyglot-broadcast/internal/apperr"

// Inbound actions.
const (
	ActionCreateSession    = "createSession"
	ActionSendAudio        = "sendAudio"
	ActionPause            = "pause"
	ActionResume           = "resume"
	ActionMute             = "mute"
	ActionUnmute           = "unmute"
	ActionSetVolume        = "setVolume"
	ActionGetSessionStatus = "getSessionStatus"
	ActionHeartbeat        = "heartbeat"
	ActionJoinSession      = "joinSession"
)

// Inbound is the generic envelope every text frame is first decoded into.
type Inbound struct {
	Action         string   `json:"action"`
	SessionID      string   `json:"sessionId,omitempty"`
	SourceLanguage string   `json:"sourceLanguage,omitempty"`
	QualityTier    string   `json:"qualityTier,omitempty"`
	TargetLanguage string   `json:"targetLanguage,omitempty"`
	Data           string   `json:"data,omitempty"` // base64 PCM, when not sent as a binary frame
	Volume         *float64 `json:"volume,omitempty"`
}

// Outbound message `type` values (section 6).
const (
	TypeSessionCreated      = "sessionCreated"
	TypeListenerJoined      = "listenerJoined"
	TypeSessionStatus       = "sessionStatus"
	TypeBroadcastControl    = "broadcastControl"
	TypeAudioQualityWarning = "audioQualityWarning"
	TypeConnectionRefresh   = "connectionRefresh"
	TypeConnectionWarning   = "connectionWarning"
	TypeHeartbeatAck        = "heartbeatAck"
	TypeSessionEnded        = "sessionEnded"
	TypeError               = "error"
)

// Outbound is the generic envelope every server->client JSON message
// shares: type, timestamp, sessionId where applicable, plus a
// type-specific payload.
type Outbound struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	SessionID string `json:"sessionId,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

type SessionCreatedPayload struct {
	SessionID   string `json:"sessionId"`
	ExpiresAt   int64  `json:"expiresAt"`
	QualityTier string `json:"qualityTier"`
}

type ListenerJoinedPayload struct {
	ListenerCount  int64  `json:"listenerCount"`
	TargetLanguage string `json:"targetLanguage"`
}

type SessionStatusPayload struct {
	IsActive             bool           `json:"isActive"`
	ListenerCount        int64          `json:"listenerCount"`
	LanguageDistribution map[string]int `json:"languageDistribution"`
}

type BroadcastControlPayload struct {
	IsPaused bool    `json:"isPaused"`
	IsMuted  bool    `json:"isMuted"`
	Volume   float64 `json:"volume"`
}

type AudioQualityWarningPayload struct {
	WarningType    string `json:"warningType"` // clipping | echo | silence | low_snr
	Severity       string `json:"severity"`
	Message        string `json:"message"`
	Recommendation string `json:"recommendation"`
}

type ConnectionRefreshPayload struct {
	NewConnectionURL string `json:"newConnectionUrl,omitempty"`
	ExpiresIn        int64  `json:"expiresIn"`
}

type ConnectionWarningPayload struct {
	RemainingMinutes int `json:"remainingMinutes"`
}

type SessionEndedPayload struct {
	Reason string `json:"reason"`
}

// ErrorPayload is rendered directly from apperr.Error.Wire().
type ErrorPayload = apperr.WireMessage
