// Package wsapi wires the wire protocol (internal/wire) to the component
// registries/services: the REST session-lifecycle surface and the two
// WebSocket connection actors (speaker, listener) of section 6.
package wsapi

import (
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/kjlabs/polyglot-broadcast/internal/asr"
	"github.com/kjlabs/polyglot-broadcast/internal/audio"
	"github.com/kjlabs/polyglot-broadcast/internal/auth"
	"github.com/kjlabs/polyglot-broadcast/internal/broadcast"
	"github.com/kjlabs/polyglot-broadcast/internal/config"
	"github.com/kjlabs/polyglot-broadcast/internal/connection"
	"github.com/kjlabs/polyglot-broadcast/internal/control"
	"github.com/kjlabs/polyglot-broadcast/internal/heartbeat"
	"github.com/kjlabs/polyglot-broadcast/internal/partial"
	"github.com/kjlabs/polyglot-broadcast/internal/ratelimit"
	"github.com/kjlabs/polyglot-broadcast/internal/session"
	"github.com/kjlabs/polyglot-broadcast/internal/translate"
	"github.com/kjlabs/polyglot-broadcast/internal/tts"
)

// Deps bundles every collaborator the REST and WebSocket handlers need.
// cmd/server wires one of these for the process lifetime.
type Deps struct {
	Cfg *config.Config
	Log *zap.Logger

	Sessions    *session.Registry
	Connections *connection.Registry
	Validator   *auth.Validator
	Limiter     *ratelimit.Limiter
	Gate        *partial.FeatureGate
	ASR         *asr.Manager
	Translator  *translate.Service
	Synth       *tts.Service
	Hub         *Hub
	Broadcaster *broadcast.Handler
	Control     *control.Router
	Heartbeat   *heartbeat.Monitor
	Meter       metric.Meter

	FormatSpec audio.FormatSpec
}
