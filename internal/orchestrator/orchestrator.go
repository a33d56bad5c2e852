// Package orchestrator implements component I, the Translation Fan-Out
// Orchestrator: for each transcript segment forwarded by a session's
// partial.Handler, translate into every target language currently
// listened to, synthesize speech per language, and broadcast the result —
// with per-language serialization and no ordering guarantee across
// languages (section 2's control-flow line F -> G -> H -> I -> (J,K) ->
// L -> M).
package orchestrator

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/kjlabs/polyglot-broadcast/internal/audio"
	"github.com/kjlabs/polyglot-broadcast/internal/broadcast"
	"github.com/kjlabs/polyglot-broadcast/internal/connection"
	"github.com/kjlabs/polyglot-broadcast/internal/partial"
	"github.com/kjlabs/polyglot-broadcast/internal/session"
	"github.com/kjlabs/polyglot-broadcast/internal/ssml"
	"github.com/kjlabs/polyglot-broadcast/internal/translate"
	"github.com/kjlabs/polyglot-broadcast/internal/tts"
)

// metrics bundles the instruments section 4.I names: cache hit ratio,
// fan-out success ratio, segment processing duration and per-language
// failure counts.
type metrics struct {
	duration       metric.Float64Histogram
	successRatio   metric.Float64Histogram
	cacheHitRatio  metric.Float64ObservableGauge
	languageFailed metric.Int64Counter
	listenerGauge  metric.Int64ObservableGauge

	// hitRatio and listenerCount back the two observable gauges above:
	// processSegment stores the latest values, the registered callbacks
	// read them whenever the meter's reader collects.
	hitRatio      atomic.Value
	listenerCount atomic.Int64
}

func newMetrics(meter metric.Meter) *metrics {
	m := &metrics{}
	m.duration, _ = meter.Float64Histogram("broadcast.segment.duration_ms",
		metric.WithDescription("time to translate, synthesize and fan out one transcript segment"))
	m.successRatio, _ = meter.Float64Histogram("broadcast.fanout.success_ratio",
		metric.WithDescription("fraction of listener sends that succeeded per segment"))
	m.languageFailed, _ = meter.Int64Counter("broadcast.language.failures",
		metric.WithDescription("count of languages that failed translation or synthesis for a segment"))
	m.cacheHitRatio, _ = meter.Float64ObservableGauge("broadcast.cache.hit_ratio",
		metric.WithDescription("cumulative translation cache hit ratio"),
		metric.WithFloat64Callback(func(_ context.Context, o metric.Float64Observer) error {
			if v, ok := m.hitRatio.Load().(float64); ok {
				o.Observe(v)
			}
			return nil
		}),
	)
	m.listenerGauge, _ = meter.Int64ObservableGauge("broadcast.session.listener_count",
		metric.WithDescription("current listener count for the session"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.listenerCount.Load())
			return nil
		}),
	)
	return m
}

// Orchestrator drives one session's forwarded-segment channel to
// completion. One instance is created per active broadcasting session.
type Orchestrator struct {
	sessionID string

	connections *connection.Registry
	sessions    *session.Registry
	translator  *translate.Service
	synth       *tts.Service
	broadcaster *broadcast.Handler
	estimator   *audio.Estimator

	metrics *metrics
	log     *zap.Logger
}

func New(
	sessionID string,
	connections *connection.Registry,
	sessions *session.Registry,
	translator *translate.Service,
	synth *tts.Service,
	broadcaster *broadcast.Handler,
	meter metric.Meter,
	log *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		sessionID:   sessionID,
		connections: connections,
		sessions:    sessions,
		translator:  translator,
		synth:       synth,
		broadcaster: broadcaster,
		estimator:   audio.NewEstimator(),
		metrics:     newMetrics(meter),
		log:         log,
	}
}

// Run drains handler's Forwarded channel until it closes or ctx is
// cancelled, processing one segment at a time. The handler's own buffering
// and gates already bound how much work arrives here; this loop owns
// translating it out to every target language.
func (o *Orchestrator) Run(ctx context.Context, handler *partial.Handler, dyn func() audio.EmotionDynamics) {
	for {
		select {
		case <-ctx.Done():
			return
		case seg, ok := <-handler.Forwarded():
			if !ok {
				return
			}
			o.processSegment(ctx, seg, dyn())
		}
	}
}

// processSegment resolves the session's target languages, translates each
// one and wraps it in SSML (one language after another; translation is not
// run in parallel), synthesizes all languages in parallel via tts.Service's
// own bounded fan-out, then broadcasts each language's audio to its
// listeners. A segment is dropped when no target language has a listener.
func (o *Orchestrator) processSegment(ctx context.Context, seg partial.Forwarded, dyn audio.EmotionDynamics) {
	start := time.Now()

	targets, err := o.connections.ListUniqueTargetLanguages(ctx, o.sessionID)
	if err != nil || len(targets) == 0 {
		return
	}

	sess, err := o.sessions.GetSession(ctx, o.sessionID)
	if err != nil || sess == nil {
		return
	}

	ssmlByLang := make(map[string]string, len(targets))
	var failedLanguages int64

	for _, lang := range targets {
		translated, err := o.translator.Translate(ctx, sess.SourceLanguage, lang, seg.Text)
		if err != nil {
			failedLanguages++
			if o.log != nil {
				o.log.Warn("⚠️ translation failed, skipping language for segment",
					zap.String("sessionId", o.sessionID), zap.String("language", lang), zap.Error(err))
			}
			continue
		}
		ssmlByLang[lang] = ssml.Generate(translated, dyn)
	}

	audioByLang := o.synth.SynthesizeParallel(ctx, ssmlByLang)
	for lang := range ssmlByLang {
		if _, ok := audioByLang[lang]; !ok {
			failedLanguages++
		}
	}

	var totalSuccess, totalFailed, totalStale int
	for lang, pcm := range audioByLang {
		counts := o.broadcaster.Broadcast(ctx, o.sessionID, lang, pcm)
		totalSuccess += counts.Success
		totalFailed += counts.Failed
		totalStale += counts.Stale
	}

	if o.metrics != nil {
		o.metrics.duration.Record(ctx, float64(time.Since(start).Milliseconds()))
		if total := totalSuccess + totalFailed + totalStale; total > 0 {
			o.metrics.successRatio.Record(ctx, float64(totalSuccess)/float64(total))
		}
		if failedLanguages > 0 {
			o.metrics.languageFailed.Add(ctx, failedLanguages)
		}
		o.metrics.hitRatio.Store(o.translator.HitRatio())
		o.metrics.listenerCount.Store(sess.ListenerCount)
	}
}
