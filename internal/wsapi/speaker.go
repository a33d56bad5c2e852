package wsapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjlabs/polyglot-broadcast/internal/apperr"
	"github.com/kjlabs/polyglot-broadcast/internal/asr"
	"github.com/kjlabs/polyglot-broadcast/internal/audio"
	"github.com/kjlabs/polyglot-broadcast/internal/orchestrator"
	"github.com/kjlabs/polyglot-broadcast/internal/partial"
	"github.com/kjlabs/polyglot-broadcast/internal/ratelimit"
	"github.com/kjlabs/polyglot-broadcast/internal/wire"
)

// HandleSpeaker is the WS connection actor for a broadcasting speaker:
// validates the session/token, pumps binary audio into the ring buffer
// and ASR, and drains ASR results through the partial handler into the
// fan-out orchestrator, until the socket closes.
func (d *Deps) HandleSpeaker(c *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionID := c.Query("sessionId")
	token := c.Query("token")

	identity, err := d.Validator.Validate(ctx, token)
	if err != nil {
		d.closeWithError(c, err)
		return
	}

	sess, err := d.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		d.closeWithError(c, err)
		return
	}
	if sess.SpeakerID != identity.UserID {
		d.closeWithError(c, apperr.Auth(apperr.CodeAuthForbidden, "token does not own this session"))
		return
	}

	connID := uuid.NewString()
	if _, err := d.Limiter.Check(ctx, ratelimit.OpConnectionAttempt, "ip", c.RemoteAddr().String()); err != nil {
		d.closeWithError(c, err)
		return
	}
	if _, err := d.Connections.RegisterSpeaker(ctx, connID, sessionID, identity.UserID); err != nil {
		d.closeWithError(c, err)
		return
	}

	stopHub := d.Hub.Register(connID, c)
	stopHeartbeat := d.Heartbeat.Register(ctx, connID, func() {
		d.Log.Info("💔 speaker connection timed out", zap.String("sessionId", sessionID))
		cancel()
	})
	defer func() {
		stopHeartbeat()
		stopHub()
		_, _ = d.Connections.RemoveConnection(context.Background(), connID)
		d.ASR.CloseForSpeaker(sessionID)
	}()

	validator := audio.NewConnectionValidator(d.FormatSpec)
	buf := audio.NewRingBuffer(d.Cfg.Audio.BufferSeconds * 1000 / max1(d.Cfg.Audio.ChunkMs))
	estimator := audio.NewEstimator()
	qa := &qualityAnalyzers{
		clipping: audio.NewClippingDetector(),
		snr:      audio.NewSNRCalculator(),
		echo:     audio.NewEchoDetector(),
		silence:  audio.NewSilenceState(),
	}
	var lastDyn audio.EmotionDynamics

	results, err := d.ASR.OpenForSpeaker(ctx, sessionID, sess.SourceLanguage, buf)
	if err != nil {
		d.closeWithError(c, err)
		return
	}

	dedup := partial.NewDedupCache(d.Cfg.Partial.DedupTTL, d.Cfg.Partial.DedupMaxEntries)
	defer dedup.Close()
	handler := partial.NewHandler(sessionID, d.Gate, dedup, d.Cfg.Partial.OrphanTimeout, d.Cfg.Partial.DiscrepancyWarnPct, d.Log)

	orch := orchestrator.New(sessionID, d.Connections, d.Sessions, d.Translator, d.Synth, d.Broadcaster, d.Meter, d.Log)
	go orch.Run(ctx, handler, func() audio.EmotionDynamics { return lastDyn })
	go d.pumpASRResults(ctx, results, handler)

	orphanTicker := time.NewTicker(5 * time.Second)
	defer orphanTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-orphanTicker.C:
				handler.SweepOrphans()
			}
		}
	}()

	headerStripped := false
	for {
		msgType, data, err := c.ReadMessage()
		if err != nil {
			return
		}

		if _, err := d.Limiter.Check(ctx, ratelimit.OpAudioChunk, "connection", connID); err != nil {
			d.sendError(connID, err)
			continue
		}

		switch msgType {
		case websocket.BinaryMessage:
			if err := validator.CheckFirstChunk(firstHeaderOf(data)); err != nil {
				d.sendError(connID, apperr.Validation(apperr.CodeAudioUnsupportedFormat, err.Error()))
				continue
			}
			frame := data
			if !headerStripped {
				frame = stripHeaderIfPresent(data)
				headerStripped = true
			}
			if err := audio.CheckFrame(frame, d.FormatSpec); err != nil {
				continue
			}
			buf.Push(frame)

			samples := audio.DecodePCM16LE(frame)
			lastDyn = estimator.Estimate(samples, estimateOnsetRate(samples, d.Cfg.Audio.SampleRateHz))
			d.emitQualityWarnings(connID, qa, samples, d.Cfg.Audio.SampleRateHz, float64(d.Cfg.Audio.ChunkMs)/1000.0)

		case websocket.TextMessage:
			d.handleControlText(ctx, connID, sessionID, identity.UserID, data)
		}
	}
}

// pumpASRResults forwards every ASR result to the session's partial
// handler, splitting on IsFinal per section 4.G/4.H's boundary.
func (d *Deps) pumpASRResults(ctx context.Context, results <-chan asr.Result, handler *partial.Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-results:
			if !ok {
				return
			}
			if r.IsFinal {
				handler.HandleFinal(r)
			} else {
				handler.HandlePartial(r)
			}
		}
	}
}

func (d *Deps) handleControlText(ctx context.Context, connID, sessionID, userID string, data []byte) {
	var in wire.Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		d.sendError(connID, apperr.Validation(apperr.CodeValidationMissingField, "malformed control message"))
		return
	}

	if in.Action == wire.ActionHeartbeat {
		if _, err := d.Limiter.Check(ctx, ratelimit.OpHeartbeat, "connection", connID); err != nil {
			d.sendError(connID, err)
			return
		}
		acks, err := d.Heartbeat.HandleHeartbeat(ctx, connID)
		if err != nil {
			d.sendError(connID, err)
			return
		}
		for _, ack := range acks {
			d.Hub.SendJSON(connID, ack)
		}
		return
	}

	out, err := d.Control.Dispatch(ctx, connID, sessionID, userID, in)
	if err != nil {
		d.sendError(connID, err)
		return
	}
	d.Hub.SendJSON(connID, out)
}

func (d *Deps) sendError(connID string, err error) {
	ae, ok := err.(*apperr.Error)
	if !ok {
		ae = apperr.Fatal(apperr.CodeInternalUnexpected, "unexpected error", err)
	}
	d.Hub.SendJSON(connID, wire.Outbound{
		Type:      wire.TypeError,
		Timestamp: time.Now().UnixMilli(),
		Payload:   ae.Wire(),
	})
}

func (d *Deps) closeWithError(c *websocket.Conn, err error) {
	ae, ok := err.(*apperr.Error)
	if !ok {
		ae = apperr.Fatal(apperr.CodeInternalUnexpected, "unexpected error", err)
	}
	_ = c.WriteJSON(wire.Outbound{
		Type:      wire.TypeError,
		Timestamp: time.Now().UnixMilli(),
		Payload:   ae.Wire(),
	})
	_ = c.Close()
}

func max1(v int) int {
	if v <= 0 {
		return 1
	}
	return v
}

// firstHeaderOf and stripHeaderIfPresent let a speaker client send the
// 12-byte format header as a prefix on the very first binary frame only,
// matching ConnectionValidator's "validated once" contract (section 4.F).
func firstHeaderOf(data []byte) []byte {
	if len(data) < audio.MetadataHeaderSize {
		return nil
	}
	return data[:audio.MetadataHeaderSize]
}

func stripHeaderIfPresent(data []byte) []byte {
	if len(data) > audio.MetadataHeaderSize {
		return data[audio.MetadataHeaderSize:]
	}
	return data
}

// estimateOnsetRate is a lightweight zero-crossing-rate proxy for syllable
// onsets per second, feeding audio.Estimator's words-per-minute estimate
// without a full onset-detection pipeline.
func estimateOnsetRate(samples []float64, sampleRateHz int) float64 {
	if len(samples) < 2 || sampleRateHz == 0 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] < 0) != (samples[i] < 0) {
			crossings++
		}
	}
	seconds := float64(len(samples)) / float64(sampleRateHz)
	if seconds == 0 {
		return 0
	}
	return float64(crossings) / 2.0 / seconds
}
