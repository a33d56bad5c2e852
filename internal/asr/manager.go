package asr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjlabs/polyglot-broadcast/internal/audio"
)

// Provider is the external collaborator contract: a streaming ASR that
// yields partial/final results with a stability score (spec.md section 1
// names this as assumed, out of scope for its internals).
type Provider interface {
	// OpenStream starts one streaming session for sourceLanguage and
	// returns a handle to feed audio and read results. stability selects
	// the stabilization aggressiveness.
	OpenStream(ctx context.Context, sourceLanguage string, stability StabilityLevel) (ProviderStream, error)
}

type ProviderStream interface {
	SendAudio(ctx context.Context, pcm []byte) error
	Results() <-chan Result
	Close() error
}

// Manager holds exactly one active stream per speaker session, draining
// its ring buffer single-threaded to preserve chunk order into ASR
// (section 5 ordering guarantee (i)).
type Manager struct {
	provider Provider
	stability StabilityLevel

	mu      sync.RWMutex
	streams map[string]*speakerStream

	log *zap.Logger
}

type speakerStream struct {
	sessionID string
	buf       *audio.RingBuffer
	provStream ProviderStream
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewManager(provider Provider, stability StabilityLevel, log *zap.Logger) *Manager {
	return &Manager{
		provider:  provider,
		stability: stability,
		streams:   make(map[string]*speakerStream),
		log:       log,
	}
}

// OpenForSpeaker starts (or returns the existing) ASR stream for a session,
// double-checked locking in the style of the reference repo's
// getOrCreateStream.
func (m *Manager) OpenForSpeaker(ctx context.Context, sessionID, sourceLanguage string, buf *audio.RingBuffer) (<-chan Result, error) {
	m.mu.RLock()
	if s, ok := m.streams[sessionID]; ok {
		m.mu.RUnlock()
		return s.provStream.Results(), nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.streams[sessionID]; ok {
		return s.provStream.Results(), nil
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	provStream, err := m.provider.OpenStream(streamCtx, sourceLanguage, m.stability)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open ASR stream: %w", err)
	}

	s := &speakerStream{
		sessionID:  sessionID,
		buf:        buf,
		provStream: provStream,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	m.streams[sessionID] = s
	go m.pump(streamCtx, s)

	if m.log != nil {
		m.log.Info("🎙️ ASR stream opened", zap.String("sessionId", sessionID), zap.String("sourceLanguage", sourceLanguage))
	}
	return provStream.Results(), nil
}

// pump single-threadedly drains the buffer and feeds ASR in strict FIFO
// order, never blocking the ingestion producer which writes into buf
// independently.
func (m *Manager) pump(ctx context.Context, s *speakerStream) {
	defer close(s.done)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				pkt := s.buf.Pop()
				if pkt == nil {
					break
				}
				if err := s.provStream.SendAudio(ctx, pkt.Data); err != nil {
					if m.log != nil {
						m.log.Warn("⚠️ ASR send failed", zap.String("sessionId", s.sessionID), zap.Error(err))
					}
				}
			}
		}
	}
}

// CloseForSpeaker tears down a speaker's ASR stream on disconnect.
func (m *Manager) CloseForSpeaker(sessionID string) {
	m.mu.Lock()
	s, ok := m.streams[sessionID]
	if ok {
		delete(m.streams, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	s.cancel()
	<-s.done
	_ = s.provStream.Close()
	if m.log != nil {
		m.log.Info("🔚 ASR stream closed", zap.String("sessionId", sessionID))
	}
}
