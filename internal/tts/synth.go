// Package tts implements component L, the Parallel Synthesis Service:
// per-language TTS calls in parallel under a per-call deadline and a
// process-wide concurrency cap, selecting a voice per language from a
// static table.
package tts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"

	"github.com/kjlabs/polyglot-broadcast/internal/apperr"
)

// defaultVoices is the static language -> neural voice table named in
// section 4.L, grounded on the reference repo's internal/aws/polly.go.
var defaultVoices = map[string]types.VoiceId{
	"ko": types.VoiceIdSeoyeon,
	"en": types.VoiceIdJoanna,
	"ja": types.VoiceIdTakumi,
	"zh": types.VoiceIdZhiyu,
	"es": types.VoiceIdLucia,
	"fr": types.VoiceIdLea,
	"de": types.VoiceIdVicki,
}

// Provider is the external TTS collaborator.
type Provider interface {
	Synthesize(ctx context.Context, language, ssml string) ([]byte, error)
}

// AWSProvider wraps Amazon Polly with neural engine and PCM output at
// 16kHz mono, matching section 4.L's "PCM16 LE mono 16kHz output".
type AWSProvider struct {
	client *polly.Client
}

func NewAWSProvider(client *polly.Client) *AWSProvider {
	return &AWSProvider{client: client}
}

func (p *AWSProvider) Synthesize(ctx context.Context, language, ssmlText string) ([]byte, error) {
	voice, ok := defaultVoices[language]
	if !ok {
		return nil, apperr.Validation(apperr.CodeValidationUnsupportedLanguage, "unsupported_language").
			WithDetails(map[string]any{"language": language})
	}

	out, err := p.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Text:         aws.String(ssmlText),
		TextType:     types.TextTypeSsml,
		VoiceId:      voice,
		Engine:       types.EngineNeural,
		OutputFormat: types.OutputFormatPcm,
		SampleRate:   aws.String("16000"),
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}
	defer out.AudioStream.Close()

	buf := make([]byte, 0, 64*1024)
	chunk := make([]byte, 8192)
	for {
		n, readErr := out.AudioStream.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if readErr != nil {
			break
		}
	}
	return buf, nil
}

// Service fans synthesis calls out across languages in parallel, bounded
// by a process-wide semaphore and a per-call deadline (default 2s), per
// section 4.L.
type Service struct {
	provider Provider
	sem      chan struct{}
	timeout  time.Duration
}

func NewService(provider Provider, maxConcurrent int, timeout time.Duration) *Service {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Service{
		provider: provider,
		sem:      make(chan struct{}, maxConcurrent),
		timeout:  timeout,
	}
}

// SynthesizeParallel accepts {language -> ssml} and returns
// {language -> audioBytes} containing only the languages that succeeded
// (section 4.L: "Returns ... containing only successful languages").
func (s *Service) SynthesizeParallel(ctx context.Context, ssmlByLang map[string]string) map[string][]byte {
	var mu sync.Mutex
	results := make(map[string][]byte, len(ssmlByLang))

	var wg sync.WaitGroup
	for lang, ssmlText := range ssmlByLang {
		wg.Add(1)
		go func(lang, ssmlText string) {
			defer wg.Done()

			s.sem <- struct{}{}
			defer func() { <-s.sem }()

			callCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			audioBytes, err := s.provider.Synthesize(callCtx, lang, ssmlText)
			if err != nil {
				return
			}
			mu.Lock()
			results[lang] = audioBytes
			mu.Unlock()
		}(lang, ssmlText)
	}
	wg.Wait()
	return results
}
