package asr

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming/types"
	"github.com/google/uuid"
)

// transcribeLangCodes maps the ISO-639-1 codes this platform accepts at
// the wire layer onto Transcribe's more specific locale codes, grounded on
// the reference repo's internal/aws/transcribe.go mapping table.
var transcribeLangCodes = map[string]types.LanguageCode{
	"en": types.LanguageCodeEnUs,
	"ko": types.LanguageCodeKoKr,
	"ja": types.LanguageCodeJaJp,
	"es": types.LanguageCodeEsUs,
	"fr": types.LanguageCodeFrFr,
	"de": types.LanguageCodeDeDe,
	"zh": types.LanguageCodeZhCn,
}

// AWSProvider implements Provider over Amazon Transcribe Streaming with
// enablePartialResultsStabilization set per section 4.G.
type AWSProvider struct {
	client *transcribestreaming.Client
	sampleRateHz int
}

func NewAWSProvider(client *transcribestreaming.Client, sampleRateHz int) *AWSProvider {
	return &AWSProvider{client: client, sampleRateHz: sampleRateHz}
}

func (p *AWSProvider) OpenStream(ctx context.Context, sourceLanguage string, stability StabilityLevel) (ProviderStream, error) {
	langCode, ok := transcribeLangCodes[sourceLanguage]
	if !ok {
		return nil, fmt.Errorf("unsupported source language for ASR: %s", sourceLanguage)
	}

	stabilityType := types.PartialResultsStabilityHigh
	switch stability {
	case StabilityMedium:
		stabilityType = types.PartialResultsStabilityMedium
	case StabilityLow:
		stabilityType = types.PartialResultsStabilityLow
	}

	out, err := p.client.StartStreamTranscription(ctx, &transcribestreaming.StartStreamTranscriptionInput{
		LanguageCode:                   langCode,
		MediaEncoding:                  types.MediaEncodingPcm,
		MediaSampleRateHertz:           aws.Int32(int32(p.sampleRateHz)),
		EnablePartialResultsStabilization: true,
		PartialResultsStability:        stabilityType,
	})
	if err != nil {
		return nil, fmt.Errorf("start transcribe stream: %w", err)
	}

	results := make(chan Result, 32)
	s := &awsStream{
		eventStream: out.GetStream(),
		results:     results,
	}
	go s.consume()
	return s, nil
}

type awsStream struct {
	eventStream *transcribestreaming.StartStreamTranscriptionEventStream
	results     chan Result
}

func (s *awsStream) SendAudio(ctx context.Context, pcm []byte) error {
	event := &types.AudioStreamMemberAudioEvent{
		Value: types.AudioEvent{AudioChunk: pcm},
	}
	return s.eventStream.Send(ctx, event)
}

func (s *awsStream) Results() <-chan Result { return s.results }

func (s *awsStream) Close() error {
	err := s.eventStream.Close()
	close(s.results)
	return err
}

// consume translates Transcribe's TranscriptEvent stream into this
// package's Result shape, grounded on the reference repo's
// processTranscripts loop (internal/aws/pipeline.go).
func (s *awsStream) consume() {
	for event := range s.eventStream.Events() {
		transcriptEvent, ok := event.(*types.TranscriptResultStreamMemberTranscriptEvent)
		if !ok || transcriptEvent.Value.Transcript == nil {
			continue
		}
		for _, result := range transcriptEvent.Value.Transcript.Results {
			if len(result.Alternatives) == 0 {
				continue
			}
			text := aws.ToString(result.Alternatives[0].Transcript)
			if text == "" {
				continue
			}
			isFinal := !aws.ToBool(result.IsPartial)
			stability := 0.0
			if result.Stability != nil {
				stability = float64(*result.Stability)
			}
			s.results <- Result{
				ResultID:       uuid.NewString(),
				Text:           text,
				Timestamp:      time.Now(),
				IsFinal:        isFinal,
				StabilityScore: stability,
			}
		}
	}
}
