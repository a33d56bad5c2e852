package translate

import (
	"context"
	"fmt"

	awstranslate "github.com/aws/aws-sdk-go-v2/service/translate"

	"github.com/kjlabs/polyglot-broadcast/internal/partial"
)

// Provider is the external machine-translation collaborator (spec.md
// section 1: "assumed as request/response services").
type Provider interface {
	Translate(ctx context.Context, source, target, text string) (string, error)
}

// AWSProvider wraps Amazon Translate, grounded on the reference repo's
// internal/aws/translate.go (same-language short circuit, language code
// passthrough).
type AWSProvider struct {
	client *awstranslate.Client
}

func NewAWSProvider(client *awstranslate.Client) *AWSProvider {
	return &AWSProvider{client: client}
}

func (p *AWSProvider) Translate(ctx context.Context, source, target, text string) (string, error) {
	if source == target {
		return text, nil
	}
	out, err := p.client.TranslateText(ctx, &awstranslate.TranslateTextInput{
		SourceLanguageCode: &source,
		TargetLanguageCode: &target,
		Text:               &text,
	})
	if err != nil {
		return "", fmt.Errorf("translate text: %w", err)
	}
	return *out.TranslatedText, nil
}

// Service ties the cache (component J's primary contract) to the external
// Provider, implementing "on miss, call external translator, store, return".
type Service struct {
	cache    *Cache
	provider Provider
}

func NewService(cache *Cache, provider Provider) *Service {
	return &Service{cache: cache, provider: provider}
}

func (s *Service) Translate(ctx context.Context, source, target, text string) (string, error) {
	key := partial.CacheKey(source, target, text)
	if cached, ok := s.cache.Lookup(key); ok {
		return cached, nil
	}
	translated, err := s.provider.Translate(ctx, source, target, text)
	if err != nil {
		return "", err
	}
	s.cache.Store(key, translated)
	return translated, nil
}

func (s *Service) HitRatio() float64 { return s.cache.HitRatio() }
