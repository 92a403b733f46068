package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const openAIProviderName = "openai"

// OpenAIConfig defines configuration options for the OpenAI provider.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Logger  zerolog.Logger
}

// OpenAIProvider implements Provider against the OpenAI chat completion API.
// The chat completion API has no top-k parameter, so SamplingConfig.TopK is ignored.
type OpenAIProvider struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIProvider builds a new provider using the provided configuration.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai api key is required: %w", ErrConfiguration)
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-grader/pkg/ai/openai"),
		logger: cfg.Logger.With().Str("component", "openai_provider").Logger(),
	}, nil
}

// Name identifies the provider in logs, metrics and audit records.
func (p *OpenAIProvider) Name() string { return openAIProviderName }

// Model returns the configured model identifier.
func (p *OpenAIProvider) Model() string { return p.cfg.Model }

// Generate sends a single chat completion request and returns the raw reply text.
func (p *OpenAIProvider) Generate(parent context.Context, prompt string, cfg SamplingConfig) (text string, err error) {
	ctx, span := startCallSpan(parent, p.tracer, openAIProviderName, p.cfg.Model, cfg)
	defer span.End()

	start := time.Now()
	defer func() {
		observeCall(span, openAIProviderName, p.cfg.Model, start, err)
	}()

	request := openai.ChatCompletionRequest{
		Model:       p.cfg.Model,
		MaxTokens:   int(cfg.MaxOutputTokens),
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	}

	resp, err := p.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return "", newUpstreamError(openAIProviderName, openAIStatus(err), err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices returned: %w", ErrMissingContent)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		if reason := resp.Choices[0].FinishReason; reason == openai.FinishReasonContentFilter {
			return "", newUpstreamError(openAIProviderName, 0, fmt.Errorf("completion stopped by %s", reason))
		}
		return "", fmt.Errorf("openai: empty completion: %w", ErrMissingContent)
	}

	p.logger.Debug().
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("openai completion received")

	return content, nil
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
