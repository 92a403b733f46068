package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"
)

const geminiProviderName = "gemini"

// GeminiConfig defines configuration options for the Gemini provider.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Logger  zerolog.Logger
}

// GeminiProvider implements Provider against the Gemini generateContent API.
type GeminiProvider struct {
	client *genai.Client
	cfg    GeminiConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewGeminiProvider builds a Gemini provider. The API key is required.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini api key is required: %w", ErrConfiguration)
	}

	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-grader/pkg/ai/gemini"),
		logger: cfg.Logger.With().Str("component", "gemini_provider").Logger(),
	}, nil
}

// Name identifies the provider in logs, metrics and audit records.
func (p *GeminiProvider) Name() string { return geminiProviderName }

// Model returns the configured model identifier.
func (p *GeminiProvider) Model() string { return p.cfg.Model }

// Generate sends a single generateContent request and returns the raw reply text.
func (p *GeminiProvider) Generate(parent context.Context, prompt string, cfg SamplingConfig) (text string, err error) {
	ctx, span := startCallSpan(parent, p.tracer, geminiProviderName, p.cfg.Model, cfg)
	defer span.End()

	start := time.Now()
	defer func() {
		observeCall(span, geminiProviderName, p.cfg.Model, start, err)
	}()

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(cfg.Temperature),
		TopP:            genai.Ptr(cfg.TopP),
		TopK:            genai.Ptr(cfg.TopK),
		MaxOutputTokens: cfg.MaxOutputTokens,
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.cfg.Model, genai.Text(prompt), config)
	if err != nil {
		return "", newUpstreamError(geminiProviderName, geminiStatus(err), err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", newUpstreamError(geminiProviderName, 0, fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason))
	}

	content := strings.TrimSpace(resp.Text())
	if content == "" {
		if len(resp.Candidates) > 0 && blockedFinish(resp.Candidates[0].FinishReason) {
			return "", newUpstreamError(geminiProviderName, 0, fmt.Errorf("candidate stopped by %s", resp.Candidates[0].FinishReason))
		}
		return "", fmt.Errorf("gemini: empty candidate text: %w", ErrMissingContent)
	}

	if resp.UsageMetadata != nil {
		p.logger.Debug().
			Int32("prompt_tokens", resp.UsageMetadata.PromptTokenCount).
			Int32("candidate_tokens", resp.UsageMetadata.CandidatesTokenCount).
			Msg("gemini completion received")
	}

	return content, nil
}

// blockedFinish reports finish reasons where the model withheld its answer.
func blockedFinish(reason genai.FinishReason) bool {
	switch reason {
	case genai.FinishReasonSafety,
		genai.FinishReasonProhibitedContent,
		genai.FinishReasonBlocklist,
		genai.FinishReasonSPII,
		genai.FinishReasonRecitation:
		return true
	default:
		return false
	}
}

func geminiStatus(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code
	}
	return 0
}
