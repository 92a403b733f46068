package ai

import "context"

// SamplingConfig holds the generation parameters sent with a single provider call.
type SamplingConfig struct {
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int32
}

var (
	// InitialSampling keeps first-pass scoring reproducible.
	InitialSampling = SamplingConfig{Temperature: 0.2, TopP: 0.8, TopK: 40, MaxOutputTokens: 1024}
	// StrictSampling is used for the corrective retry and favours literal format compliance.
	StrictSampling = SamplingConfig{Temperature: 0.05, TopP: 0.8, TopK: 40, MaxOutputTokens: 1024}
)

// Provider is a text-generation service able to answer a single prompt.
// Implementations perform exactly one outbound call per Generate and never retry.
type Provider interface {
	Generate(ctx context.Context, prompt string, cfg SamplingConfig) (string, error)
	Name() string
	Model() string
}

// ExtractionStrategy names the parse strategy that located a score.
type ExtractionStrategy string

const (
	StrategyDirect   ExtractionStrategy = "direct"
	StrategyFenced   ExtractionStrategy = "fenced"
	StrategyEmbedded ExtractionStrategy = "embedded"
)

// ExtractedScore is a score/feedback pair recovered from provider text.
// FinalScore is finite but has not been clamped yet.
type ExtractedScore struct {
	FinalScore       float64
	FeedbackMarkdown string
	Strategy         ExtractionStrategy
}

// GradingResult is the bounded outcome of a grading run.
type GradingResult struct {
	FinalScore       float64 `json:"finalScore"`
	ScaledScore      int     `json:"scaledScore"`
	FeedbackMarkdown string  `json:"feedbackMarkdown"`
}
