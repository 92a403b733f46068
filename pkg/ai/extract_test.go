package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractStrategies(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		score    float64
		feedback string
		strategy ExtractionStrategy
	}{
		{
			name:     "direct object",
			text:     `{"finalScore": 85, "feedbackMarkdown": "Good work"}`,
			score:    85,
			feedback: "Good work",
			strategy: StrategyDirect,
		},
		{
			name:     "direct object with surrounding whitespace",
			text:     "\n  {\"finalScore\": 42.5, \"feedbackMarkdown\": \"ok\"}\n",
			score:    42.5,
			feedback: "ok",
			strategy: StrategyDirect,
		},
		{
			name:     "json fence",
			text:     "```json\n{\"finalScore\":60,\"feedbackMarkdown\":\"ok\"}\n```",
			score:    60,
			feedback: "ok",
			strategy: StrategyFenced,
		},
		{
			name:     "bare fence after prose",
			text:     "Here is my grade:\n```\n{\"finalScore\": 70, \"feedbackMarkdown\": \"fine\"}\n```\nThanks!",
			score:    70,
			feedback: "fine",
			strategy: StrategyFenced,
		},
		{
			name:     "second fence holds the object",
			text:     "```go\nfunc main() {}\n```\n```json\n{\"finalScore\": 55, \"feedbackMarkdown\": \"meh\"}\n```",
			score:    55,
			feedback: "meh",
			strategy: StrategyFenced,
		},
		{
			name:     "embedded in prose",
			text:     `Sure! {"finalScore": 91, "feedbackMarkdown": "## Great\nNice"} Let me know.`,
			score:    91,
			feedback: "## Great\nNice",
			strategy: StrategyEmbedded,
		},
		{
			name:     "embedded with braces inside feedback",
			text:     `Result: {"finalScore": 30, "feedbackMarkdown": "use {} and \"quotes\""} done`,
			score:    30,
			feedback: `use {} and "quotes"`,
			strategy: StrategyEmbedded,
		},
		{
			name:     "smallest embedded object wins",
			text:     `{"meta": {"finalScore": 12, "feedbackMarkdown": "inner"}, "note": "x"} trailing`,
			score:    12,
			feedback: "inner",
			strategy: StrategyEmbedded,
		},
		{
			name:     "out of range score is kept for normalization",
			text:     `{"finalScore": 150, "feedbackMarkdown": "wow"}`,
			score:    150,
			feedback: "wow",
			strategy: StrategyDirect,
		},
		{
			name:     "extra keys are tolerated",
			text:     `{"finalScore": 1, "feedbackMarkdown": "", "confidence": 0.9}`,
			score:    1,
			feedback: "",
			strategy: StrategyDirect,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			extracted, ok := Extract(tc.text)
			require.True(t, ok)
			assert.Equal(t, tc.score, extracted.FinalScore)
			assert.Equal(t, tc.feedback, extracted.FeedbackMarkdown)
			assert.Equal(t, tc.strategy, extracted.Strategy)
		})
	}
}

func TestExtractRejectsIncompleteOrMalformedObjects(t *testing.T) {
	tests := map[string]string{
		"empty":             "",
		"prose":             "The submission looks good, I would give it 85 out of 100.",
		"missing feedback":  `{"finalScore": 85}`,
		"missing score":     `{"feedbackMarkdown": "good"}`,
		"string score":      `{"finalScore": "85", "feedbackMarkdown": "good"}`,
		"null score":        `{"finalScore": null, "feedbackMarkdown": "good"}`,
		"numeric feedback":  `{"finalScore": 85, "feedbackMarkdown": 3}`,
		"truncated object":  `{"finalScore": 85, "feedbackMarkdown": "goo`,
		"fence missing key": "```json\n{\"finalScore\": 85}\n```",
		"partial objects":   `{"finalScore": 85} and later {"feedbackMarkdown": "good"}`,
	}

	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			_, ok := Extract(text)
			assert.False(t, ok)
		})
	}
}

func TestMatchingBraceIgnoresQuotedBraces(t *testing.T) {
	text := `{"a": "}{", "b": {"c": "\"}"}}`
	assert.Equal(t, len(text)-1, matchingBrace(text, 0))
	assert.Equal(t, -1, matchingBrace(`{"a": {`, 0))
}
