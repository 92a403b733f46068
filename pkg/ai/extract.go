package ai

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	scoreField    = "finalScore"
	feedbackField = "feedbackMarkdown"
)

const scoreSchemaSource = `{
	"type": "object",
	"required": ["finalScore", "feedbackMarkdown"],
	"properties": {
		"finalScore": {"type": "number"},
		"feedbackMarkdown": {"type": "string"}
	}
}`

var (
	scoreSchema  = jsonschema.MustCompileString("gema://grading/score.schema.json", scoreSchemaSource)
	fencePattern = regexp.MustCompile("(?s)```[A-Za-z0-9_+-]*[ \\t]*\\r?\\n?(.*?)```")
)

type extractStrategy struct {
	name       ExtractionStrategy
	candidates func(text string) []string
}

var strategies = []extractStrategy{
	{name: StrategyDirect, candidates: directCandidates},
	{name: StrategyFenced, candidates: fencedCandidates},
	{name: StrategyEmbedded, candidates: embeddedCandidates},
}

// Extract recovers a score and feedback from free-form provider text. It tries the
// whole text, then fenced code blocks, then the smallest embedded object naming
// both fields. The boolean is false when no strategy produced a complete object.
func Extract(text string) (ExtractedScore, bool) {
	for _, strategy := range strategies {
		for _, candidate := range strategy.candidates(text) {
			score, err := parseCandidate(candidate)
			if err != nil {
				continue
			}
			score.Strategy = strategy.name
			return score, true
		}
	}
	return ExtractedScore{}, false
}

func directCandidates(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	return []string{trimmed}
}

func fencedCandidates(text string) []string {
	matches := fencePattern.FindAllStringSubmatch(text, -1)
	candidates := make([]string, 0, len(matches))
	for _, match := range matches {
		if inner := strings.TrimSpace(match[1]); inner != "" {
			candidates = append(candidates, inner)
		}
	}
	return candidates
}

// embeddedCandidates returns every brace-balanced object that mentions both field
// names, shortest first.
func embeddedCandidates(text string) []string {
	var candidates []string
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		end := matchingBrace(text, start)
		if end < 0 {
			continue
		}
		object := text[start : end+1]
		if strings.Contains(object, `"`+scoreField+`"`) && strings.Contains(object, `"`+feedbackField+`"`) {
			candidates = append(candidates, object)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i]) < len(candidates[j])
	})
	return candidates
}

// matchingBrace returns the index of the brace closing the object opened at start,
// ignoring braces inside quoted strings, or -1 if the object never closes.
func matchingBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch ch {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func parseCandidate(candidate string) (ExtractedScore, error) {
	decoder := json.NewDecoder(strings.NewReader(candidate))
	decoder.UseNumber()

	var value interface{}
	if err := decoder.Decode(&value); err != nil {
		return ExtractedScore{}, err
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return ExtractedScore{}, errors.New("trailing data after json value")
	}
	if err := scoreSchema.Validate(value); err != nil {
		return ExtractedScore{}, err
	}

	object := value.(map[string]interface{})
	number, ok := object[scoreField].(json.Number)
	if !ok {
		return ExtractedScore{}, errors.New("score is not a number")
	}
	score, err := number.Float64()
	if err != nil || math.IsNaN(score) || math.IsInf(score, 0) {
		return ExtractedScore{}, errors.New("score is not finite")
	}
	feedback, ok := object[feedbackField].(string)
	if !ok {
		return ExtractedScore{}, errors.New("feedback is not a string")
	}

	return ExtractedScore{FinalScore: score, FeedbackMarkdown: feedback}, nil
}
