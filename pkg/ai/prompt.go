package ai

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Rubric criteria and weights embedded in every grading prompt.
var rubric = []struct {
	Name   string
	Weight int
	Detail string
}{
	{"Correctness", 50, "Does the code solve the assignment and handle edge cases?"},
	{"Quality", 30, "Is the code readable, well structured and idiomatic for its language?"},
	{"Efficiency", 20, "Are the algorithms and data structures appropriate for the problem size?"},
}

const noDescription = "(no assignment description provided)"

// BuildPrompt renders the grading prompt for a submission. The strict variant is
// used after a response could not be parsed and tightens the output instructions.
func BuildPrompt(description, code string, strict bool) string {
	builder := strings.Builder{}
	builder.WriteString("You are an experienced programming instructor grading a student's code submission.\n")
	builder.WriteString("\n# Assignment\n")
	if strings.TrimSpace(description) == "" {
		builder.WriteString(noDescription)
	} else {
		builder.WriteString(strings.TrimSpace(description))
	}
	builder.WriteString("\n\n# Submission\n")
	builder.WriteString(code)
	builder.WriteString("\n\n# Rubric\n")
	for _, criterion := range rubric {
		builder.WriteString(fmt.Sprintf("- %s (%d%%): %s\n", criterion.Name, criterion.Weight, criterion.Detail))
	}
	builder.WriteString("Combine the weighted criteria into one overall score between 0 and 100.\n")
	builder.WriteString("\n# Output format\n")
	if strict {
		builder.WriteString("Your previous answer could not be parsed. Answer again following these rules exactly.\n")
	}
	builder.WriteString("Respond with a single JSON object with exactly two keys:\n")
	builder.WriteString(`- "finalScore": a number from 0 to 100` + "\n")
	builder.WriteString(`- "feedbackMarkdown": a string with feedback for the student written in Markdown` + "\n")
	builder.WriteString(`Example: {"finalScore": 72, "feedbackMarkdown": "## Correctness\n..."}` + "\n")
	if strict {
		builder.WriteString("Output ONLY the JSON object. Do not write any text before or after it.\n")
		builder.WriteString("Do NOT wrap the JSON in markdown code fences.\n")
	}
	return builder.String()
}

// TruncateCode caps code at maxChars runes and appends a marker describing the cut.
// A non-positive maxChars disables truncation.
func TruncateCode(code string, maxChars int) (string, bool) {
	if maxChars <= 0 {
		return code, false
	}
	total := utf8.RuneCountInString(code)
	if total <= maxChars {
		return code, false
	}

	cut := 0
	for i := range code {
		if cut == maxChars {
			return fmt.Sprintf("%s\n[... truncated %d characters ...]", code[:i], total-maxChars), true
		}
		cut++
	}
	return code, false
}
