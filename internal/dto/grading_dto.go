package dto

import "github.com/noah-isme/gema-grader/pkg/ai"

// GradingRequest represents the payload sent by the grading UI. Pointer fields
// distinguish a missing key from a zero value.
type GradingRequest struct {
	Description *string  `json:"description"`
	Code        *string  `json:"code" validate:"required"`
	MaxScore    *float64 `json:"maxScore" validate:"required,gt=0,lte=1000000"`
}

// DescriptionValue returns the description or an empty string when omitted.
func (r GradingRequest) DescriptionValue() string {
	if r.Description == nil {
		return ""
	}
	return *r.Description
}

// GradingResponse is the body returned for a successful grading run.
type GradingResponse struct {
	FinalScore       float64 `json:"finalScore"`
	ScaledScore      int     `json:"scaledScore"`
	FeedbackMarkdown string  `json:"feedbackMarkdown"`
}

// NewGradingResponse converts a grading result into the response DTO.
func NewGradingResponse(result ai.GradingResult) GradingResponse {
	return GradingResponse{
		FinalScore:       result.FinalScore,
		ScaledScore:      result.ScaledScore,
		FeedbackMarkdown: result.FeedbackMarkdown,
	}
}
