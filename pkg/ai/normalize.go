package ai

import "math"

const (
	minScore = 0
	maxScore = 100
)

// Normalize clamps the extracted score into [0, 100] and scales it onto the
// assignment's point scale. Scaling uses math.Round, so halves round away from
// zero (2.5 becomes 3). The scaled score never exceeds floor(pointScale), which
// only matters for fractional point scales. Scales too large for an int saturate
// at math.MaxInt.
func Normalize(extracted ExtractedScore, pointScale float64) GradingResult {
	clamped := ClampScore(extracted.FinalScore)

	scaled := math.Round(clamped * pointScale / 100)
	if ceiling := math.Floor(pointScale); scaled > ceiling {
		scaled = ceiling
	}
	if scaled < 0 {
		scaled = 0
	}
	scaledScore := math.MaxInt
	if scaled < float64(math.MaxInt) {
		scaledScore = int(scaled)
	}

	return GradingResult{
		FinalScore:       clamped,
		ScaledScore:      scaledScore,
		FeedbackMarkdown: extracted.FeedbackMarkdown,
	}
}

// ClampScore saturates a raw provider score at the bounds of the 0-100 scale.
func ClampScore(score float64) float64 {
	if score < minScore {
		return minScore
	}
	if score > maxScore {
		return maxScore
	}
	return score
}
