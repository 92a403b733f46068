package service

import (
	"context"
	"errors"
	"html"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/observability"
	"github.com/noah-isme/gema-grader/internal/repository"
	"github.com/noah-isme/gema-grader/pkg/ai"
)

// ErrInvalidCode indicates the submission code is missing or blank.
var ErrInvalidCode = errors.New("code must be a non-empty string")

// ErrInvalidMaxScore indicates the point scale is missing, not positive or above MaxScoreCeiling.
var ErrInvalidMaxScore = errors.New("maxScore must be a positive number")

// MaxScoreCeiling is the largest point scale accepted for an assignment.
const MaxScoreCeiling = 1_000_000

// GradeCommand carries one grading request through the pipeline.
type GradeCommand struct {
	Description   string
	Code          string
	MaxScore      float64
	UserID        uint
	CorrelationID string
}

// GradeOutcome summarises how a grading run ended.
type GradeOutcome struct {
	Attempts  int
	Strategy  ai.ExtractionStrategy
	Truncated bool
}

// GradingService runs the rubric-grading pipeline.
type GradingService interface {
	Grade(ctx context.Context, cmd GradeCommand) (ai.GradingResult, GradeOutcome, error)
	ProviderName() string
}

// GradingConfig describes the grading pipeline knobs.
type GradingConfig struct {
	ProviderTimeout time.Duration
	MaxCodeChars    int
}

type gradingService struct {
	provider  ai.Provider
	records   repository.GradingRecordRepository
	events    GradeEventPublisher
	sanitizer *bluemonday.Policy
	tracer    trace.Tracer
	logger    zerolog.Logger
	config    GradingConfig
	now       func() time.Time
}

// NewGradingService constructs the grading service. provider may be nil when no
// credentials are configured; records and events are optional.
func NewGradingService(provider ai.Provider, records repository.GradingRecordRepository, events GradeEventPublisher, logger zerolog.Logger, cfg GradingConfig) GradingService {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 30 * time.Second
	}

	return &gradingService{
		provider:  provider,
		records:   records,
		events:    events,
		sanitizer: bluemonday.StrictPolicy(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-grader/internal/service/grading"),
		logger:    logger.With().Str("component", "grading_service").Logger(),
		config:    cfg,
		now:       time.Now,
	}
}

func (s *gradingService) ProviderName() string {
	if s.provider == nil {
		return ""
	}
	return s.provider.Name()
}

func (s *gradingService) Grade(ctx context.Context, cmd GradeCommand) (ai.GradingResult, GradeOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "grading.run", trace.WithAttributes(
		attribute.Int("grading.code_length", utf8.RuneCountInString(cmd.Code)),
		attribute.Float64("grading.max_score", cmd.MaxScore),
	))
	defer span.End()

	started := s.now()
	var outcome GradeOutcome

	if err := validateCommand(cmd); err != nil {
		span.SetStatus(codes.Error, "validation_failed")
		observability.GradingRequests().WithLabelValues("validation_failed").Inc()
		return ai.GradingResult{}, outcome, err
	}

	if s.provider == nil {
		err := ai.ErrConfiguration
		span.RecordError(err)
		span.SetStatus(codes.Error, ai.ErrorKind(err))
		s.finish(ctx, cmd, outcome, ai.GradingResult{}, err, started)
		return ai.GradingResult{}, outcome, err
	}

	code, truncated := ai.TruncateCode(cmd.Code, s.config.MaxCodeChars)
	outcome.Truncated = truncated
	if truncated {
		s.logger.Warn().
			Str("correlation_id", cmd.CorrelationID).
			Int("code_length", utf8.RuneCountInString(cmd.Code)).
			Int("max_code_chars", s.config.MaxCodeChars).
			Msg("submission code truncated before grading")
	}
	description := s.cleanDescription(cmd.Description)

	result, err := s.run(ctx, description, code, cmd, &outcome)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ai.ErrorKind(err))
	} else {
		span.SetAttributes(
			attribute.Float64("grading.final_score", result.FinalScore),
			attribute.Int("grading.scaled_score", result.ScaledScore),
			attribute.String("grading.strategy", string(outcome.Strategy)),
		)
	}
	span.SetAttributes(attribute.Int("grading.attempts", outcome.Attempts))

	s.finish(ctx, cmd, outcome, result, err, started)
	return result, outcome, err
}

// run performs the initial attempt and at most one strict retry.
func (s *gradingService) run(ctx context.Context, description, code string, cmd GradeCommand, outcome *GradeOutcome) (ai.GradingResult, error) {
	attempts := []struct {
		strict   bool
		sampling ai.SamplingConfig
	}{
		{strict: false, sampling: ai.InitialSampling},
		{strict: true, sampling: ai.StrictSampling},
	}

	for i, attempt := range attempts {
		outcome.Attempts = i + 1
		logger := s.logger.With().
			Str("correlation_id", cmd.CorrelationID).
			Str("provider", s.provider.Name()).
			Str("model", s.provider.Model()).
			Int("attempt", outcome.Attempts).
			Logger()

		text, err := s.generate(ctx, ai.BuildPrompt(description, code, attempt.strict), attempt.sampling)
		if err != nil {
			logger.Error().Err(err).Msg("provider call failed")
			return ai.GradingResult{}, err
		}

		extracted, ok := ai.Extract(text)
		if ok {
			outcome.Strategy = extracted.Strategy
			observability.GradingExtractions().WithLabelValues(string(extracted.Strategy)).Inc()
			return ai.Normalize(extracted, cmd.MaxScore), nil
		}

		observability.GradingExtractions().WithLabelValues("failed").Inc()
		logger.Warn().Int("response_length", len(text)).Msg("provider response did not contain a valid score")
	}

	return ai.GradingResult{}, ai.ErrInvalidFormat
}

func (s *gradingService) generate(ctx context.Context, prompt string, sampling ai.SamplingConfig) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.config.ProviderTimeout)
	defer cancel()

	text, err := s.provider.Generate(callCtx, prompt, sampling)
	if err != nil {
		if errors.Is(err, ai.ErrUpstream) || errors.Is(err, ai.ErrMissingContent) {
			return "", err
		}
		return "", &ai.UpstreamError{Provider: s.provider.Name(), Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return "", ai.ErrMissingContent
	}
	return text, nil
}

// finish records the audit entry, publishes the grade event and updates metrics.
// Side-effect failures are logged and never change the grading result.
func (s *gradingService) finish(ctx context.Context, cmd GradeCommand, outcome GradeOutcome, result ai.GradingResult, gradeErr error, started time.Time) {
	status := models.GradingOutcomeSucceeded
	if gradeErr != nil {
		status = ai.ErrorKind(gradeErr)
	}
	duration := s.now().Sub(started)
	observability.GradingRequests().WithLabelValues(status).Inc()
	observability.GradingDuration().WithLabelValues(status).Observe(duration.Seconds())
	if outcome.Attempts > 1 {
		observability.GradingRetries().Inc()
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return
	}
	// detached so an expired request deadline does not drop the audit trail
	sideCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	providerName, model := "", ""
	if s.provider != nil {
		providerName, model = s.provider.Name(), s.provider.Model()
	}

	if s.records != nil {
		record := models.GradingRecord{
			CorrelationID: cmd.CorrelationID,
			UserID:        cmd.UserID,
			Outcome:       status,
			MaxScore:      cmd.MaxScore,
			Attempts:      outcome.Attempts,
			Strategy:      string(outcome.Strategy),
			Provider:      providerName,
			Model:         model,
			CodeLength:    utf8.RuneCountInString(cmd.Code),
			Truncated:     outcome.Truncated,
			DurationMs:    duration.Milliseconds(),
			Details: datatypes.JSONMap{
				"has_description": strings.TrimSpace(cmd.Description) != "",
				"retried":         outcome.Attempts > 1,
			},
		}
		if gradeErr == nil {
			finalScore := result.FinalScore
			scaledScore := result.ScaledScore
			record.FinalScore = &finalScore
			record.ScaledScore = &scaledScore
		}
		if err := s.records.Create(sideCtx, &record); err != nil {
			s.logger.Warn().Err(err).Str("correlation_id", cmd.CorrelationID).Msg("failed to persist grading record")
		}
	}

	if s.events != nil {
		event := GradeEvent{
			Type:          GradeEventCompleted,
			CorrelationID: cmd.CorrelationID,
			UserID:        cmd.UserID,
			Outcome:       status,
			MaxScore:      cmd.MaxScore,
			Attempts:      outcome.Attempts,
			Strategy:      string(outcome.Strategy),
			Provider:      providerName,
			OccurredAt:    s.now().UTC(),
		}
		if gradeErr != nil {
			event.Type = GradeEventFailed
		} else {
			finalScore := result.FinalScore
			scaledScore := result.ScaledScore
			event.FinalScore = &finalScore
			event.ScaledScore = &scaledScore
		}
		if err := s.events.Publish(sideCtx, event); err != nil {
			s.logger.Warn().Err(err).Str("correlation_id", cmd.CorrelationID).Msg("failed to publish grade event")
		}
	}
}

// cleanDescription strips markup pasted from rich-text editors, keeping the text.
func (s *gradingService) cleanDescription(description string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(description)))
}

func validateCommand(cmd GradeCommand) error {
	if strings.TrimSpace(cmd.Code) == "" {
		return ErrInvalidCode
	}
	if math.IsNaN(cmd.MaxScore) || math.IsInf(cmd.MaxScore, 0) || cmd.MaxScore <= 0 || cmd.MaxScore > MaxScoreCeiling {
		return ErrInvalidMaxScore
	}
	return nil
}
