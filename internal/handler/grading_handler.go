package handler

import (
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/internal/utils"
	"github.com/noah-isme/gema-grader/pkg/ai"
)

// Messages returned for failed grading runs. Causes are logged, never returned.
const (
	msgInvalidBody        = "invalid request body"
	msgNotConfigured      = "grading service is not configured"
	msgProviderFailed     = "grading provider unavailable"
	msgInvalidFormat      = "grading response could not be interpreted"
	msgInternalError      = "internal server error"
	msgInvalidDescription = "description must be a string"
)

// GradingHandler exposes the automated rubric-grading endpoint.
type GradingHandler struct {
	service   service.GradingService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewGradingHandler constructs the handler.
func NewGradingHandler(service service.GradingService, validator *validator.Validate, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group.
func (h *GradingHandler) Register(router fiber.Router) {
	router.Post("", h.grade)
}

func (h *GradingHandler) grade(c *fiber.Ctx) error {
	var payload dto.GradingRequest
	// decoded directly instead of BodyParser so UnmarshalTypeError.Field names the bad field
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, bodyErrorMessage(err))
	}

	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	result, _, err := h.service.Grade(c.UserContext(), service.GradeCommand{
		Description:   payload.DescriptionValue(),
		Code:          *payload.Code,
		MaxScore:      *payload.MaxScore,
		UserID:        userIDFromContext(c),
		CorrelationID: middleware.GetCorrelationID(c),
	})
	if err != nil {
		return h.handleError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(dto.NewGradingResponse(result))
}

func (h *GradingHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	logger := requestLogger(h.logger, c)

	switch {
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationMessage(validationErrors))
	case errors.Is(err, service.ErrInvalidCode), errors.Is(err, service.ErrInvalidMaxScore):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ai.ErrConfiguration):
		logger.Error().Err(err).Msg("grading requested without provider credentials")
		return utils.SendError(c, fiber.StatusInternalServerError, msgNotConfigured)
	case errors.Is(err, ai.ErrInvalidFormat):
		logger.Error().Err(err).Msg("grading response unparseable after retry")
		return utils.SendError(c, fiber.StatusInternalServerError, msgInvalidFormat)
	case errors.Is(err, ai.ErrUpstream), errors.Is(err, ai.ErrMissingContent):
		logger.Error().Err(err).Msg("grading provider call failed")
		return utils.SendError(c, fiber.StatusInternalServerError, msgProviderFailed)
	default:
		logger.Error().Err(err).Msg("grading failed")
		return utils.SendError(c, fiber.StatusInternalServerError, msgInternalError)
	}
}

// bodyErrorMessage names the offending field when the JSON is well formed but a
// value has the wrong type.
func bodyErrorMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		switch typeErr.Field {
		case "code":
			return service.ErrInvalidCode.Error()
		case "maxScore":
			return service.ErrInvalidMaxScore.Error()
		case "description":
			return msgInvalidDescription
		}
	}
	return msgInvalidBody
}

func validationMessage(errs validator.ValidationErrors) string {
	for _, fieldErr := range errs {
		switch fieldErr.StructField() {
		case "Code":
			return service.ErrInvalidCode.Error()
		case "MaxScore":
			return service.ErrInvalidMaxScore.Error()
		}
	}
	return errs.Error()
}
