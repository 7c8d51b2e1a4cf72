package handler

import (
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assess-api/internal/dto"
	"github.com/noah-isme/gema-assess-api/internal/grading"
	"github.com/noah-isme/gema-assess-api/internal/middleware"
	"github.com/noah-isme/gema-assess-api/internal/service"
	"github.com/noah-isme/gema-assess-api/internal/utils"
	"github.com/noah-isme/gema-assess-api/pkg/speech"
)

// AssessmentHandler exposes answer evaluation and result reporting.
type AssessmentHandler struct {
	evaluations   service.EvaluationService
	results       service.ResultService
	spokenLimiter fiber.Handler
	logger        zerolog.Logger
}

// NewAssessmentHandler builds the handler. spokenLimiter guards audio uploads and may be nil.
func NewAssessmentHandler(evaluations service.EvaluationService, results service.ResultService, spokenLimiter fiber.Handler, logger zerolog.Logger) *AssessmentHandler {
	if spokenLimiter == nil {
		spokenLimiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	return &AssessmentHandler{
		evaluations:   evaluations,
		results:       results,
		spokenLimiter: spokenLimiter,
		logger:        logger.With().Str("component", "assessment_handler").Logger(),
	}
}

// Register attaches the assessment routes to the provided router group.
func (h *AssessmentHandler) Register(router fiber.Router) {
	requireUser := func(next fiber.Handler) fiber.Handler {
		return middleware.WithAuth(next, middleware.AuthOptions{RequireUser: true})
	}

	router.Post("/answers/check", h.check)
	router.Post("/sections/:sectionId/answers", requireUser(h.submit))
	router.Post("/sections/:sectionId/answers/batch", requireUser(h.submitBatch))
	router.Post("/sections/:sectionId/spoken-answers", h.spokenLimiter, requireUser(h.submitSpoken))
	router.Get("/sections/:sectionId/result", requireUser(h.result))
	router.Get("/sections/:sectionId/summary", requireUser(h.summary))
	router.Get("/results", requireUser(h.history))
	router.Get("/users/:userId/results", middleware.RequireRole("teacher", "admin"), h.userHistory)
}

func (h *AssessmentHandler) check(c *fiber.Ctx) error {
	var payload dto.AnswerRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendFailure(c, fiber.StatusBadRequest, "invalid_request", "invalid request body")
	}

	verdict, err := h.evaluations.Check(c.UserContext(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "answer evaluated", verdict)
}

func (h *AssessmentHandler) submit(c *fiber.Ctx) error {
	sectionID, err := grading.ParseID(c.Params("sectionId"))
	if err != nil {
		return h.handleError(c, err)
	}

	var payload dto.AnswerRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendFailure(c, fiber.StatusBadRequest, "invalid_request", "invalid request body")
	}

	record, err := h.evaluations.Submit(c.UserContext(), userIDFromContext(c), sectionID, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "answer recorded", record)
}

func (h *AssessmentHandler) submitBatch(c *fiber.Ctx) error {
	sectionID, err := grading.ParseID(c.Params("sectionId"))
	if err != nil {
		return h.handleError(c, err)
	}

	var payload dto.BatchAnswerRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendFailure(c, fiber.StatusBadRequest, "invalid_request", "invalid request body")
	}

	batch, err := h.evaluations.SubmitBatch(c.UserContext(), userIDFromContext(c), sectionID, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	message := "answers recorded"
	if batch.Failed > 0 {
		message = "answers recorded with errors"
	}
	return utils.SendSuccess(c, message, batch)
}

func (h *AssessmentHandler) submitSpoken(c *fiber.Ctx) error {
	sectionID, err := grading.ParseID(c.Params("sectionId"))
	if err != nil {
		return h.handleError(c, err)
	}

	payload := dto.SpokenAnswerRequest{QuestionID: c.FormValue("question_id")}

	file, err := c.FormFile("audio")
	if err != nil {
		return utils.SendFailure(c, fiber.StatusBadRequest, "invalid_request", "audio file is required")
	}

	reader, err := file.Open()
	if err != nil {
		return utils.SendFailure(c, fiber.StatusBadRequest, "invalid_request", "unable to read audio file")
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return utils.SendFailure(c, fiber.StatusBadRequest, "invalid_request", "unable to read audio file")
	}

	audio := grading.AudioBlob{
		Data:     data,
		MimeType: file.Header.Get(fiber.HeaderContentType),
		FileName: file.Filename,
	}

	record, err := h.evaluations.SubmitSpoken(c.UserContext(), userIDFromContext(c), sectionID, payload, audio)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "spoken answer recorded", record)
}

func (h *AssessmentHandler) result(c *fiber.Ctx) error {
	sectionID, err := grading.ParseID(c.Params("sectionId"))
	if err != nil {
		return h.handleError(c, err)
	}

	result, err := h.results.GetResult(c.UserContext(), userIDFromContext(c), sectionID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "result retrieved", result)
}

func (h *AssessmentHandler) summary(c *fiber.Ctx) error {
	sectionID, err := grading.ParseID(c.Params("sectionId"))
	if err != nil {
		return h.handleError(c, err)
	}

	summary, err := h.results.Summary(c.UserContext(), userIDFromContext(c), sectionID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "summary retrieved", summary)
}

func (h *AssessmentHandler) history(c *fiber.Ctx) error {
	return h.respondHistory(c, userIDFromContext(c))
}

func (h *AssessmentHandler) userHistory(c *fiber.Ctx) error {
	userID, err := grading.ParseID(c.Params("userId"))
	if err != nil {
		return h.handleError(c, err)
	}
	return h.respondHistory(c, userID)
}

func (h *AssessmentHandler) respondHistory(c *fiber.Ctx, userID uint) error {
	filter := dto.HistoryFilter{Module: c.Query("module")}

	history, err := h.results.History(c.UserContext(), userID, filter)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.OK(c, history, "results retrieved", fiber.Map{"total": len(history)})
}

func (h *AssessmentHandler) handleError(c *fiber.Ctx, err error) error {
	kind := service.FailureKind(err)
	switch {
	case isValidationError(err):
		return utils.SendFailure(c, fiber.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, grading.ErrInvalidIdentifier),
		errors.Is(err, grading.ErrInvalidReference),
		errors.Is(err, grading.ErrUnsupportedAnswer),
		errors.Is(err, grading.ErrNoQuestions):
		return utils.SendFailure(c, fiber.StatusBadRequest, kind, err.Error())
	case errors.Is(err, service.ErrQuestionNotFound),
		errors.Is(err, service.ErrSectionNotFound),
		errors.Is(err, service.ErrResultNotFound):
		return utils.SendFailure(c, fiber.StatusNotFound, kind, err.Error())
	case errors.Is(err, speech.ErrTranscodeFailed), errors.Is(err, speech.ErrEmptyTranscript):
		requestLogger(h.logger, c).Warn().Err(err).Str("kind", kind).Msg("spoken answer rejected")
		return utils.SendFailure(c, fiber.StatusUnprocessableEntity, kind, "audio could not be transcribed")
	case errors.Is(err, speech.ErrBackendUnavailable):
		requestLogger(h.logger, c).Error().Err(err).Msg("transcription backend unavailable")
		return utils.SendFailure(c, fiber.StatusServiceUnavailable, kind, "transcription backend unavailable")
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendFailure(c, fiber.StatusInternalServerError, "internal", "internal server error")
	}
}
