package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assess-api/internal/dto"
	"github.com/noah-isme/gema-assess-api/internal/grading"
	"github.com/noah-isme/gema-assess-api/internal/models"
	"github.com/noah-isme/gema-assess-api/internal/observability"
	"github.com/noah-isme/gema-assess-api/internal/repository"
	"github.com/noah-isme/gema-assess-api/pkg/ai"
	"github.com/noah-isme/gema-assess-api/pkg/speech"
)

// AudioStore persists a recording and returns a reference to it.
type AudioStore interface {
	Store(ctx context.Context, name string, reader io.Reader) (string, error)
}

// Transcriber turns a recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, fileName, declaredType string) (speech.Result, error)
}

// EvaluationService grades answers and records them against a user's section attempt.
type EvaluationService interface {
	Check(ctx context.Context, req dto.AnswerRequest) (dto.CheckResponse, error)
	Submit(ctx context.Context, userID, sectionID uint, req dto.AnswerRequest) (dto.AnswerRecordResponse, error)
	SubmitBatch(ctx context.Context, userID, sectionID uint, req dto.BatchAnswerRequest) (dto.BatchAnswerResponse, error)
	SubmitSpoken(ctx context.Context, userID, sectionID uint, req dto.SpokenAnswerRequest, audio grading.AudioBlob) (dto.AnswerRecordResponse, error)
}

// EvaluationConfig tunes grading. Thresholds are used as given; zero means
// every non-empty answer passes.
type EvaluationConfig struct {
	Thresholds       grading.Thresholds
	BatchConcurrency int
	CacheTTL         time.Duration
}

// EvaluationDependencies groups the collaborators of the evaluation service.
// Transcriber, AudioStore, Examiner, Events and Cache are optional.
type EvaluationDependencies struct {
	Sections    repository.SectionRepository
	Questions   repository.QuestionRepository
	Results     repository.ResultRepository
	Transcriber Transcriber
	AudioStore  AudioStore
	Examiner    ai.Examiner
	Events      EventPublisher
	Cache       *redis.Client
}

type evaluationService struct {
	sections    repository.SectionRepository
	questions   repository.QuestionRepository
	results     repository.ResultRepository
	transcriber Transcriber
	audio       AudioStore
	examiner    ai.Examiner
	events      EventPublisher
	cache       *resultCache
	cfg         EvaluationConfig
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewEvaluationService constructs the evaluation service.
func NewEvaluationService(deps EvaluationDependencies, cfg EvaluationConfig, validate *validator.Validate, logger zerolog.Logger) EvaluationService {
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 4
	}

	events := deps.Events
	if events == nil {
		events = noopEventPublisher{}
	}

	logger = logger.With().Str("component", "evaluation_service").Logger()

	return &evaluationService{
		sections:    deps.Sections,
		questions:   deps.Questions,
		results:     deps.Results,
		transcriber: deps.Transcriber,
		audio:       deps.AudioStore,
		examiner:    deps.Examiner,
		events:      events,
		cache:       newResultCache(deps.Cache, cfg.CacheTTL, logger),
		cfg:         cfg,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger,
		tracer:      otel.Tracer("github.com/noah-isme/gema-assess-api/internal/service/evaluation"),
		now:         time.Now,
	}
}

// graded is the outcome of evaluating one textual answer.
type graded struct {
	question models.Question
	qt       grading.QuestionType
	verdict  grading.Verdict
	examiner *ai.ExaminerResult
}

func (s *evaluationService) Check(ctx context.Context, req dto.AnswerRequest) (dto.CheckResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.CheckResponse{}, err
	}

	questionID, err := grading.ParseID(req.QuestionID)
	if err != nil {
		return dto.CheckResponse{}, err
	}

	question, err := s.loadQuestion(ctx, questionID)
	if err != nil {
		return dto.CheckResponse{}, err
	}

	result, err := s.grade(ctx, question, req.Answer, false)
	if err != nil {
		return dto.CheckResponse{}, err
	}

	return dto.CheckResponse{
		QuestionID:           question.ID,
		MatchMode:            string(result.verdict.Mode),
		SubmittedText:        result.verdict.SubmittedText,
		ReferenceCandidates:  result.verdict.Candidates,
		SimilarityPercentage: result.verdict.Percentage,
		IsCorrect:            result.verdict.IsCorrect,
	}, nil
}

func (s *evaluationService) Submit(ctx context.Context, userID, sectionID uint, req dto.AnswerRequest) (dto.AnswerRecordResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.AnswerRecordResponse{}, err
	}
	if userID == 0 {
		return dto.AnswerRecordResponse{}, grading.ErrInvalidIdentifier
	}

	section, err := s.loadSection(ctx, sectionID)
	if err != nil {
		return dto.AnswerRecordResponse{}, err
	}

	questionID, err := grading.ParseID(req.QuestionID)
	if err != nil {
		return dto.AnswerRecordResponse{}, err
	}

	question, err := s.loadSectionQuestion(ctx, section, questionID)
	if err != nil {
		return dto.AnswerRecordResponse{}, err
	}

	result, err := s.grade(ctx, question, req.Answer, true)
	if err != nil {
		return dto.AnswerRecordResponse{}, err
	}

	attempt, _, err := s.results.Ensure(ctx, userID, section.ID, section.Module)
	if err != nil {
		return dto.AnswerRecordResponse{}, err
	}

	record := scoredRecord(attempt.ID, result, "")
	if err := s.results.UpsertRecord(ctx, &record); err != nil {
		return dto.AnswerRecordResponse{}, err
	}

	s.afterWrite(ctx, userID, section, record)

	return dto.NewAnswerRecordResponse(record), nil
}

func (s *evaluationService) SubmitBatch(ctx context.Context, userID, sectionID uint, req dto.BatchAnswerRequest) (dto.BatchAnswerResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.BatchAnswerResponse{}, err
	}
	if userID == 0 {
		return dto.BatchAnswerResponse{}, grading.ErrInvalidIdentifier
	}

	ctx, span := s.tracer.Start(ctx, "assessment.submit_batch", trace.WithAttributes(
		attribute.Int("assessment.batch_size", len(req.Answers)),
		attribute.Int64("assessment.section_id", int64(sectionID)),
	))
	defer span.End()

	section, err := s.loadSection(ctx, sectionID)
	if err != nil {
		return dto.BatchAnswerResponse{}, err
	}

	items := make([]dto.BatchItemResult, len(req.Answers))
	itemErrs := make([]error, len(req.Answers))
	questionIDs := make([]uint, len(req.Answers))
	lookup := make([]uint, 0, len(req.Answers))

	for i, answer := range req.Answers {
		items[i] = dto.BatchItemResult{Index: i, QuestionID: answer.QuestionID}
		id, err := grading.ParseID(answer.QuestionID)
		if err != nil {
			itemErrs[i] = err
			continue
		}
		questionIDs[i] = id
		lookup = append(lookup, id)
	}

	questions, err := s.questions.ListByIDs(ctx, lookup)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load questions failed")
		return dto.BatchAnswerResponse{}, err
	}

	outcomes := make([]*graded, len(req.Answers))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.BatchConcurrency)

	for i := range req.Answers {
		if itemErrs[i] != nil {
			continue
		}
		group.Go(func() error {
			question, ok := questions[questionIDs[i]]
			if !ok || question.SectionID != section.ID {
				itemErrs[i] = fmt.Errorf("%w: %d", ErrQuestionNotFound, questionIDs[i])
				return nil
			}

			result, err := s.grade(groupCtx, question, req.Answers[i].Answer, true)
			if err != nil {
				itemErrs[i] = err
				return nil
			}
			outcomes[i] = &result
			return nil
		})
	}
	_ = group.Wait()

	// a later answer to the same question wins
	latest := make(map[uint]int, len(outcomes))
	order := make([]uint, 0, len(outcomes))
	for i, outcome := range outcomes {
		if outcome == nil {
			continue
		}
		if _, seen := latest[outcome.question.ID]; !seen {
			order = append(order, outcome.question.ID)
		}
		latest[outcome.question.ID] = i
	}

	stored := map[uint]models.AnswerRecord{}
	if len(order) > 0 {
		attempt, _, err := s.results.Ensure(ctx, userID, section.ID, section.Module)
		if err != nil {
			return dto.BatchAnswerResponse{}, err
		}

		records := make([]models.AnswerRecord, 0, len(order))
		for _, questionID := range order {
			records = append(records, scoredRecord(attempt.ID, *outcomes[latest[questionID]], ""))
		}

		saved, err := s.results.UpsertRecords(ctx, records)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "persist records failed")
			return dto.BatchAnswerResponse{}, err
		}

		for _, record := range saved {
			stored[record.QuestionID] = record
			s.publish(ctx, userID, section, record)
		}
		s.cache.invalidate(ctx, userID, section.ID, section.Module)
	}

	response := dto.BatchAnswerResponse{SectionID: section.ID, Items: items}
	for i := range items {
		if itemErrs[i] != nil {
			kind := FailureKind(itemErrs[i])
			observability.BatchItemFailures().WithLabelValues(kind).Inc()
			items[i].Error = &dto.ItemError{Kind: kind, Message: itemMessage(itemErrs[i])}
			response.Failed++
			continue
		}

		record, ok := stored[outcomes[i].question.ID]
		if !ok {
			items[i].Error = &dto.ItemError{Kind: "internal", Message: "record was not stored"}
			response.Failed++
			continue
		}
		mapped := dto.NewAnswerRecordResponse(record)
		items[i].Record = &mapped
		response.Succeeded++
	}

	span.SetAttributes(
		attribute.Int("assessment.batch_succeeded", response.Succeeded),
		attribute.Int("assessment.batch_failed", response.Failed),
	)

	return response, nil
}

func (s *evaluationService) SubmitSpoken(ctx context.Context, userID, sectionID uint, req dto.SpokenAnswerRequest, audio grading.AudioBlob) (dto.AnswerRecordResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.AnswerRecordResponse{}, err
	}
	if userID == 0 {
		return dto.AnswerRecordResponse{}, grading.ErrInvalidIdentifier
	}
	if s.transcriber == nil {
		return dto.AnswerRecordResponse{}, speech.ErrBackendUnavailable
	}

	ctx, span := s.tracer.Start(ctx, "assessment.submit_spoken", trace.WithAttributes(
		attribute.Int64("assessment.section_id", int64(sectionID)),
		attribute.Int("assessment.audio_bytes", len(audio.Data)),
	))
	defer span.End()

	section, err := s.loadSection(ctx, sectionID)
	if err != nil {
		return dto.AnswerRecordResponse{}, err
	}

	questionID, err := grading.ParseID(req.QuestionID)
	if err != nil {
		return dto.AnswerRecordResponse{}, err
	}

	question, err := s.loadSectionQuestion(ctx, section, questionID)
	if err != nil {
		return dto.AnswerRecordResponse{}, err
	}

	qt, ok := grading.ParseQuestionType(question.Type)
	if !ok || qt != grading.QuestionSpoken {
		return dto.AnswerRecordResponse{}, fmt.Errorf("%w: question %d is not a spoken question", grading.ErrUnsupportedAnswer, question.ID)
	}
	if len(grading.Normalize(json.RawMessage(question.Answer))) == 0 {
		return dto.AnswerRecordResponse{}, grading.ErrInvalidReference
	}

	audioRef := s.storeAudio(ctx, audio)

	attempt, _, err := s.results.Ensure(ctx, userID, section.ID, section.Module)
	if err != nil {
		return dto.AnswerRecordResponse{}, err
	}

	placeholder := models.AnswerRecord{
		ResultID:   attempt.ID,
		QuestionID: question.ID,
		MatchMode:  string(grading.MatchSimilarity),
		AudioRef:   audioRef,
		Status:     models.RecordStatusProcessing,
	}
	if err := s.results.UpsertRecord(ctx, &placeholder); err != nil {
		return dto.AnswerRecordResponse{}, err
	}
	s.cache.invalidate(ctx, userID, section.ID, section.Module)

	transcript, err := s.transcriber.Transcribe(ctx, audio.Data, audio.FileName, audio.MimeType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, FailureKind(err))
		s.markFailed(ctx, userID, section, placeholder, FailureKind(err))
		return dto.AnswerRecordResponse{}, err
	}

	result, err := s.gradeText(ctx, question, grading.QuestionSpoken, grading.TextAnswer(transcript.Transcript))
	if err != nil {
		s.markFailed(ctx, userID, section, placeholder, FailureKind(err))
		return dto.AnswerRecordResponse{}, err
	}

	record := scoredRecord(attempt.ID, result, audioRef)
	if err := s.results.UpsertRecord(ctx, &record); err != nil {
		return dto.AnswerRecordResponse{}, err
	}

	s.afterWrite(ctx, userID, section, record)

	return dto.NewAnswerRecordResponse(record), nil
}

// grade evaluates a textual answer. persisted reports whether the answer is
// headed for a record: spoken questions only accept text through Check.
func (s *evaluationService) grade(ctx context.Context, question models.Question, answer grading.SubmittedAnswer, persisted bool) (graded, error) {
	qt, ok := grading.ParseQuestionType(question.Type)
	if !ok {
		return graded{}, fmt.Errorf("%w: unknown question type %q", grading.ErrInvalidReference, question.Type)
	}
	if persisted && qt == grading.QuestionSpoken {
		return graded{}, fmt.Errorf("%w: spoken questions take a recording", grading.ErrUnsupportedAnswer)
	}

	return s.gradeText(ctx, question, qt, answer)
}

func (s *evaluationService) gradeText(ctx context.Context, question models.Question, qt grading.QuestionType, answer grading.SubmittedAnswer) (graded, error) {
	_, span := s.tracer.Start(ctx, "assessment.evaluate", trace.WithAttributes(
		attribute.Int64("assessment.question_id", int64(question.ID)),
		attribute.String("assessment.question_type", string(qt)),
	))
	defer span.End()

	if qt == grading.QuestionFreeText {
		answer = s.sanitize(answer)
	}

	verdict, err := s.cfg.Thresholds.Evaluate(qt, answer, json.RawMessage(question.Answer))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, FailureKind(err))
		return graded{}, err
	}

	observability.Evaluations().WithLabelValues(string(verdict.Mode), strconv.FormatBool(verdict.IsCorrect)).Inc()
	span.SetAttributes(attribute.Bool("assessment.correct", verdict.IsCorrect))

	result := graded{question: question, qt: qt, verdict: verdict}
	if verdict.Mode == grading.MatchSimilarity {
		result.examiner = s.examine(ctx, question, qt, verdict)
	}

	return result, nil
}

func (s *evaluationService) examine(ctx context.Context, question models.Question, qt grading.QuestionType, verdict grading.Verdict) *ai.ExaminerResult {
	if s.examiner == nil || strings.TrimSpace(verdict.SubmittedText) == "" {
		return nil
	}

	module := "writing"
	if qt == grading.QuestionSpoken {
		module = "speaking"
	}

	result, err := s.examiner.Examine(ctx, ai.ExaminerInput{
		Module:       module,
		QuestionType: string(qt),
		Prompt:       question.Prompt,
		References:   verdict.Candidates,
		Answer:       verdict.SubmittedText,
	})
	if err != nil {
		s.logger.Warn().Err(err).Uint("question_id", question.ID).Msg("examiner unavailable, keeping similarity verdict only")
		return nil
	}

	return &result
}

func (s *evaluationService) sanitize(answer grading.SubmittedAnswer) grading.SubmittedAnswer {
	clean := func(value string) string {
		return html.UnescapeString(s.sanitizer.Sanitize(value))
	}

	switch answer.Kind {
	case grading.KindList:
		items := make([]string, len(answer.Items))
		for i, item := range answer.Items {
			items[i] = clean(item)
		}
		return grading.ListAnswer(items...)
	case grading.KindScalar:
		return grading.TextAnswer(clean(answer.Text))
	default:
		return answer
	}
}

func (s *evaluationService) storeAudio(ctx context.Context, audio grading.AudioBlob) string {
	if s.audio == nil || len(audio.Data) == 0 {
		return ""
	}

	name := audio.FileName
	if name == "" {
		name = "recording"
	}

	ref, err := s.audio.Store(ctx, name, bytes.NewReader(audio.Data))
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to store recording, continuing without audio reference")
		return ""
	}
	return ref
}

func (s *evaluationService) markFailed(ctx context.Context, userID uint, section models.Section, placeholder models.AnswerRecord, kind string) {
	applied, err := s.results.MarkFailed(ctx, placeholder.ResultID, placeholder.QuestionID, kind)
	if err != nil {
		s.logger.Error().Err(err).Uint("question_id", placeholder.QuestionID).Msg("failed to mark spoken answer as failed")
		return
	}
	if !applied {
		s.logger.Info().Uint("question_id", placeholder.QuestionID).Msg("spoken answer superseded by a later submission, keeping it")
		return
	}

	placeholder.Status = models.RecordStatusFailed
	placeholder.FailureKind = kind
	s.afterWrite(ctx, userID, section, placeholder)
}

func (s *evaluationService) afterWrite(ctx context.Context, userID uint, section models.Section, record models.AnswerRecord) {
	s.publish(ctx, userID, section, record)
	s.cache.invalidate(ctx, userID, section.ID, section.Module)
}

func (s *evaluationService) publish(ctx context.Context, userID uint, section models.Section, record models.AnswerRecord) {
	event := dto.AnswerEvaluatedEvent{
		UserID:      userID,
		SectionID:   section.ID,
		QuestionID:  record.QuestionID,
		Module:      section.Module,
		Status:      record.Status,
		IsCorrect:   record.IsCorrect,
		FailureKind: record.FailureKind,
		EvaluatedAt: s.now().UTC(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Uint("question_id", record.QuestionID).Msg("failed to publish answer event")
	}
}

func (s *evaluationService) loadSection(ctx context.Context, id uint) (models.Section, error) {
	if id == 0 {
		return models.Section{}, grading.ErrInvalidIdentifier
	}

	section, err := s.sections.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Section{}, ErrSectionNotFound
		}
		return models.Section{}, err
	}
	return section, nil
}

func (s *evaluationService) loadQuestion(ctx context.Context, id uint) (models.Question, error) {
	question, err := s.questions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Question{}, ErrQuestionNotFound
		}
		return models.Question{}, err
	}
	return question, nil
}

func (s *evaluationService) loadSectionQuestion(ctx context.Context, section models.Section, id uint) (models.Question, error) {
	question, err := s.loadQuestion(ctx, id)
	if err != nil {
		return models.Question{}, err
	}
	if question.SectionID != section.ID {
		return models.Question{}, ErrQuestionNotFound
	}
	return question, nil
}

func scoredRecord(resultID uint, result graded, audioRef string) models.AnswerRecord {
	record := models.AnswerRecord{
		ResultID:             resultID,
		QuestionID:           result.question.ID,
		SubmittedText:        result.verdict.SubmittedText,
		Candidates:           datatypes.JSONSlice[string](result.verdict.Candidates),
		MatchMode:            string(result.verdict.Mode),
		SimilarityPercentage: result.verdict.Percentage,
		IsCorrect:            result.verdict.IsCorrect,
		AudioRef:             audioRef,
		Status:               models.RecordStatusScored,
	}
	if result.examiner != nil {
		score := result.examiner.Score
		record.ExaminerScore = &score
		record.ExaminerFeedback = result.examiner.Feedback
	}
	return record
}

func itemMessage(err error) string {
	if FailureKind(err) == "internal" {
		return "internal error"
	}
	return err.Error()
}
