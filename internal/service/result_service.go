package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assess-api/internal/dto"
	"github.com/noah-isme/gema-assess-api/internal/grading"
	"github.com/noah-isme/gema-assess-api/internal/models"
	"github.com/noah-isme/gema-assess-api/internal/repository"
)

// ResultService reports on stored attempts.
type ResultService interface {
	GetResult(ctx context.Context, userID, sectionID uint) (dto.SubmissionResultResponse, error)
	Summary(ctx context.Context, userID, sectionID uint) (dto.SummaryResponse, error)
	History(ctx context.Context, userID uint, filter dto.HistoryFilter) ([]dto.HistoryEntry, error)
}

type resultService struct {
	sections   repository.SectionRepository
	questions  repository.QuestionRepository
	results    repository.ResultRepository
	aggregator grading.ScoreAggregator
	cache      *resultCache
	validator  *validator.Validate
	logger     zerolog.Logger
}

// NewResultService builds the reporting service. cache may be nil.
func NewResultService(sections repository.SectionRepository, questions repository.QuestionRepository, results repository.ResultRepository, aggregator grading.ScoreAggregator, cache *redis.Client, ttl time.Duration, validate *validator.Validate, logger zerolog.Logger) ResultService {
	logger = logger.With().Str("component", "result_service").Logger()
	return &resultService{
		sections:   sections,
		questions:  questions,
		results:    results,
		aggregator: aggregator,
		cache:      newResultCache(cache, ttl, logger),
		validator:  validate,
		logger:     logger,
	}
}

func (s *resultService) GetResult(ctx context.Context, userID, sectionID uint) (dto.SubmissionResultResponse, error) {
	if userID == 0 || sectionID == 0 {
		return dto.SubmissionResultResponse{}, grading.ErrInvalidIdentifier
	}

	result, err := s.results.GetByUserAndSection(ctx, userID, sectionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResultResponse{}, ErrResultNotFound
		}
		return dto.SubmissionResultResponse{}, err
	}

	return dto.NewSubmissionResultResponse(result), nil
}

func (s *resultService) Summary(ctx context.Context, userID, sectionID uint) (dto.SummaryResponse, error) {
	if userID == 0 || sectionID == 0 {
		return dto.SummaryResponse{}, grading.ErrInvalidIdentifier
	}

	key := summaryCacheKey(userID, sectionID)
	var cached dto.SummaryResponse
	if s.cache.get(ctx, key, &cached) {
		s.logger.Debug().Uint("user_id", userID).Uint("section_id", sectionID).Msg("summary cache hit")
		return cached, nil
	}

	section, err := s.sections.GetByID(ctx, sectionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SummaryResponse{}, ErrSectionNotFound
		}
		return dto.SummaryResponse{}, err
	}

	result, err := s.results.GetByUserAndSection(ctx, userID, sectionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SummaryResponse{}, ErrResultNotFound
		}
		return dto.SummaryResponse{}, err
	}

	summary, err := s.summarize(ctx, result)
	if err != nil {
		return dto.SummaryResponse{}, err
	}

	response := dto.NewSummaryResponse(section.ID, section.Module, summary)
	s.cache.set(ctx, key, response)

	return response, nil
}

func (s *resultService) History(ctx context.Context, userID uint, filter dto.HistoryFilter) ([]dto.HistoryEntry, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, err
	}
	if userID == 0 {
		return nil, grading.ErrInvalidIdentifier
	}

	key := historyCacheKey(userID, filter.Module)
	var cached []dto.HistoryEntry
	if s.cache.get(ctx, key, &cached) {
		return cached, nil
	}

	results, err := s.results.List(ctx, repository.ResultFilter{UserID: userID, Module: filter.Module})
	if err != nil {
		return nil, err
	}

	entries := make([]dto.HistoryEntry, 0, len(results))
	for i, result := range results {
		entry := dto.HistoryEntry{
			ResultID:     result.ID,
			TestNumber:   fmt.Sprintf("Practice Test-%d", len(results)-i),
			SectionID:    result.SectionID,
			SectionTitle: result.Section.Title,
			Module:       result.Module,
			TestDate:     result.CreatedAt,
		}

		summary, err := s.summarize(ctx, result)
		switch {
		case err == nil:
			entry.SummaryResponse = dto.NewSummaryResponse(result.SectionID, result.Module, summary)
		case errors.Is(err, grading.ErrNoQuestions):
			entry.SummaryResponse = dto.SummaryResponse{SectionID: result.SectionID, Module: result.Module}
		default:
			return nil, err
		}

		entries = append(entries, entry)
	}

	s.cache.set(ctx, key, entries)

	return entries, nil
}

// summarize counts scored correct records against the section's question total.
func (s *resultService) summarize(ctx context.Context, result models.SubmissionResult) (grading.Summary, error) {
	total, err := s.questions.CountBySection(ctx, result.SectionID)
	if err != nil {
		return grading.Summary{}, err
	}

	correct := 0
	for _, record := range result.Records {
		if record.IsScored() && record.IsCorrect {
			correct++
		}
	}

	return s.aggregator.Aggregate(correct, int(total))
}
