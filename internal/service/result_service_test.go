package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-assess-api/internal/dto"
	"github.com/noah-isme/gema-assess-api/internal/grading"
	"github.com/noah-isme/gema-assess-api/internal/models"
)

func TestResultServiceSummaryAndCaching(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()
	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})

	fx := newAssessmentFixture(t, models.ModuleReading)
	fx.addQuestion(t, "q1", "mcq", `"a"`)
	fx.addQuestion(t, "q2", "mcq", `"b"`)
	fx.addQuestion(t, "q3", "mcq", `"c"`)
	fx.addQuestion(t, "q4", "mcq", `"d"`)
	evaluator := fx.service(EvaluationDependencies{Cache: redisClient})

	ctx := context.Background()
	_, err = evaluator.SubmitBatch(ctx, 8, fx.section.ID, dto.BatchAnswerRequest{Answers: []dto.AnswerRequest{
		{QuestionID: fx.id("q1"), Answer: grading.TextAnswer("a")},
		{QuestionID: fx.id("q2"), Answer: grading.TextAnswer("b")},
		{QuestionID: fx.id("q3"), Answer: grading.TextAnswer("c")},
		{QuestionID: fx.id("q4"), Answer: grading.TextAnswer("x")},
	}})
	require.NoError(t, err)

	svc := NewResultService(fx.sections, fx.questions, fx.results, grading.NewScoreAggregator(nil), redisClient, time.Minute, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())

	summary, err := svc.Summary(ctx, 8, fx.section.ID)
	require.NoError(t, err)
	require.Equal(t, 4, summary.TotalQuestions)
	require.Equal(t, 3, summary.CorrectAnswers)
	require.Equal(t, 1, summary.WrongAnswers)
	require.Equal(t, 75, summary.Percentage)
	require.Equal(t, string(grading.StatusGood), summary.Status)
	require.Equal(t, 3.0, summary.BandScore)
	require.True(t, mini.Exists(summaryCacheKey(8, fx.section.ID)))

	_, err = evaluator.Submit(ctx, 8, fx.section.ID, dto.AnswerRequest{QuestionID: fx.id("q4"), Answer: grading.TextAnswer("d")})
	require.NoError(t, err)
	require.False(t, mini.Exists(summaryCacheKey(8, fx.section.ID)))

	summary, err = svc.Summary(ctx, 8, fx.section.ID)
	require.NoError(t, err)
	require.Equal(t, 100, summary.Percentage)
	require.Equal(t, string(grading.StatusExcellent), summary.Status)

	_, err = svc.Summary(ctx, 99, fx.section.ID)
	require.ErrorIs(t, err, ErrResultNotFound)

	_, err = svc.Summary(ctx, 8, 4242)
	require.ErrorIs(t, err, ErrSectionNotFound)
}

func TestResultServiceSummaryRejectsEmptySection(t *testing.T) {
	fx := newAssessmentFixture(t, models.ModuleWriting)
	_, _, err := fx.results.Ensure(context.Background(), 1, fx.section.ID, models.ModuleWriting)
	require.NoError(t, err)

	svc := NewResultService(fx.sections, fx.questions, fx.results, grading.NewScoreAggregator(nil), nil, time.Minute, validator.New(), zerolog.Nop())
	_, err = svc.Summary(context.Background(), 1, fx.section.ID)
	require.ErrorIs(t, err, grading.ErrNoQuestions)
}

func TestResultServiceHistoryNumbersPracticeTests(t *testing.T) {
	fx := newAssessmentFixture(t, models.ModuleWriting)
	fx.addQuestion(t, "q1", "free-text", `"hello world"`)

	second := models.Section{Module: models.ModuleWriting, Title: "Practice writing 2"}
	require.NoError(t, fx.db.Create(&second).Error)
	listening := models.Section{Module: models.ModuleListening, Title: "Listening"}
	require.NoError(t, fx.db.Create(&listening).Error)

	ctx := context.Background()
	evaluator := fx.service(EvaluationDependencies{})
	_, err := evaluator.Submit(ctx, 6, fx.section.ID, dto.AnswerRequest{QuestionID: fx.id("q1"), Answer: grading.TextAnswer("hello world")})
	require.NoError(t, err)

	later := time.Now().Add(time.Hour)
	require.NoError(t, fx.db.Create(&models.SubmissionResult{UserID: 6, SectionID: second.ID, Module: models.ModuleWriting, CreatedAt: later}).Error)
	require.NoError(t, fx.db.Create(&models.SubmissionResult{UserID: 6, SectionID: listening.ID, Module: models.ModuleListening}).Error)

	svc := NewResultService(fx.sections, fx.questions, fx.results, grading.NewScoreAggregator(nil), nil, time.Minute, validator.New(), zerolog.Nop())

	history, err := svc.History(ctx, 6, dto.HistoryFilter{Module: models.ModuleWriting})
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "Practice Test-2", history[0].TestNumber)
	require.Equal(t, second.Title, history[0].SectionTitle)
	require.Zero(t, history[0].TotalQuestions)
	require.Equal(t, "Practice Test-1", history[1].TestNumber)
	require.Equal(t, 100, history[1].Percentage)

	_, err = svc.History(ctx, 6, dto.HistoryFilter{Module: "cooking"})
	require.Error(t, err)
}
