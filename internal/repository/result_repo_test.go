package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/gema-assess-api/internal/models"
)

func setupAssessmentTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.AssessmentModels()...))
	return db
}

func seedSection(t *testing.T, db *gorm.DB, module string, answers ...string) (models.Section, []models.Question) {
	t.Helper()
	section := models.Section{Module: module, Title: "Section " + module}
	require.NoError(t, db.Create(&section).Error)

	questions := make([]models.Question, 0, len(answers))
	for i, answer := range answers {
		question := models.Question{SectionID: section.ID, Type: "mcq", Answer: datatypes.JSON(answer), Position: i}
		require.NoError(t, db.Create(&question).Error)
		questions = append(questions, question)
	}
	return section, questions
}

func intPtr(v int) *int { return &v }

func TestResultRepositoryEnsureIsIdempotent(t *testing.T) {
	db := setupAssessmentTestDB(t)
	repo := NewResultRepository(db)
	section, _ := seedSection(t, db, models.ModuleReading, `"a"`)

	first, created, err := repo.Ensure(context.Background(), 7, section.ID, models.ModuleReading)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := repo.Ensure(context.Background(), 7, section.ID, models.ModuleReading)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&models.SubmissionResult{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestResultRepositoryUpsertReplacesInPlace(t *testing.T) {
	db := setupAssessmentTestDB(t)
	repo := NewResultRepository(db)
	section, questions := seedSection(t, db, models.ModuleReading, `"a"`, `"b"`, `"c"`)

	result, _, err := repo.Ensure(context.Background(), 1, section.ID, models.ModuleReading)
	require.NoError(t, err)

	for _, question := range questions {
		record := models.AnswerRecord{ResultID: result.ID, QuestionID: question.ID, SubmittedText: "x", MatchMode: "exact", Status: models.RecordStatusScored}
		require.NoError(t, repo.UpsertRecord(context.Background(), &record))
	}

	replacement := models.AnswerRecord{
		ResultID:             result.ID,
		QuestionID:           questions[0].ID,
		SubmittedText:        "a",
		Candidates:           datatypes.JSONSlice[string]{"a"},
		MatchMode:            "similarity",
		SimilarityPercentage: intPtr(100),
		IsCorrect:            true,
		Status:               models.RecordStatusScored,
	}
	require.NoError(t, repo.UpsertRecord(context.Background(), &replacement))

	stored, err := repo.GetByUserAndSection(context.Background(), 1, section.ID)
	require.NoError(t, err)
	require.Len(t, stored.Records, 3)
	require.Equal(t, questions[0].ID, stored.Records[0].QuestionID)
	require.Equal(t, "a", stored.Records[0].SubmittedText)
	require.True(t, stored.Records[0].IsCorrect)
	require.Equal(t, 100, *stored.Records[0].SimilarityPercentage)
	require.Equal(t, questions[1].ID, stored.Records[1].QuestionID)
	require.Equal(t, questions[2].ID, stored.Records[2].QuestionID)
	require.Equal(t, replacement.ID, stored.Records[0].ID)
}

func TestResultRepositoryUpsertRecordsBulk(t *testing.T) {
	db := setupAssessmentTestDB(t)
	repo := NewResultRepository(db)
	section, questions := seedSection(t, db, models.ModuleListening, `"a"`, `"b"`)

	result, _, err := repo.Ensure(context.Background(), 3, section.ID, models.ModuleListening)
	require.NoError(t, err)

	stored, err := repo.UpsertRecords(context.Background(), []models.AnswerRecord{
		{ResultID: result.ID, QuestionID: questions[0].ID, SubmittedText: "a", IsCorrect: true, Status: models.RecordStatusScored},
		{ResultID: result.ID, QuestionID: questions[1].ID, SubmittedText: "z", Status: models.RecordStatusScored},
	})
	require.NoError(t, err)
	require.Len(t, stored, 2)

	stored, err = repo.UpsertRecords(context.Background(), []models.AnswerRecord{
		{ResultID: result.ID, QuestionID: questions[1].ID, SubmittedText: "b", IsCorrect: true, Status: models.RecordStatusScored},
	})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, "b", stored[0].SubmittedText)

	full, err := repo.GetByUserAndSection(context.Background(), 3, section.ID)
	require.NoError(t, err)
	require.Len(t, full.Records, 2)
	require.Equal(t, questions[0].ID, full.Records[0].QuestionID)
	require.True(t, full.Records[1].IsCorrect)
}

func TestResultRepositoryConcurrentUpsertsKeepOneRecordPerQuestion(t *testing.T) {
	db := setupAssessmentTestDB(t)
	repo := NewResultRepository(db)
	section, questions := seedSection(t, db, models.ModuleReading, `"a"`, `"b"`)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, _, err := repo.Ensure(context.Background(), 9, section.ID, models.ModuleReading)
			if err != nil {
				errs <- err
				return
			}
			record := models.AnswerRecord{ResultID: result.ID, QuestionID: questions[i%2].ID, SubmittedText: fmt.Sprint(i), Status: models.RecordStatusScored}
			errs <- repo.UpsertRecord(context.Background(), &record)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := repo.GetByUserAndSection(context.Background(), 9, section.ID)
	require.NoError(t, err)
	require.Len(t, stored.Records, 2)
}

func TestResultRepositoryListAndStatus(t *testing.T) {
	db := setupAssessmentTestDB(t)
	repo := NewResultRepository(db)
	reading, readingQuestions := seedSection(t, db, models.ModuleReading, `"a"`)
	writing, _ := seedSection(t, db, models.ModuleWriting, `"b"`)

	readingResult, _, err := repo.Ensure(context.Background(), 5, reading.ID, models.ModuleReading)
	require.NoError(t, err)
	_, _, err = repo.Ensure(context.Background(), 5, writing.ID, models.ModuleWriting)
	require.NoError(t, err)

	results, err := repo.List(context.Background(), ResultFilter{UserID: 5})
	require.NoError(t, err)
	require.Len(t, results, 2)

	results, err = repo.List(context.Background(), ResultFilter{UserID: 5, Module: models.ModuleWriting})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, writing.Title, results[0].Section.Title)

	record := models.AnswerRecord{ResultID: readingResult.ID, QuestionID: readingQuestions[0].ID, Status: models.RecordStatusProcessing}
	require.NoError(t, repo.UpsertRecord(context.Background(), &record))
	applied, err := repo.MarkFailed(context.Background(), readingResult.ID, readingQuestions[0].ID, "backend_unavailable")
	require.NoError(t, err)
	require.True(t, applied)

	stored, err := repo.GetByUserAndSection(context.Background(), 5, reading.ID)
	require.NoError(t, err)
	require.Equal(t, models.RecordStatusFailed, stored.Records[0].Status)
	require.Equal(t, "backend_unavailable", stored.Records[0].FailureKind)

	applied, err = repo.MarkFailed(context.Background(), readingResult.ID, 999, "")
	require.NoError(t, err)
	require.False(t, applied)
}

func TestResultRepositoryMarkFailedLeavesScoredRecordAlone(t *testing.T) {
	db := setupAssessmentTestDB(t)
	repo := NewResultRepository(db)
	section, questions := seedSection(t, db, models.ModuleSpeaking, `"hello"`)

	result, _, err := repo.Ensure(context.Background(), 3, section.ID, models.ModuleSpeaking)
	require.NoError(t, err)

	percentage := 100
	scored := models.AnswerRecord{
		ResultID:             result.ID,
		QuestionID:           questions[0].ID,
		SubmittedText:        "hello",
		MatchMode:            "similarity",
		SimilarityPercentage: &percentage,
		IsCorrect:            true,
		Status:               models.RecordStatusScored,
	}
	require.NoError(t, repo.UpsertRecord(context.Background(), &scored))

	applied, err := repo.MarkFailed(context.Background(), result.ID, questions[0].ID, "backend_unavailable")
	require.NoError(t, err)
	require.False(t, applied)

	stored, err := repo.GetByUserAndSection(context.Background(), 3, section.ID)
	require.NoError(t, err)
	require.Len(t, stored.Records, 1)
	require.Equal(t, models.RecordStatusScored, stored.Records[0].Status)
	require.Empty(t, stored.Records[0].FailureKind)
	require.True(t, stored.Records[0].IsCorrect)
	require.True(t, stored.Records[0].IsScored())
}

func TestQuestionRepository(t *testing.T) {
	db := setupAssessmentTestDB(t)
	repo := NewQuestionRepository(db)
	section, questions := seedSection(t, db, models.ModuleReading, `"a"`, `["b","c"]`)

	total, err := repo.CountBySection(context.Background(), section.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), total)

	found, err := repo.ListByIDs(context.Background(), []uint{questions[1].ID, 404})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.JSONEq(t, `["b","c"]`, string(found[questions[1].ID].Answer))

	_, err = repo.GetByID(context.Background(), 404)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	sections := NewSectionRepository(db)
	got, err := sections.GetByID(context.Background(), section.ID)
	require.NoError(t, err)
	require.Equal(t, models.ModuleReading, got.Module)
}
