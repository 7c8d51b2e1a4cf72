package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assess-api/internal/config"
	"github.com/noah-isme/gema-assess-api/internal/database"
	"github.com/noah-isme/gema-assess-api/internal/grading"
	"github.com/noah-isme/gema-assess-api/internal/handler"
	"github.com/noah-isme/gema-assess-api/internal/middleware"
	"github.com/noah-isme/gema-assess-api/internal/models"
	"github.com/noah-isme/gema-assess-api/internal/repository"
	"github.com/noah-isme/gema-assess-api/internal/router"
	"github.com/noah-isme/gema-assess-api/internal/service"
	"github.com/noah-isme/gema-assess-api/pkg/ai"
	cloud "github.com/noah-isme/gema-assess-api/pkg/cloudinary"
	"github.com/noah-isme/gema-assess-api/pkg/docker"
	"github.com/noah-isme/gema-assess-api/pkg/speech"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(models.AssessmentModels()...); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis url not set, result cache disabled")
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Drain()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	sectionRepo := repository.NewSectionRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	resultRepo := repository.NewResultRepository(db)

	deps := service.EvaluationDependencies{
		Sections:  sectionRepo,
		Questions: questionRepo,
		Results:   resultRepo,
		Events:    service.NewNATSEventPublisher(natsConn, cfg.EventsSubject),
		Cache:     redisClient,
	}

	if pipeline, err := buildPipeline(cfg, logger); err != nil {
		logger.Warn().Err(err).Msg("speech pipeline disabled")
	} else {
		deps.Transcriber = pipeline
	}

	if cfg.CloudinaryCloudName != "" {
		store, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		deps.AudioStore = store
	}

	if cfg.ExaminerEnabled {
		examiner, err := ai.NewOpenAIExaminer(ai.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.ExaminerModel,
			Logger:  logger,
		})
		if err != nil {
			log.Fatalf("failed to create examiner: %v", err)
		}
		deps.Examiner = examiner
	}

	evaluationService := service.NewEvaluationService(deps, service.EvaluationConfig{
		Thresholds:       grading.Thresholds{Writing: cfg.WritingThreshold, Speaking: cfg.SpeakingThreshold},
		BatchConcurrency: cfg.BatchConcurrency,
		CacheTTL:         cfg.ResultsCacheTTL,
	}, validate, logger)
	resultService := service.NewResultService(sectionRepo, questionRepo, resultRepo, grading.NewScoreAggregator(nil), redisClient, cfg.ResultsCacheTTL, validate, logger)

	spokenLimiter := middleware.RateLimit("spoken", cfg.SpokenRateLimit, cfg.SpokenRateWindow)
	assessmentHandler := handler.NewAssessmentHandler(evaluationService, resultService, spokenLimiter, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    int(cfg.SpeechMaxUploadBytes) + 1<<20,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AssessmentHandler: assessmentHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
		ExposeMetrics:     true,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func buildPipeline(cfg config.Config, logger zerolog.Logger) (*speech.Pipeline, error) {
	var backend speech.Backend
	switch cfg.SpeechBackend {
	case "docker":
		runner, err := docker.NewContainerRunner(docker.Config{
			Host:    cfg.DockerHost,
			Timeout: cfg.SpeechTimeout,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		dockerBackend, err := speech.NewDockerBackend(runner, speech.DockerConfig{
			Image: cfg.SpeechDockerImage,
			Model: cfg.SpeechDockerModel,
		})
		if err != nil {
			return nil, err
		}
		backend = dockerBackend
	default:
		openaiBackend, err := speech.NewOpenAIBackend(speech.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
		})
		if err != nil {
			return nil, err
		}
		backend = openaiBackend
	}

	transcoder := speech.NewFFmpegTranscoder(cfg.FFmpegPath, cfg.SpeechVerifyOutput, logger)
	return speech.NewPipeline(transcoder, backend, speech.Config{
		Timeout:  cfg.SpeechTimeout,
		WorkDir:  cfg.SpeechWorkDir,
		Language: cfg.SpeechLanguage,
		MaxBytes: cfg.SpeechMaxUploadBytes,
		Logger:   logger,
	}), nil
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
