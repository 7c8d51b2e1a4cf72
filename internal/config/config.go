package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseDriver         string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	EventsSubject          string
	JWTSecret              string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	WritingThreshold       int
	SpeakingThreshold      int
	BatchConcurrency       int
	ResultsCacheTTL        time.Duration
	SpeechBackend          string
	SpeechTimeout          time.Duration
	SpeechLanguage         string
	FFmpegPath             string
	SpeechWorkDir          string
	SpeechMaxUploadBytes   int64
	SpeechVerifyOutput     bool
	SpeechDockerImage      string
	SpeechDockerModel      string
	SpokenRateLimit        int
	SpokenRateWindow       time.Duration
	DockerHost             string
	OpenAIAPIKey           string
	OpenAIBaseURL          string
	ExaminerEnabled        bool
	ExaminerModel          string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "GEMA Assessment API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("events.subject", "assessment.answer.evaluated")
	v.SetDefault("cloudinary.folder", "gema/speaking")
	v.SetDefault("grading.writing_threshold", 60)
	v.SetDefault("grading.speaking_threshold", 70)
	v.SetDefault("grading.batch_concurrency", 4)
	v.SetDefault("results.cache_ttl", "5m")
	v.SetDefault("speech.backend", "openai")
	v.SetDefault("speech.timeout", "30s")
	v.SetDefault("speech.language", "en")
	v.SetDefault("speech.max_upload_mb", 15)
	v.SetDefault("speech.verify_output", false)
	v.SetDefault("speech.docker_model", "base")
	v.SetDefault("speech.rate_limit", 10)
	v.SetDefault("speech.rate_window", "1m")
	v.SetDefault("ai.examiner_enabled", false)
	v.SetDefault("ai.model", "gpt-4o-mini")
}

func fromViper(v *viper.Viper) (Config, error) {
	setDefaults(v)

	cacheTTL, err := parseDuration(v, "results.cache_ttl")
	if err != nil {
		return Config{}, err
	}
	speechTimeout, err := parseDuration(v, "speech.timeout")
	if err != nil {
		return Config{}, err
	}
	rateWindow, err := parseDuration(v, "speech.rate_window")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseDriver:         strings.ToLower(v.GetString("database.driver")),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		EventsSubject:          v.GetString("events.subject"),
		JWTSecret:              v.GetString("jwt.secret"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		WritingThreshold:       v.GetInt("grading.writing_threshold"),
		SpeakingThreshold:      v.GetInt("grading.speaking_threshold"),
		BatchConcurrency:       v.GetInt("grading.batch_concurrency"),
		ResultsCacheTTL:        cacheTTL,
		SpeechBackend:          strings.ToLower(v.GetString("speech.backend")),
		SpeechTimeout:          speechTimeout,
		SpeechLanguage:         v.GetString("speech.language"),
		FFmpegPath:             v.GetString("speech.ffmpeg_path"),
		SpeechWorkDir:          v.GetString("speech.work_dir"),
		SpeechMaxUploadBytes:   v.GetInt64("speech.max_upload_mb") * 1024 * 1024,
		SpeechVerifyOutput:     v.GetBool("speech.verify_output"),
		SpeechDockerImage:      v.GetString("speech.docker_image"),
		SpeechDockerModel:      v.GetString("speech.docker_model"),
		SpokenRateLimit:        v.GetInt("speech.rate_limit"),
		SpokenRateWindow:       rateWindow,
		DockerHost:             v.GetString("docker_host"),
		OpenAIAPIKey:           v.GetString("openai_api_key"),
		OpenAIBaseURL:          v.GetString("openai_base_url"),
		ExaminerEnabled:        v.GetBool("ai.examiner_enabled"),
		ExaminerModel:          v.GetString("ai.model"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.DatabaseDriver != "postgres" && cfg.DatabaseDriver != "sqlite" {
		return Config{}, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	if cfg.SpeechBackend != "openai" && cfg.SpeechBackend != "docker" {
		return Config{}, fmt.Errorf("unsupported speech backend %q", cfg.SpeechBackend)
	}

	for name, threshold := range map[string]int{"writing": cfg.WritingThreshold, "speaking": cfg.SpeakingThreshold} {
		if threshold < 0 || threshold > 100 {
			return Config{}, fmt.Errorf("%s threshold must be between 0 and 100", name)
		}
	}

	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 4
	}

	if cfg.SpokenRateLimit <= 0 {
		cfg.SpokenRateLimit = 10
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
