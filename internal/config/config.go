package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures runtime configuration for the forecasting service and CLI.
type Config struct {
	ListenAddr      string
	LogLevel        string
	DefaultPlatform string

	DatabaseURL string

	RedisAddr      string
	ScoreCacheSize int
	ScoreCacheTTL  time.Duration

	LLMAPIKey      string
	LLMBaseURL     string
	LLMModel       string
	LLMTemperature float64
	LLMMaxTokens   int
	LLMTimeout     time.Duration

	MinAnalysisLength int

	ModelBucket     string
	ModelPrefix     string
	S3Region        string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	ModelDir        string
	TrainingWorkers int
}

// FromEnv creates a configuration instance sourced from environment variables.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		ListenAddr:        getEnv("SNAP_LISTEN_ADDR", ":8080"),
		LogLevel:          getEnv("SNAP_LOG_LEVEL", "info"),
		DefaultPlatform:   getEnv("SNAP_DEFAULT_PLATFORM", "cookie.fun"),
		DatabaseURL:       getEnv("SNAP_DATABASE_URL", ""),
		RedisAddr:         getEnv("SNAP_REDIS_ADDR", ""),
		ScoreCacheSize:    4096,
		ScoreCacheTTL:     24 * time.Hour,
		LLMAPIKey:         getEnv("SNAP_LLM_API_KEY", ""),
		LLMBaseURL:        getEnv("SNAP_LLM_BASE_URL", ""),
		LLMModel:          getEnv("SNAP_LLM_MODEL", "gpt-4o-mini"),
		LLMTemperature:    0.1,
		LLMMaxTokens:      512,
		LLMTimeout:        20 * time.Second,
		MinAnalysisLength: 20,
		ModelBucket:       getEnv("SNAP_MODEL_BUCKET", ""),
		ModelPrefix:       getEnv("SNAP_MODEL_PREFIX", ""),
		S3Region:          getEnv("SNAP_S3_REGION", "us-east-1"),
		S3Endpoint:        getEnv("SNAP_S3_ENDPOINT", ""),
		S3AccessKey:       getEnv("SNAP_S3_ACCESS_KEY", ""),
		S3SecretKey:       getEnv("SNAP_S3_SECRET_KEY", ""),
		ModelDir:          getEnv("SNAP_MODEL_DIR", "data/models"),
		TrainingWorkers:   2,
	}

	if err := scanInt("SNAP_SCORE_CACHE_SIZE", &cfg.ScoreCacheSize); err != nil {
		return Config{}, err
	}
	if err := scanHours("SNAP_SCORE_CACHE_TTL_H", &cfg.ScoreCacheTTL); err != nil {
		return Config{}, err
	}
	if temp := os.Getenv("SNAP_LLM_TEMPERATURE"); temp != "" {
		if _, err := fmt.Sscanf(temp, "%f", &cfg.LLMTemperature); err != nil {
			return Config{}, fmt.Errorf("parse SNAP_LLM_TEMPERATURE: %w", err)
		}
	}
	if err := scanInt("SNAP_LLM_MAX_TOKENS", &cfg.LLMMaxTokens); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("SNAP_LLM_TIMEOUT_S"); v != "" {
		var seconds int
		if _, err := fmt.Sscanf(v, "%d", &seconds); err != nil {
			return Config{}, fmt.Errorf("parse SNAP_LLM_TIMEOUT_S: %w", err)
		}
		cfg.LLMTimeout = time.Duration(seconds) * time.Second
	}
	if err := scanInt("SNAP_MIN_ANALYSIS_LENGTH", &cfg.MinAnalysisLength); err != nil {
		return Config{}, err
	}
	if err := scanInt("SNAP_TRAINING_WORKERS", &cfg.TrainingWorkers); err != nil {
		return Config{}, err
	}
	if cfg.TrainingWorkers < 1 {
		cfg.TrainingWorkers = 1
	}
	cfg.DefaultPlatform = strings.ToLower(cfg.DefaultPlatform)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.ListenAddr) == "":
		return errors.New("SNAP_LISTEN_ADDR must not be empty")
	case strings.TrimSpace(c.DefaultPlatform) == "":
		return errors.New("SNAP_DEFAULT_PLATFORM must not be empty")
	case c.ScoreCacheSize <= 0:
		return fmt.Errorf("SNAP_SCORE_CACHE_SIZE must be positive, got %d", c.ScoreCacheSize)
	case c.ScoreCacheTTL <= 0:
		return fmt.Errorf("SNAP_SCORE_CACHE_TTL_H must be positive, got %s", c.ScoreCacheTTL)
	case c.LLMTemperature < 0 || c.LLMTemperature > 2:
		return fmt.Errorf("SNAP_LLM_TEMPERATURE must be within [0, 2], got %g", c.LLMTemperature)
	case c.LLMMaxTokens <= 0:
		return fmt.Errorf("SNAP_LLM_MAX_TOKENS must be positive, got %d", c.LLMMaxTokens)
	case c.LLMTimeout <= 0:
		return fmt.Errorf("SNAP_LLM_TIMEOUT_S must be positive, got %s", c.LLMTimeout)
	case c.MinAnalysisLength < 0:
		return fmt.Errorf("SNAP_MIN_ANALYSIS_LENGTH must not be negative, got %d", c.MinAnalysisLength)
	case (c.S3AccessKey == "") != (c.S3SecretKey == ""):
		return errors.New("SNAP_S3_ACCESS_KEY and SNAP_S3_SECRET_KEY must be set together")
	case !c.UseS3() && strings.TrimSpace(c.ModelDir) == "":
		return errors.New("SNAP_MODEL_DIR must be set when SNAP_MODEL_BUCKET is empty")
	}
	return nil
}

// UseS3 reports whether model artifacts go to object storage rather than the local model directory.
func (c Config) UseS3() bool { return c.ModelBucket != "" }

func scanInt(key string, dst *int) error {
	if v := os.Getenv(key); v != "" {
		if _, err := fmt.Sscanf(v, "%d", dst); err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
	}
	return nil
}

func scanHours(key string, dst *time.Duration) error {
	if v := os.Getenv(key); v != "" {
		var hours int
		if _, err := fmt.Sscanf(v, "%d", &hours); err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		*dst = time.Duration(hours) * time.Hour
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
