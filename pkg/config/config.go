package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// WorkerType selects which loop the worker binary runs.
type WorkerType string

const (
	WorkerSubmission WorkerType = "submission"
	WorkerGrading    WorkerType = "grading"
)

// Config holds all runtime configuration, sourced from the environment.
type Config struct {
	DatabaseURL     string
	RedisURL        string
	TokenSigningKey string

	HTTPAddr    string
	MetricsAddr string

	WorkerType        WorkerType
	SubmissionWorkers int

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	SessionTTL      time.Duration
	OTPTTL          time.Duration
	ForceLogoutTTL  time.Duration

	PollInterval    time.Duration
	BlockingTimeout time.Duration
	EmptyThreshold  time.Duration
	CheckInterval   time.Duration

	OTLPEndpoint       string
	CORSAllowedOrigins string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		TokenSigningKey: os.Getenv("TOKEN_SIGNING_KEY"),

		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9091"),

		WorkerType:        WorkerType(getEnv("WORKER_TYPE", string(WorkerSubmission))),
		SubmissionWorkers: getEnvInt("SUBMISSION_WORKERS", 4),

		AccessTokenTTL:  getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: getEnvDuration("REFRESH_TOKEN_TTL", 720*time.Hour),
		SessionTTL:      getEnvDuration("SESSION_TTL", 720*time.Hour),
		OTPTTL:          getEnvDuration("OTP_TTL", 5*time.Minute),
		ForceLogoutTTL:  getEnvDuration("FORCE_LOGOUT_TTL", 5*time.Minute),

		PollInterval:    getEnvDuration("POLL_INTERVAL", time.Second),
		BlockingTimeout: getEnvDuration("BLOCKING_TIMEOUT", 2*time.Second),
		EmptyThreshold:  getEnvDuration("EMPTY_THRESHOLD", 60*time.Second),
		CheckInterval:   getEnvDuration("CHECK_INTERVAL", 30*time.Second),

		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.TokenSigningKey == "" {
		return nil, fmt.Errorf("TOKEN_SIGNING_KEY is required")
	}
	if cfg.WorkerType != WorkerSubmission && cfg.WorkerType != WorkerGrading {
		return nil, fmt.Errorf("WORKER_TYPE must be %q or %q, got %q", WorkerSubmission, WorkerGrading, cfg.WorkerType)
	}
	if cfg.SubmissionWorkers < 1 {
		return nil, fmt.Errorf("SUBMISSION_WORKERS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
