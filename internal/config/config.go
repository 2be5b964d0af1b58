// Package config loads portal configuration from environment variables,
// an optional .env file and, for portalctl, a YAML file plus flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/coffeestaff/portal/internal/objects"
)

// Server holds the portal server configuration.
type Server struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Backend API
	BackendURL string
	APITimeout time.Duration

	// Browser sessions
	SessionSecret string
	CookieSecure  bool
	SessionTTL    time.Duration

	// Session state backend ("memory", "redis" or "postgres")
	StateBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DatabaseURL   string

	// Optional direct bucket listing
	S3 objects.Config

	// Library
	PreviewRefresh time.Duration
	MaxUploadSize  int64
}

// LoadDotEnv reads a .env file into the environment when it exists.
// Variables already set win.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadServer reads the server configuration from environment variables
// with defaults.
func LoadServer() (*Server, error) {
	cfg := &Server{
		ListenAddr:     envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:    envOr("METRICS_ADDR", ":9090"),
		LogLevel:       envOr("LOG_LEVEL", "info"),
		LogFormat:      envOr("LOG_FORMAT", "json"),
		BackendURL:     envOr("BACKEND_URL", ""),
		APITimeout:     envDuration("API_TIMEOUT", 10*time.Second),
		SessionSecret:  envOr("SESSION_SECRET", ""),
		CookieSecure:   envBool("COOKIE_SECURE", false),
		SessionTTL:     envDuration("SESSION_TTL", 24*time.Hour),
		StateBackend:   envOr("STATE_BACKEND", "memory"),
		RedisAddr:      envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  envOr("REDIS_PASSWORD", ""),
		RedisDB:        envInt("REDIS_DB", 0),
		DatabaseURL:    envOr("DATABASE_URL", ""),
		PreviewRefresh: envDuration("PREVIEW_REFRESH", 2*time.Minute),
		MaxUploadSize:  envInt64("MAX_UPLOAD_SIZE", 20*1024*1024), // 20MB default
		S3: objects.Config{
			Endpoint:  envOr("S3_ENDPOINT", ""),
			Bucket:    envOr("S3_BUCKET", ""),
			AccessKey: envOr("S3_ACCESS_KEY", ""),
			SecretKey: envOr("S3_SECRET_KEY", ""),
			Region:    envOr("S3_REGION", "us-east-1"),
		},
	}

	if cfg.BackendURL == "" {
		return nil, fmt.Errorf("BACKEND_URL is required")
	}
	if len(cfg.SessionSecret) < 32 {
		return nil, fmt.Errorf("SESSION_SECRET must be at least 32 bytes")
	}
	switch cfg.StateBackend {
	case "memory", "redis":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres state backend")
		}
	default:
		return nil, fmt.Errorf("unknown STATE_BACKEND %q", cfg.StateBackend)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
