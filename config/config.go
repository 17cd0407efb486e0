package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server settings
	ServerPort   string        `validate:"required"`
	ReadTimeout  time.Duration `validate:"gt=0"`
	WriteTimeout time.Duration `validate:"gt=0"`
	IdleTimeout  time.Duration
	Debug        bool

	// Application paths
	LogDir string

	// Request and shutdown timeouts
	RequestTimeout  time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`

	// Language defaults
	DefaultSourceLang string `validate:"required"`
	DefaultTargetLang string `validate:"required"`

	Database  DatabaseConfig
	Upstream  UpstreamConfig
	LLM       LLMConfig
	Summary   GuidanceConfig
	Glossary  GuidanceConfig
	Context   ContextConfig
	Queue     QueueConfig
	Cache     CacheConfig
	Segmenter SegmenterConfig
	RateLimit RateLimitConfig

	// Admin introspection; empty token disables /admin/stats.
	AdminToken string

	Version string
}

type DatabaseConfig struct {
	Path               string `validate:"required"`
	MaxConnections     int    `validate:"gt=0"`
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

type UpstreamConfig struct {
	BaseURL      string        `validate:"required,url"`
	FetchTimeout time.Duration `validate:"gt=0"`
	UserAgent    string
}

type LLMConfig struct {
	BaseURL string
	Model   string `validate:"required"`
	APIKey  string
	Timeout time.Duration `validate:"gt=0"`
}

// GuidanceConfig covers the optional summary and glossary passes.
type GuidanceConfig struct {
	Enabled    bool
	MaxTokens  int `validate:"gt=0"`
	ChunkChars int `validate:"gt=0"`
}

type ContextConfig struct {
	Enabled        bool
	BatchSize      int `validate:"gt=0"`
	PrecedingLines int `validate:"gte=0"`
	FollowingLines int `validate:"gte=0"`
	Concurrency    int `validate:"gt=0"`
	BatchRetries   int `validate:"gte=0"`
	MaxTokens      int `validate:"gt=0"`
}

type QueueConfig struct {
	Concurrency int           `validate:"gt=0"`
	QueueSize   int           `validate:"gt=0"`
	MaxRetries  int           `validate:"gte=0"`
	RetryBase   time.Duration `validate:"gt=0"`
	JobTimeout  time.Duration `validate:"gt=0"`
}

type CacheConfig struct {
	TTL             time.Duration `validate:"gt=0"`
	LRUMaxItems     int           `validate:"gt=0"`
	CleanupInterval time.Duration `validate:"gt=0"`
}

type SegmenterConfig struct {
	MinDurationMs  int64 `validate:"gt=0"`
	MaxDurationMs  int64 `validate:"gt=0"`
	GapThresholdMs int64 `validate:"gt=0"`
	MaxChars       int
	MaxWords       int
	OverlapGapMs   int64 `validate:"gte=0"`
}

type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	BurstSize         int
}

// Load reads configuration from the environment, with an optional .env
// file for local development.
func Load() (*Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:   getEnv("SERVER_PORT", "8080"),
		ReadTimeout:  getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
		WriteTimeout: getEnvAsDuration("WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:  getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
		Debug:        getEnvAsBool("DEBUG", false),

		LogDir: getEnv("LOG_DIR", "./logs"),

		RequestTimeout:  getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),

		DefaultSourceLang: getEnv("DEFAULT_SOURCE_LANG", "en"),
		DefaultTargetLang: getEnv("DEFAULT_TARGET_LANG", "zh-CN"),

		Database: DatabaseConfig{
			Path:               getEnv("DB_PATH", "./data/subtitles.db"),
			MaxConnections:     getEnvAsInt("DB_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DB_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		},

		Upstream: UpstreamConfig{
			BaseURL:      getEnv("YOUTUBE_TIMEDTEXT_URL", "https://www.youtube.com/api/timedtext"),
			FetchTimeout: getEnvAsDuration("UPSTREAM_FETCH_TIMEOUT", 5*time.Second),
			UserAgent: getEnv("UPSTREAM_USER_AGENT",
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
		},

		LLM: LLMConfig{
			BaseURL: getEnv("LLM_BASE_URL", ""),
			Model:   getEnv("LLM_MODEL", "gpt-4o-mini"),
			APIKey:  getEnv("LLM_API_KEY", ""),
			Timeout: getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),
		},

		Summary: GuidanceConfig{
			Enabled:    getEnvAsBool("SUMMARY_ENABLED", true),
			MaxTokens:  getEnvAsInt("SUMMARY_MAX_TOKENS", 512),
			ChunkChars: getEnvAsInt("SUMMARY_CHUNK_CHARS", 6000),
		},

		Glossary: GuidanceConfig{
			Enabled:    getEnvAsBool("GLOSSARY_ENABLED", true),
			MaxTokens:  getEnvAsInt("GLOSSARY_MAX_TOKENS", 512),
			ChunkChars: getEnvAsInt("GLOSSARY_CHUNK_CHARS", 6000),
		},

		Context: ContextConfig{
			Enabled:        getEnvAsBool("CONTEXT_ENABLED", true),
			BatchSize:      getEnvAsInt("CONTEXT_BATCH_SIZE", 8),
			PrecedingLines: getEnvAsInt("CONTEXT_PRECEDING_LINES", 3),
			FollowingLines: getEnvAsInt("CONTEXT_FOLLOWING_LINES", 2),
			Concurrency:    getEnvAsInt("CONTEXT_CONCURRENCY", 3),
			BatchRetries:   getEnvAsInt("CONTEXT_BATCH_RETRIES", 2),
			MaxTokens:      getEnvAsInt("CONTEXT_MAX_TOKENS", 2048),
		},

		Queue: QueueConfig{
			Concurrency: getEnvAsInt("QUEUE_CONCURRENCY", 2),
			QueueSize:   getEnvAsInt("QUEUE_SIZE", 100),
			MaxRetries:  getEnvAsInt("QUEUE_MAX_RETRIES", 3),
			RetryBase:   getEnvAsDuration("QUEUE_RETRY_BASE", 30*time.Second),
			JobTimeout:  getEnvAsDuration("QUEUE_JOB_TIMEOUT", 10*time.Minute),
		},

		Cache: CacheConfig{
			TTL:             getEnvAsDuration("CACHE_TTL", 72*time.Hour),
			LRUMaxItems:     getEnvAsInt("CACHE_LRU_MAX_ITEMS", 1000),
			CleanupInterval: getEnvAsDuration("CACHE_CLEANUP_INTERVAL", time.Hour),
		},

		Segmenter: SegmenterConfig{
			MinDurationMs:  getEnvAsInt64("SEGMENT_MIN_DURATION_MS", 3000),
			MaxDurationMs:  getEnvAsInt64("SEGMENT_MAX_DURATION_MS", 7000),
			GapThresholdMs: getEnvAsInt64("SEGMENT_GAP_MS", 1200),
			MaxChars:       getEnvAsInt("SEGMENT_MAX_CHARS", 0),
			MaxWords:       getEnvAsInt("SEGMENT_MAX_WORDS", 0),
			OverlapGapMs:   getEnvAsInt64("SRV3_OVERLAP_GAP_MS", 100),
		},

		RateLimit: RateLimitConfig{
			Enabled:           getEnvAsBool("RATE_LIMIT_ENABLED", false),
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_RPM", 120),
			BurstSize:         getEnvAsInt("RATE_LIMIT_BURST", 20),
		},

		AdminToken: getEnv("ADMIN_TOKEN", ""),

		Version: getEnv("VERSION", "1.0.0"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Segmenter.MaxDurationMs <= c.Segmenter.MinDurationMs {
		return fmt.Errorf("segment max duration must exceed min duration")
	}

	// Create directories we will write to.
	paths := []struct {
		path string
		name string
	}{
		{c.LogDir, "log directory"},
		{filepath.Dir(c.Database.Path), "database directory"},
	}
	for _, p := range paths {
		if err := os.MkdirAll(p.path, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", p.name, err)
		}
	}

	return nil
}

// Helper functions for reading environment variables
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
