package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port     string
	MongoURI string
	RedisURL string

	// Upstream model microservices
	EncoderURL string // embedding service (POST /encode)
	ModelURL   string // generation service (POST /generate-reply)

	// Auth
	JWTSecret string

	// RAG tuning
	ChunkSizeBytes  int     // max bytes per memory chunk
	MaxContextSize  int     // max retrieved context items per source
	ScoreThreshold  float64 // similarity cutoff applied after vector search
	HistoryWindow   int     // conversation turns handed to the generator
	NumCandidates   int     // vector search candidate pool
	FileSizeLimitMB int

	// Upstream call policy
	EmbedTimeout         time.Duration
	GenerateTimeout      time.Duration
	RetrievalTaskTimeout time.Duration
	MaxRetries           int
	BackoffBase          time.Duration
	EmbedRatePerSec      float64

	// Retention of soft-deleted memories
	RetentionCron string
	RetentionDays int

	// Generation overrides file (YAML, hot-reloaded)
	OverridesPath string
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "5000"),
		MongoURI: getEnv("MONGODB_URI", ""),
		RedisURL: getEnv("REDIS_URL", ""),

		EncoderURL: getEnv("ENCODER_SERVER", "http://localhost:5001/encode"),
		ModelURL:   getEnv("MODEL_SERVER", "http://localhost:5002/generate-reply"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		ChunkSizeBytes:  getIntEnv("CHUNK_SIZE_BYTES", 512),
		MaxContextSize:  getIntEnv("MAX_CONTEXT_SIZE", 5),
		ScoreThreshold:  getFloatEnv("SCORE_THRESHOLD", 0.65),
		HistoryWindow:   getIntEnv("HISTORY_WINDOW", 5),
		NumCandidates:   getIntEnv("NUM_CANDIDATES", 100),
		FileSizeLimitMB: getIntEnv("FILE_SIZE_LIMIT_MB", 10),

		EmbedTimeout:         getDurationEnv("EMBED_TIMEOUT", 30*time.Second),
		GenerateTimeout:      getDurationEnv("GENERATE_TIMEOUT", 120*time.Second),
		RetrievalTaskTimeout: getDurationEnv("RETRIEVAL_TASK_TIMEOUT", 15*time.Second),
		MaxRetries:           getIntEnv("UPSTREAM_MAX_RETRIES", 3),
		BackoffBase:          getDurationEnv("UPSTREAM_BACKOFF_BASE", 300*time.Millisecond),
		EmbedRatePerSec:      getFloatEnv("EMBED_RATE_PER_SEC", 10),

		RetentionCron: getEnv("RETENTION_CRON", "0 3 * * *"),
		RetentionDays: getIntEnv("RETENTION_DAYS", 30),

		OverridesPath: getEnv("OVERRIDES_PATH", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
