package config

import (
	"os"
	"strconv"
	"time"
)

// Centralized configuration defaults
const (
	DefaultHTTPAddr      = ":8080"
	DefaultNumWorkers    = 4
	DefaultMaxActiveJobs = 3
	DefaultDataDir       = ".data"
	DefaultUploadDir     = ".uploads"
	DefaultOutputDir     = ".output"

	// Provider throttling
	DefaultTokensPerMinute = 30
	DefaultBucketCapacity  = 10
	DefaultMinInterval     = 500 * time.Millisecond
	DefaultHourlyCap       = 500
	DefaultQueuePacing     = 200 * time.Millisecond

	// Circuit breaker
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 2
	DefaultOpenDuration     = 60 * time.Second
	DefaultHalfOpenMaxCalls = 3

	// Job retention
	JobExpirationHours = 24
)

// Config holds runtime settings loaded from the environment
type Config struct {
	HTTPAddr      string
	NumWorkers    int
	MaxActiveJobs int
	DataDir       string
	UploadDir     string
	OutputDir     string

	// Store backend: "disk", "postgres" or "redis"
	StoreBackend string
	PostgresURL  string
	RedisAddr    string
	RedisDB      int

	// Speech synthesis provider
	TTSEndpoint string
	TTSAPIKey   string
	TTSVoice    string
	TTSModel    string
	TTSSpeed    float64

	// AI structure extraction; disabled when the key is empty and
	// conversion runs on the heuristic extractor alone
	ExtractEndpoint string
	ExtractAPIKey   string
	ExtractModel    string

	TokensPerMinute int
	BucketCapacity  int
	MinInterval     time.Duration
	HourlyCap       int

	FailureThreshold int
	SuccessThreshold int
	OpenDuration     time.Duration
	HalfOpenMaxCalls int
}

// Load reads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		HTTPAddr:      getEnv("HTTP_ADDR", DefaultHTTPAddr),
		NumWorkers:    getEnvInt("NUM_WORKERS", DefaultNumWorkers),
		MaxActiveJobs: getEnvInt("MAX_ACTIVE_JOBS", DefaultMaxActiveJobs),
		DataDir:       getEnv("DATA_DIR", DefaultDataDir),
		UploadDir:     getEnv("UPLOAD_DIR", DefaultUploadDir),
		OutputDir:     getEnv("OUTPUT_DIR", DefaultOutputDir),

		StoreBackend: getEnv("STORE_BACKEND", "disk"),
		PostgresURL:  getEnv("POSTGRES_URL", ""),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:      getEnvInt("REDIS_DB", 0),

		TTSEndpoint: getEnv("TTS_ENDPOINT", "https://api.openai.com/v1/audio/speech"),
		TTSAPIKey:   getEnv("TTS_API_KEY", os.Getenv("OPENAI_API_KEY")),
		TTSVoice:    getEnv("TTS_VOICE", "alloy"),
		TTSModel:    getEnv("TTS_MODEL", "tts-1"),
		TTSSpeed:    getEnvFloat("TTS_SPEED", 1.0),

		ExtractEndpoint: getEnv("EXTRACT_ENDPOINT", "https://api.openai.com/v1/chat/completions"),
		ExtractAPIKey:   getEnv("EXTRACT_API_KEY", ""),
		ExtractModel:    getEnv("EXTRACT_MODEL", "gpt-4o-mini"),

		TokensPerMinute: getEnvInt("TOKENS_PER_MINUTE", DefaultTokensPerMinute),
		BucketCapacity:  getEnvInt("BUCKET_CAPACITY", DefaultBucketCapacity),
		MinInterval:     getEnvDuration("MIN_INTERVAL", DefaultMinInterval),
		HourlyCap:       getEnvInt("HOURLY_CAP", DefaultHourlyCap),

		FailureThreshold: getEnvInt("FAILURE_THRESHOLD", DefaultFailureThreshold),
		SuccessThreshold: getEnvInt("SUCCESS_THRESHOLD", DefaultSuccessThreshold),
		OpenDuration:     getEnvDuration("OPEN_DURATION", DefaultOpenDuration),
		HalfOpenMaxCalls: getEnvInt("HALF_OPEN_MAX_CALLS", DefaultHalfOpenMaxCalls),
	}
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

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
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
