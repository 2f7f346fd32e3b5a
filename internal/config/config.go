package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Redis (pipeline queue + progress store)
	RedisURL string

	// Blob storage
	BlobStoreURL string
	BlobToken    string

	// OpenAI (primary text-generation provider)
	OpenAIKey   string
	OpenAIModel string

	// Gemini (alternate text-generation provider — used when TEXT_PROVIDER=gemini)
	TextProvider string // "openai" (default) or "gemini"
	GeminiKey    string
	GeminiModel  string

	// ElevenLabs TTS
	ElevenLabsKey string

	// External binaries — configured path with system-installed fallback
	FFmpegPath  string
	FFprobePath string
	YtDlpPath   string

	// Audio pipeline tuning
	TempDir            string
	ChunkWordTarget    int     // Target words per narration chunk
	SpliceTimeoutSec   int     // Deadline around one whole splice invocation
	MaxSourceDuration  int     // Max music source duration in seconds
	InlineThresholdMB  int     // Below this, payloads travel inline
	MaxPayloadMB       int     // Above this, payloads are rejected outright

	// Worker
	MaxConcurrentPipelines int
	MaxConcurrentSynthesis int // Fan-out width over narration chunks
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		BlobStoreURL:       getEnv("BLOB_STORE_URL", ""),
		BlobToken:          getEnv("BLOB_READ_WRITE_TOKEN", ""),
		OpenAIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o"),
		TextProvider:       getEnv("TEXT_PROVIDER", "openai"),
		GeminiKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		ElevenLabsKey:      getEnv("ELEVENLABS_API_KEY", ""),
		FFmpegPath:         getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:        getEnv("FFPROBE_PATH", "ffprobe"),
		YtDlpPath:          getEnv("YTDLP_PATH", "yt-dlp"),
		TempDir:            getEnv("TEMP_DIR", "/tmp/hypemix"),

		ChunkWordTarget:   getEnvInt("CHUNK_WORD_TARGET", 150),
		SpliceTimeoutSec:  getEnvInt("SPLICE_TIMEOUT_SEC", 55),
		MaxSourceDuration: getEnvInt("MAX_SOURCE_DURATION_SEC", 600),
		InlineThresholdMB: getEnvInt("INLINE_THRESHOLD_MB", 3),
		MaxPayloadMB:      getEnvInt("MAX_PAYLOAD_MB", 45),

		MaxConcurrentPipelines: getEnvInt("MAX_CONCURRENT_PIPELINES", 3),
		MaxConcurrentSynthesis: getEnvInt("MAX_CONCURRENT_SYNTHESIS", 4),
	}

	// Validate required fields
	if cfg.OpenAIKey == "" && cfg.GeminiKey == "" {
		return nil, fmt.Errorf("either OPENAI_API_KEY or GEMINI_API_KEY is required for text generation")
	}

	if cfg.TextProvider != "openai" && cfg.TextProvider != "gemini" {
		return nil, fmt.Errorf("TEXT_PROVIDER must be \"openai\" or \"gemini\", got %q", cfg.TextProvider)
	}

	if cfg.TextProvider == "gemini" && cfg.GeminiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required when TEXT_PROVIDER=gemini")
	}

	if cfg.ElevenLabsKey == "" {
		return nil, fmt.Errorf("ELEVENLABS_API_KEY is required for TTS")
	}

	if cfg.BlobStoreURL == "" || cfg.BlobToken == "" {
		return nil, fmt.Errorf("BLOB_STORE_URL and BLOB_READ_WRITE_TOKEN are required")
	}

	if cfg.InlineThresholdMB >= cfg.MaxPayloadMB {
		return nil, fmt.Errorf("INLINE_THRESHOLD_MB (%d) must be below MAX_PAYLOAD_MB (%d)", cfg.InlineThresholdMB, cfg.MaxPayloadMB)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
