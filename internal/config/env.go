package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string

	// Blob storage: "local" writes to StoragePath, "s3" uses the AWS settings.
	StorageBackend string
	StoragePath    string
	AwsAccessKey   string
	AwsSecretKey   string
	AwsRegion      string
	BucketName     string

	// Chat completion backend (OpenAI-compatible, e.g. Ollama or LM Studio).
	LLMProvider string
	LLMBaseURL  string
	LLMModel    string
	LLMAPIKey   string

	// Embeddings: "openai" talks to EmbedBaseURL, "gemini" uses the Google SDK.
	EmbedProvider string
	EmbedBaseURL  string
	EmbedAPIKey   string
	EmbedModel    string
	EmbedDim      int
	GeminiAPIKey  string

	ChunkSize    int
	ChunkOverlap int

	Port        string
	Environment string
}

// LoadConfig loads the environment variables and returns the config.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),

		StorageBackend: getEnv("STORAGE_BACKEND", "local"),
		StoragePath:    getEnv("STORAGE_PATH", "/tmp/paperchat/pdfs"),
		AwsAccessKey:   getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:   getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:      getEnv("AWS_REGION", "us-east-2"),
		BucketName:     getEnv("BUCKET_NAME", "paperchat-docs"),

		LLMProvider: getEnv("LLM_PROVIDER", "ollama"),
		LLMBaseURL:  getEnv("LLM_BASE_URL", "http://localhost:11434/v1"),
		LLMModel:    getEnv("LLM_MODEL", "gpt-oss:20b"),
		LLMAPIKey:   getEnv("LLM_API_KEY", "ollama"),

		EmbedProvider: getEnv("EMBED_PROVIDER", "openai"),
		EmbedBaseURL:  getEnv("EMBED_BASE_URL", "http://localhost:11434/v1"),
		EmbedAPIKey:   getEnv("EMBED_API_KEY", "ollama"),
		EmbedModel:    getEnv("EMBED_MODEL", "mxbai-embed-large"),
		EmbedDim:      getEnvInt("EMBED_DIM", 1024),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),

		ChunkSize:    getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 200),

		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL not set")
	}
	if cfg.EmbedDim <= 0 {
		return nil, fmt.Errorf("EMBED_DIM must be positive, got %d", cfg.EmbedDim)
	}
	if cfg.StorageBackend != "local" && cfg.StorageBackend != "s3" {
		return nil, fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", "local", "s3", cfg.StorageBackend)
	}

	return cfg, nil
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
