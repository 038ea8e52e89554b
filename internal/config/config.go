package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, loaded from environment variables
// with sensible defaults for local development.
type Config struct {
	// Server
	Host string
	Port int

	// ChromaDB
	ChromaHost     string
	ChromaPort     int
	ChromaTenant   string
	ChromaDatabase string
	ChromaTimeout  time.Duration
	CollectionName string

	// Redis (optional document registry)
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Embedding backend
	EmbeddingURL     string
	EmbeddingModel   string
	EmbeddingTimeout time.Duration

	// Chunking
	ChunkSize    int
	ChunkOverlap int

	// Chat
	MaxConversationHistory int
	DefaultModel           string
	MaxTokens              int
	Temperature            float64
	RAGResults             int

	// LLM provider
	LLMProvider     string // "anthropic", "openai", "ollama"
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OllamaBaseURL   string
	LLMTimeout      time.Duration

	// Uploads
	UploadDir         string
	MaxFileSize       string
	AllowedExtensions []string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first if present.
func Load() *Config {
	// Missing .env is fine, env vars still apply.
	_ = godotenv.Load()

	return &Config{
		Host: getEnv("HOST", "0.0.0.0"),
		Port: getEnvInt("PORT", 8080),

		ChromaHost:     getEnv("CHROMA_HOST", "localhost"),
		ChromaPort:     getEnvInt("CHROMA_PORT", 8000),
		ChromaTenant:   getEnv("CHROMA_TENANT", "default_tenant"),
		ChromaDatabase: getEnv("CHROMA_DATABASE", "default_database"),
		ChromaTimeout:  getEnvDuration("CHROMA_TIMEOUT", 30*time.Second),
		CollectionName: getEnv("COLLECTION_NAME", "ai_rag_documents"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnvInt("REDIS_PORT", 6379),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		EmbeddingURL:     getEnv("EMBEDDING_URL", "http://localhost:8001"),
		EmbeddingModel:   getEnv("EMBEDDING_MODEL", "all-MiniLM-L6-v2"),
		EmbeddingTimeout: getEnvDuration("EMBEDDING_TIMEOUT", 60*time.Second),

		ChunkSize:    getEnvInt("MAX_CHUNK_SIZE", 1000),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 200),

		MaxConversationHistory: getEnvInt("MAX_CONVERSATION_HISTORY", 50),
		DefaultModel:           getEnv("DEFAULT_MODEL", "claude-3-sonnet-20240229"),
		MaxTokens:              getEnvInt("MAX_TOKENS", 4000),
		Temperature:            getEnvFloat("TEMPERATURE", 0.7),
		RAGResults:             getEnvInt("RAG_RESULTS", 5),

		LLMProvider:     getEnv("LLM_PROVIDER", "anthropic"),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OllamaBaseURL:   getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		LLMTimeout:      getEnvDuration("LLM_TIMEOUT", 120*time.Second),

		UploadDir:         getEnv("UPLOAD_DIR", "./static/uploads"),
		MaxFileSize:       getEnv("MAX_FILE_SIZE", "50MB"),
		AllowedExtensions: getEnvList("ALLOWED_EXTENSIONS", "pdf,txt,docx,md,html,csv,json"),
	}
}

// MaxFileSizeBytes converts the human-readable size limit ("50MB") to bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	s := strings.ToUpper(strings.TrimSpace(c.MaxFileSize))
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "GB"):
		mult = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		mult = 1024 * 1024
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		mult = 1024
		s = strings.TrimSuffix(s, "KB")
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 50 * 1024 * 1024
	}
	return n * mult
}

// IsAllowedFile reports whether the filename carries an allowed extension.
func (c *Config) IsAllowedFile(filename string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return false
	}
	for _, allowed := range c.AllowedExtensions {
		if ext == strings.TrimSpace(strings.ToLower(allowed)) {
			return true
		}
	}
	return false
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
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

func getEnvList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
