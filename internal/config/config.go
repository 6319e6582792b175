package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	StoreDriverJSON   = "json"
	StoreDriverSQLite = "sqlite"
)

type Config struct {
	OpenAIAPIKey string
	GeminiAPIKey string
	QdrantAPIKey string
	QdrantURL    string
	Collection   string

	EmbeddingProvider string
	EmbeddingModel    string
	EmbeddingDim      int
	ChatProvider      string
	ChatModel         string

	ChunkSize    int
	ChunkOverlap int
	TopK         int

	UserStoreDriver string
	UserFile        string
	DatabaseURL     string

	HTTPPort         string
	LogLevel         string
	JWTSecret        string
	UnidocLicenseKey string
	MaxUploadMB      int
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		QdrantAPIKey: getEnv("QDRANT_API_KEY", ""),
		QdrantURL:    getEnv("QDRANT_URL", "http://localhost:6333"),
		Collection:   getEnv("QDRANT_COLLECTION", "user-profile-index"),

		EmbeddingProvider: strings.ToLower(getEnv("EMBEDDING_PROVIDER", ProviderOpenAI)),
		ChatProvider:      strings.ToLower(getEnv("CHAT_PROVIDER", ProviderOpenAI)),

		ChunkSize:    getEnvAsInt("CHUNK_SIZE", 1000),
		ChunkOverlap: getEnvAsInt("CHUNK_OVERLAP", 200),
		TopK:         getEnvAsInt("TOP_K", 5),

		UserStoreDriver: strings.ToLower(getEnv("USER_STORE_DRIVER", StoreDriverJSON)),
		UserFile:        getEnv("USER_FILE", "users.json"),
		DatabaseURL:     getEnv("DATABASE_URL", "users.db"),

		HTTPPort:         getEnv("HTTP_PORT", "8000"),
		LogLevel:         strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		UnidocLicenseKey: getEnv("UNIDOC_LICENSE_API_KEY", ""),
		MaxUploadMB:      getEnvAsInt("MAX_UPLOAD_MB", 20),
	}

	cfg.EmbeddingModel = getEnv("EMBEDDING_MODEL", defaultEmbeddingModel(cfg.EmbeddingProvider))
	cfg.ChatModel = getEnv("CHAT_MODEL", defaultChatModel(cfg.ChatProvider))
	cfg.EmbeddingDim = getEnvAsInt("EMBEDDING_DIM", defaultEmbeddingDim(cfg.EmbeddingModel))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first missing secret or inconsistent setting.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	for _, p := range []string{c.EmbeddingProvider, c.ChatProvider} {
		switch p {
		case ProviderOpenAI:
			if c.OpenAIAPIKey == "" {
				return errors.New("OPENAI_API_KEY environment variable is required")
			}
		case ProviderGemini:
			if c.GeminiAPIKey == "" {
				return errors.New("GEMINI_API_KEY environment variable is required")
			}
		default:
			return fmt.Errorf("unknown provider %q", p)
		}
	}
	switch c.UserStoreDriver {
	case StoreDriverJSON, StoreDriverSQLite:
	default:
		return fmt.Errorf("unknown USER_STORE_DRIVER %q", c.UserStoreDriver)
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("invalid chunk window: size=%d overlap=%d", c.ChunkSize, c.ChunkOverlap)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("TOP_K must be positive, got %d", c.TopK)
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("EMBEDDING_DIM must be positive, got %d", c.EmbeddingDim)
	}
	return nil
}

func (c *Config) Debug() bool { return c.LogLevel == "DEBUG" }

func defaultEmbeddingModel(provider string) string {
	if provider == ProviderGemini {
		return "text-embedding-004"
	}
	return "text-embedding-3-small"
}

func defaultChatModel(provider string) string {
	if provider == ProviderGemini {
		return "gemini-1.5-flash-latest"
	}
	return "gpt-3.5-turbo"
}

var embeddingDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
	"text-embedding-004":     768,
}

func defaultEmbeddingDim(model string) int {
	if d, ok := embeddingDimensions[model]; ok {
		return d
	}
	return 1536
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
