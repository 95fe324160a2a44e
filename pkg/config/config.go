package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"mnemo/pkg/errors"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Neo4j
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	// ControlDatabase is the database holding the tenant registry.
	// Tenant data never lives here; each tenant gets its own database.
	ControlDatabase string

	// Qdrant
	QdrantHost       string
	QdrantPort       int
	QdrantAPIKey     string
	QdrantUseTLS     bool
	QdrantCollection string

	// AI collaborators (OpenAI-compatible endpoint)
	OpenAIBaseURL   string
	OpenAIAPIKey    string
	ExtractionModel string
	EmbeddingModel  string
	// EmbeddingDimension must match the vector collection configuration
	// exactly; the server refuses to start on a mismatch.
	EmbeddingDimension int

	// Single-tenant fallback; when both are set the server uses a static
	// tenant resolver instead of the graph-backed registry, accepting
	// DefaultAPIKey as the only credential.
	DefaultTenantID  string
	DefaultGraphName string
	DefaultAPIKey    string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		Neo4jURI:           getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:          getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:      getEnv("NEO4J_PASSWORD", "password"),
		ControlDatabase:    getEnv("NEO4J_CONTROL_DATABASE", "neo4j"),
		QdrantHost:         getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:         getEnvInt("QDRANT_PORT", 6334),
		QdrantAPIKey:       getEnv("QDRANT_API_KEY", ""),
		QdrantUseTLS:       getEnv("QDRANT_USE_TLS", "false") == "true",
		QdrantCollection:   getEnv("QDRANT_COLLECTION", "semantic_memory"),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "http://localhost:4000"),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		ExtractionModel:    getEnv("EXTRACTION_MODEL", "gpt-4o-mini"),
		EmbeddingModel:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimension: getEnvInt("EMBEDDING_DIMENSION", 1536),
		DefaultTenantID:    getEnv("DEFAULT_TENANT_ID", ""),
		DefaultGraphName:   getEnv("DEFAULT_GRAPH_NAME", ""),
		DefaultAPIKey:      getEnv("DEFAULT_API_KEY", "dev-key"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"NEO4J_URI", c.Neo4jURI},
		{"NEO4J_USER", c.Neo4jUser},
		{"NEO4J_PASSWORD", c.Neo4jPassword},
		{"QDRANT_HOST", c.QdrantHost},
		{"QDRANT_COLLECTION", c.QdrantCollection},
		{"EXTRACTION_MODEL", c.ExtractionModel},
		{"EMBEDDING_MODEL", c.EmbeddingModel},
	}
	for _, r := range required {
		if r.value == "" {
			return errors.NewConfigMissingRequired(r.field)
		}
	}
	if c.EmbeddingDimension <= 0 {
		return errors.NewBaseError(errors.ErrorTypeConfig, "EMBEDDING_DIMENSION must be positive", nil)
	}
	// API keys are optional for local OpenAI-compatible endpoints
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
