package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Queue backends
const (
	QueueBackendMemory = "memory"
	QueueBackendAsynq  = "asynq"
)

// LLM providers
const (
	ProviderOpenAI = "openai"
	ProviderVertex = "vertex"
	ProviderStub   = "stub"
)

// Config holds application configuration loaded from environment variables
type Config struct {
	Env         string
	Port        string
	Mode        string // server, worker or embedded
	DatabaseURL string
	RedisURL    string
	LogLevel    string
	LogFormat   string

	QueueBackend      string
	WorkerConcurrency int
	QueueCapacity     int
	TaskTimeout       time.Duration

	// PendingSweepSchedule is a cron spec; empty disables the periodic sweep.
	PendingSweepSchedule string
	PendingSweepAge      time.Duration

	MaxUploadBytes    int64
	DocumentCharLimit int
	IndexCatalogPath  string
	EventsEnabled     bool

	LLM LLMConfig
}

// LLMConfig is the settings value handed to the language model clients.
// It is built once at startup; clients never read the environment themselves.
type LLMConfig struct {
	Provider  string
	Timeout   time.Duration
	MaxTokens int

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	VertexProjectID string
	VertexRegion    string
	VertexModel     string
}

// Load reads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		Env:         getEnvWithDefault("ENV", "development"),
		Port:        getEnvWithDefault("PORT", "8080"),
		Mode:        getEnvWithDefault("MODE", "embedded"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    getEnvWithDefault("REDIS_URL", "redis://localhost:6379/0"),
		LogLevel:    getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat:   getEnvWithDefault("LOG_FORMAT", "text"),

		QueueBackend:      strings.ToLower(getEnvWithDefault("QUEUE_BACKEND", QueueBackendMemory)),
		WorkerConcurrency: getIntWithDefault("WORKER_CONCURRENCY", 4),
		QueueCapacity:     getIntWithDefault("QUEUE_CAPACITY", 256),
		TaskTimeout:       getDurationWithDefault("TASK_TIMEOUT", 10*time.Minute),

		PendingSweepSchedule: os.Getenv("PENDING_SWEEP_SCHEDULE"),
		PendingSweepAge:      getDurationWithDefault("PENDING_SWEEP_AGE", 5*time.Minute),

		MaxUploadBytes:    int64(getIntWithDefault("MAX_UPLOAD_BYTES", 20<<20)),
		DocumentCharLimit: getIntWithDefault("DOCUMENT_CHAR_LIMIT", 6000),
		IndexCatalogPath:  os.Getenv("INDEX_CATALOG_PATH"),
		EventsEnabled:     getBoolWithDefault("EVENTS_ENABLED", false),

		LLM: LLMConfig{
			Provider:        strings.ToLower(getEnvWithDefault("LLM_PROVIDER", ProviderOpenAI)),
			Timeout:         getDurationWithDefault("LLM_TIMEOUT", 60*time.Second),
			MaxTokens:       getIntWithDefault("LLM_MAX_TOKENS", 1024),
			OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
			OpenAIBaseURL:   getEnvWithDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			OpenAIModel:     getEnvWithDefault("OPENAI_MODEL", "gpt-4o"),
			VertexProjectID: os.Getenv("VERTEX_PROJECT_ID"),
			VertexRegion:    getEnvWithDefault("VERTEX_REGION", "us-central1"),
			VertexModel:     getEnvWithDefault("VERTEX_MODEL", "gemini-1.5-pro"),
		},
	}

	// Fall back to the stub provider in development when no key is configured
	if cfg.LLM.Provider == ProviderOpenAI && cfg.LLM.OpenAIAPIKey == "" && cfg.Env == "development" {
		log.Println("WARNING: OPENAI_API_KEY not set. Using stub LLM provider; extracted weights and cost models will be empty.")
		cfg.LLM.Provider = ProviderStub
	}

	return cfg
}

// Validate reports configuration that cannot be used to start the service.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	switch c.Mode {
	case "server", "worker", "embedded":
	default:
		return fmt.Errorf("unknown MODE %q", c.Mode)
	}

	switch c.QueueBackend {
	case QueueBackendMemory:
		if c.Mode != "embedded" {
			return fmt.Errorf("QUEUE_BACKEND=memory requires MODE=embedded")
		}
	case QueueBackendAsynq:
	default:
		return fmt.Errorf("unknown QUEUE_BACKEND %q", c.QueueBackend)
	}

	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	if c.PendingSweepAge < time.Second {
		return fmt.Errorf("PENDING_SWEEP_AGE must be at least 1s")
	}
	if c.DocumentCharLimit < 1 {
		return fmt.Errorf("DOCUMENT_CHAR_LIMIT must be at least 1")
	}

	switch c.LLM.Provider {
	case ProviderOpenAI:
		if c.LLM.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for LLM_PROVIDER=openai")
		}
	case ProviderVertex:
		if c.LLM.VertexProjectID == "" {
			return fmt.Errorf("VERTEX_PROJECT_ID is required for LLM_PROVIDER=vertex")
		}
	case ProviderStub:
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLM.Provider)
	}

	return nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntWithDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("WARNING: invalid %s=%q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("WARNING: invalid %s=%q, using default %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}

func getBoolWithDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("WARNING: invalid %s=%q, using default %t", key, value, defaultValue)
		return defaultValue
	}
	return b
}
