// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultLLM      string
	AssistantID     string
	ChatModel       string
	ChatTemperature float64
	ChatMaxTokens   int

	// History budgets
	HistoryCharLimit   int
	RequestTokenBudget int
	SummaryModel       string
	SummaryTemperature float64
	SummaryMaxTokens   int

	// Interaction context store
	ContextTTL           time.Duration
	ContextSweepInterval time.Duration
	ContentSnapshotDir   string

	// Usage pipeline
	UsageQueueSize int

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		DefaultLLM:      getEnv("DEFAULT_LLM", "anthropic"),
		AssistantID:     getEnv("ASSISTANT_ID", "default"),
		ChatModel:       getEnv("CHAT_MODEL", ""),
		ChatTemperature: getFloatEnv("CHAT_TEMPERATURE", 0.7),
		ChatMaxTokens:   getIntEnv("CHAT_MAX_TOKENS", 4096),

		// History budgets
		HistoryCharLimit:   getIntEnv("HISTORY_CHAR_LIMIT", 12000),
		RequestTokenBudget: getIntEnv("REQUEST_TOKEN_BUDGET", 6000),
		SummaryModel:       getEnv("SUMMARY_MODEL", ""),
		SummaryTemperature: getFloatEnv("SUMMARY_TEMPERATURE", 0.3),
		SummaryMaxTokens:   getIntEnv("SUMMARY_MAX_TOKENS", 1024),

		// Interaction context store
		ContextTTL:           getDurationEnv("CONTEXT_TTL", 2*time.Hour),
		ContextSweepInterval: getDurationEnv("CONTEXT_SWEEP_INTERVAL", 5*time.Minute),
		ContentSnapshotDir:   getEnv("CONTENT_SNAPSHOT_DIR", ""),

		// Usage pipeline
		UsageQueueSize: getIntEnv("USAGE_QUEUE_SIZE", 1024),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
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
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
